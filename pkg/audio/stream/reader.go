// ABOUTME: PCM stream reader
// ABOUTME: Produces timestamped chunks from a shared sample buffer with loop-once support
package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

// State is the playback state of a Reader
type State int

const (
	Playing State = iota
	Paused
	Exhausted
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Reader is one playing session over canonical-format PCM.
// The sample data is never written and may be shared between sessions.
type Reader struct {
	id       uuid.UUID
	name     string
	category audio.Category
	data     []byte

	mu         sync.Mutex
	position   int
	paused     bool
	repeatOnce bool
	retired    bool
}

// New creates a session named name over pcm. A trailing partial frame is ignored.
func New(name string, category audio.Category, pcm []byte) *Reader {
	block := audio.Canonical.BlockAlign()
	return &Reader{
		id:       uuid.New(),
		name:     name,
		category: category,
		data:     pcm[:len(pcm)/block*block],
	}
}

// ID returns the unique session identifier
func (r *Reader) ID() uuid.UUID { return r.id }

// Name returns the asset name the session plays
func (r *Reader) Name() string { return r.name }

// Category returns the mixing category
func (r *Reader) Category() audio.Category { return r.category }

// Length returns the stream size in bytes
func (r *Reader) Length() int { return len(r.data) }

// DurationMs returns the stream length in milliseconds
func (r *Reader) DurationMs() int {
	return int(audio.Canonical.Duration(len(r.data)) * 1000)
}

// Read copies up to byteCount bytes from the current position into a fresh
// chunk. The chunk buffer is always byteCount long; bytes past ByteCount are
// zero. When the end is reached with repeat pending, reading continues from
// the start and the repeat flag clears. A paused reader yields an empty chunk.
func (r *Reader) Read(byteCount int) audio.Chunk {
	buf := audio.NewSampleBuffer(byteCount)

	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.position
	if r.paused {
		return audio.NewChunk(buf, 0, r.seconds(start), r.category)
	}

	dst := buf.Bytes()
	n := copy(dst, r.data[r.position:])
	r.position += n

	if r.position == len(r.data) && r.repeatOnce {
		r.repeatOnce = false
		r.position = copy(dst[n:], r.data)
		n += r.position
	}

	return audio.NewChunk(buf, n, r.seconds(start), r.category)
}

func (r *Reader) seconds(pos int) float64 {
	return audio.Canonical.Duration(pos)
}

// Pause stops the session from producing audio without moving its position
func (r *Reader) Pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
}

// Resume continues a paused session
func (r *Reader) Resume() {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
}

// Paused reports whether the session is paused
func (r *Reader) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// ResetPosition rewinds to the start
func (r *Reader) ResetPosition() {
	r.mu.Lock()
	r.position = 0
	r.mu.Unlock()
}

// SetRepeatOnce arms or clears the one-shot loop
func (r *Reader) SetRepeatOnce(repeat bool) {
	r.mu.Lock()
	r.repeatOnce = repeat
	r.mu.Unlock()
}

// Retire marks an exhausted session as finished for good and reports
// whether it is retired. A retired session can no longer be rearmed.
func (r *Reader) Retire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stateLocked() == Exhausted {
		r.retired = true
	}
	return r.retired
}

// Rearm rewinds the session when restart is set, otherwise arms one more
// loop. It fails on a retired session.
func (r *Reader) Rearm(restart bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return false
	}
	if restart {
		r.position = 0
	} else {
		r.repeatOnce = true
	}
	return true
}

// RepeatOnce reports whether a loop is pending
func (r *Reader) RepeatOnce() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.repeatOnce
}

// Position returns the read offset in bytes
func (r *Reader) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

// Seconds returns the read offset in seconds
func (r *Reader) Seconds() float64 {
	return r.seconds(r.Position())
}

// Exhausted reports whether the stream is at its end with no loop pending
func (r *Reader) Exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position >= len(r.data) && !r.repeatOnce
}

// State returns the current playback state. A paused reader reports Paused
// even at end of stream.
func (r *Reader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Reader) stateLocked() State {
	switch {
	case r.paused:
		return Paused
	case r.position >= len(r.data) && !r.repeatOnce:
		return Exhausted
	default:
		return Playing
	}
}

// Snapshot is a point-in-time view of a session for display and control
type Snapshot struct {
	ID         uuid.UUID
	Name       string
	Category   audio.Category
	State      State
	Position   int
	Length     int
	RepeatOnce bool
}

// Snapshot captures the session state under one lock
func (r *Reader) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		ID:         r.id,
		Name:       r.name,
		Category:   r.category,
		State:      r.stateLocked(),
		Position:   r.position,
		Length:     len(r.data),
		RepeatOnce: r.repeatOnce,
	}
}
