// ABOUTME: Device-free voice paced by a wall clock
// ABOUTME: Discards audio (null) or records it to a WAV file with go-audio/wav
package output

import (
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

// DefaultClockPeriod is how often a Clock voice pulls from its queue
const DefaultClockPeriod = 10 * time.Millisecond

// Clock consumes queued audio in real time without a sound device.
// With a path set, everything it consumes is written to a 16-bit WAV file.
type Clock struct {
	q      *slotQueue
	path   string
	period time.Duration

	mu     sync.Mutex
	format audio.Format
	open   bool
	file   *os.File
	enc    *gowav.Encoder
	stop   chan struct{}
	done   chan struct{}
	frames int64
}

// NewClock creates a clock voice. An empty path discards audio.
func NewClock(path string, period time.Duration) *Clock {
	if period <= 0 {
		period = DefaultClockPeriod
	}
	return &Clock{q: newSlotQueue(), path: path, period: period}
}

// NewNull creates a clock voice that discards audio
func NewNull() *Clock { return NewClock("", DefaultClockPeriod) }

// NewRecorder creates a clock voice that records to path
func NewRecorder(path string) *Clock { return NewClock(path, DefaultClockPeriod) }

// Open prepares the queue and, for recorders, creates the WAV file
func (c *Clock) Open(format audio.Format, onBufferEnd func(tag int)) error {
	if format.BitDepth != 16 {
		return fmt.Errorf("%w: unsupported bit depth %d", audio.ErrDeviceUnavailable, format.BitDepth)
	}

	c.stopLoop()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.closeFile(); err != nil {
		return err
	}
	if c.path != "" {
		f, err := os.Create(c.path)
		if err != nil {
			return fmt.Errorf("%w: failed to create recording: %v", audio.ErrDeviceUnavailable, err)
		}
		c.file = f
		c.enc = gowav.NewEncoder(f, format.SampleRate, format.BitDepth, format.Channels, 1)
	}

	c.q.reset(format, onBufferEnd)
	c.format = format
	c.open = true
	c.frames = 0

	backend := "null"
	if c.path != "" {
		backend = "wav"
	}
	log.Info().Str("c", "output").Str("backend", backend).Stringer("format", format).Msg("audio output initialized")
	return nil
}

// Submit queues a tagged buffer
func (c *Clock) Submit(buf []byte, tag int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	c.q.push(buf, tag)
	return nil
}

// Start launches the pacing goroutine
func (c *Clock) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	if c.stop != nil {
		return nil
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.q.setRunning(true)
	go c.run(c.stop, c.done, c.format)
	return nil
}

func (c *Clock) run(stop, done chan struct{}, format audio.Format) {
	defer close(done)

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	start := time.Now()
	var played int64
	var buf []byte

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			due := int64(time.Since(start).Seconds()*float64(format.SampleRate)) - played
			if due <= 0 {
				continue
			}
			need := int(due) * format.BlockAlign()
			if cap(buf) < need {
				buf = make([]byte, need)
			}
			buf = buf[:need]
			c.q.Read(buf)
			played += due
			c.consume(buf, due)
		}
	}
}

func (c *Clock) consume(buf []byte, frames int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames += frames
	if c.enc == nil {
		return
	}

	data := make([]int, len(buf)/2)
	for i := range data {
		data[i] = int(int16(uint16(buf[i*2]) | uint16(buf[i*2+1])<<8))
	}
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: c.format.Channels, SampleRate: c.format.SampleRate},
		Data:           data,
		SourceBitDepth: c.format.BitDepth,
	}
	if err := c.enc.Write(ib); err != nil {
		log.Warn().Err(err).Str("c", "output").Str("path", c.path).Msg("recording write failed")
	}
}

// Stop halts the pacing goroutine
func (c *Clock) Stop() error {
	c.stopLoop()
	return nil
}

func (c *Clock) stopLoop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	c.q.setRunning(false)
	close(stop)
	<-done
}

// Frames returns how many frames have been consumed since Open
func (c *Clock) Frames() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// SetVolume sets the software gain
func (c *Clock) SetVolume(v float64) { c.q.setGain(v) }

// Volume returns the software gain
func (c *Clock) Volume() float64 { return c.q.getGain() }

// SetFrequencyRatio sets the pitch ratio
func (c *Clock) SetFrequencyRatio(r float64) { c.q.setRatio(r) }

// FrequencyRatio returns the pitch ratio
func (c *Clock) FrequencyRatio() float64 { return c.q.getRatio() }

// Underruns returns the number of starved ticks
func (c *Clock) Underruns() uint64 { return c.q.underrunCount() }

// Close stops pacing and finalizes the recording
func (c *Clock) Close() error {
	c.stopLoop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.q.reset(c.format, nil)
	return c.closeFile()
}

func (c *Clock) closeFile() error {
	if c.file == nil {
		return nil
	}
	var firstErr error
	if err := c.enc.Close(); err != nil {
		firstErr = fmt.Errorf("failed to finalize recording: %w", err)
	}
	if err := c.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close recording: %w", err)
	}
	c.file = nil
	c.enc = nil
	return firstErr
}
