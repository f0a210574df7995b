// ABOUTME: Mixer session table and chunk production
// ABOUTME: Adds, finds and removes sessions; mixes them into one saturated output chunk
package mixer

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/stream"
)

// unity is volume 1.0 in 16.16 fixed point
const unity = 1 << 16

// Mixer owns the active sessions and produces mixed output
type Mixer struct {
	cfg Config
	log zerolog.Logger
	obs Observer

	read func(r *stream.Reader, byteCount int) audio.Chunk

	mu       sync.Mutex
	active   [audio.NumCategories][]*stream.Reader
	levels   [audio.NumCategories]float64
	produced int64
}

// New creates a mixer. Non-positive limits fall back to the defaults.
func New(cfg Config, opts ...Option) *Mixer {
	if cfg.MaxStreams <= 0 {
		cfg.MaxStreams = DefaultMaxStreams
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	m := &Mixer{
		cfg: cfg,
		log:  defaultLogger(),
		obs:  nopObserver{},
		read: (*stream.Reader).Read,
	}
	for _, o := range opts {
		o(m)
	}
	for _, c := range audio.Categories {
		m.levels[c] = clampLevel(cfg.Levels[c])
	}
	return m
}

// Add activates r. With reuseExisting set, a session of the same name in the
// same category is reused instead: it is rewound when restartExisting is set,
// otherwise armed for one more loop. The returned reader is the session that
// is now active. Adds beyond a budget fail with audio.ErrCapacityExceeded.
func (m *Mixer) Add(r *stream.Reader, reuseExisting, restartExisting bool) (*stream.Reader, error) {
	if err := m.checkAdd(r); err != nil {
		return nil, err
	}
	for {
		active, reused, err := m.insert(r, reuseExisting)
		if err != nil || !reused {
			return active, err
		}
		if active.Rearm(restartExisting) {
			return active, nil
		}
		// finished and claimed by reap; take its place
		m.Remove(active)
	}
}

// FindOrAdd returns the session playing under r's name in r's category
// untouched, or activates r when there is none.
func (m *Mixer) FindOrAdd(r *stream.Reader) (*stream.Reader, error) {
	if err := m.checkAdd(r); err != nil {
		return nil, err
	}
	for {
		active, reused, err := m.insert(r, true)
		if err != nil || !reused {
			return active, err
		}
		if !active.Retire() {
			return active, nil
		}
		m.Remove(active)
	}
}

func (m *Mixer) checkAdd(r *stream.Reader) error {
	if cat := r.Category(); !cat.Valid() {
		m.log.Warn().Str("name", r.Name()).Uint8("category", uint8(cat)).Msg("add with invalid category ignored")
		return fmt.Errorf("%w: %v", audio.ErrInvalidCategory, cat)
	}
	return nil
}

// insert activates r, or with reuse set returns the session already active
// under r's name. reused reports which happened.
func (m *Mixer) insert(r *stream.Reader, reuse bool) (active *stream.Reader, reused bool, err error) {
	cat := r.Category()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.active[cat] {
		if s == r {
			return s, false, nil
		}
	}

	if reuse {
		if existing := m.findLocked(r.Name(), cat); existing != nil {
			return existing, true, nil
		}
	}

	limit := m.cfg.MaxPerCategory[cat]
	if (limit > 0 && len(m.active[cat]) >= limit) || m.totalLocked() >= m.cfg.MaxStreams {
		m.log.Warn().
			Str("name", r.Name()).
			Stringer("category", cat).
			Int("active", len(m.active[cat])).
			Int("total", m.totalLocked()).
			Msg("stream rejected, mixer at capacity")
		m.obs.StreamRejected(cat)
		return nil, false, fmt.Errorf("%w: %s in %v", audio.ErrCapacityExceeded, r.Name(), cat)
	}

	m.active[cat] = append(m.active[cat], r)
	m.obs.StreamsActive(cat, len(m.active[cat]))
	m.log.Debug().Str("name", r.Name()).Stringer("category", cat).Str("id", r.ID().String()).Msg("stream added")
	return r, false, nil
}

// Remove deactivates r. It reports whether r was active.
func (m *Mixer) Remove(r *stream.Reader) bool {
	cat := r.Category()
	if !cat.Valid() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(cat, func(s *stream.Reader) bool { return s == r }) > 0
}

// RemoveID deactivates the session with the given id
func (m *Mixer) RemoveID(id uuid.UUID) (*stream.Reader, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range audio.Categories {
		for _, s := range m.active[c] {
			if s.ID() == id {
				m.removeLocked(c, func(x *stream.Reader) bool { return x == s })
				return s, true
			}
		}
	}
	return nil, false
}

// RemoveName deactivates every session named name in category and returns how many were removed
func (m *Mixer) RemoveName(name string, category audio.Category) int {
	if !m.validCategory(category, "remove") {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(category, func(s *stream.Reader) bool { return s.Name() == name })
}

// Clear empties one category
func (m *Mixer) Clear(category audio.Category) {
	if !m.validCategory(category, "clear") {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[category] = nil
	m.obs.StreamsActive(category, 0)
}

// ClearAll empties every category
func (m *Mixer) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range audio.Categories {
		m.active[c] = nil
		m.obs.StreamsActive(c, 0)
	}
}

// Contains reports whether a session named name is active in category
func (m *Mixer) Contains(name string, category audio.Category) bool {
	return m.Find(name, category) != nil
}

// Find returns the first active session named name in category
func (m *Mixer) Find(name string, category audio.Category) *stream.Reader {
	if !m.validCategory(category, "find") {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(name, category)
}

// Lookup returns the active session with the given id
func (m *Mixer) Lookup(id uuid.UUID) (*stream.Reader, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range audio.Categories {
		for _, s := range m.active[c] {
			if s.ID() == id {
				return s, true
			}
		}
	}
	return nil, false
}

// Count returns the number of active sessions in category
func (m *Mixer) Count(category audio.Category) int {
	if !category.Valid() {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active[category])
}

// Total returns the number of active sessions
func (m *Mixer) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalLocked()
}

// Sessions snapshots every active session in mixing order
func (m *Mixer) Sessions() []stream.Snapshot {
	readers := m.readers()
	out := make([]stream.Snapshot, len(readers))
	for i, s := range readers {
		out[i] = s.Snapshot()
	}
	return out
}

// readers copies the active list in mixing order
func (m *Mixer) readers() []*stream.Reader {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*stream.Reader, 0, m.totalLocked())
	for _, c := range audio.Categories {
		out = append(out, m.active[c]...)
	}
	return out
}

// SetLevel sets the volume of category, clamped to [0, 1]
func (m *Mixer) SetLevel(category audio.Category, level float64) error {
	if !m.validCategory(category, "set level") {
		return fmt.Errorf("%w: %v", audio.ErrInvalidCategory, category)
	}

	m.mu.Lock()
	m.levels[category] = clampLevel(level)
	m.mu.Unlock()
	return nil
}

// GetLevel returns the volume of category
func (m *Mixer) GetLevel(category audio.Category) (float64, error) {
	if !m.validCategory(category, "get level") {
		return 0, fmt.Errorf("%w: %v", audio.ErrInvalidCategory, category)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[category], nil
}

// Levels returns every category volume
func (m *Mixer) Levels() [audio.NumCategories]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels
}

type contribution struct {
	reader *stream.Reader
	volume int64
	chunk  audio.Chunk
}

// ProduceOutputChunk mixes byteCount bytes (rounded down to a whole frame)
// from every unpaused session. Sessions that reach their end without a
// pending loop are removed afterwards. It never fails: a session whose read
// panics contributes silence.
func (m *Mixer) ProduceOutputChunk(byteCount int) audio.Chunk {
	block := audio.Canonical.BlockAlign()
	byteCount = max(byteCount, 0) / block * block

	parts, position := m.snapshot(byteCount)

	var g errgroup.Group
	g.SetLimit(m.cfg.Workers)
	for i := range parts {
		p := &parts[i]
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					p.chunk = audio.Chunk{}
					m.log.Warn().Str("name", p.reader.Name()).Interface("panic", rec).Msg("stream read failed")
					m.obs.StreamReadFailed(p.reader.Category())
				}
			}()
			p.chunk = m.read(p.reader, byteCount)
			return nil
		})
	}
	// reads recover their own panics, so Wait never reports an error
	g.Wait()

	out := audio.NewSampleBuffer(byteCount)
	mixInto(out, parts)

	contributing := 0
	for _, p := range parts {
		if !p.chunk.Empty() {
			contributing++
		}
	}

	m.reap()
	m.obs.ChunkProduced(contributing)
	return audio.NewChunk(out, byteCount, position, audio.Mixed)
}

// snapshot copies the active list under the mixer lock and drops paused
// sessions after releasing it
func (m *Mixer) snapshot(byteCount int) ([]contribution, float64) {
	m.mu.Lock()
	var parts []contribution
	for _, c := range audio.Categories {
		vol := int64(math.Round(m.levels[c] * unity))
		for _, s := range m.active[c] {
			parts = append(parts, contribution{reader: s, volume: vol})
		}
	}
	position := audio.Canonical.Duration(int(m.produced))
	m.produced += int64(byteCount)
	m.mu.Unlock()

	return slices.DeleteFunc(parts, func(p contribution) bool { return p.reader.Paused() }), position
}

// mixInto sums the scaled contributions sample by sample and saturates
func mixInto(out *audio.SampleBuffer, parts []contribution) {
	n := out.Len() / 2
	if n == 0 {
		return
	}
	acc := make([]int64, n)

	for _, p := range parts {
		if p.chunk.Empty() || p.volume == 0 {
			continue
		}
		buf := p.chunk.Buffer()
		count := min(p.chunk.ByteCount()/2, n)
		if samples, err := buf.Int16s(); err == nil {
			for i, s := range samples[:count] {
				acc[i] += int64(s) * p.volume
			}
		} else {
			for i := 0; i < count; i++ {
				acc[i] += int64(buf.Int16At(i)) * p.volume
			}
		}
	}

	dst, err := out.Int16s()
	for i, v := range acc {
		s := audio.ClampInt16((v + unity/2) >> 16)
		if err == nil {
			dst[i] = s
		} else {
			out.SetInt16(i, s)
		}
	}
}

// reap drops sessions that finished without a pending loop. Each one is
// retired first so a concurrent Add cannot rearm it.
func (m *Mixer) reap() {
	var done []*stream.Reader
	for _, s := range m.readers() {
		if s.Retire() {
			done = append(done, s)
		}
	}
	if len(done) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range audio.Categories {
		removed := m.removeLocked(c, func(s *stream.Reader) bool {
			return slices.Contains(done, s)
		})
		if removed > 0 {
			m.log.Debug().Stringer("category", c).Int("removed", removed).Msg("finished streams removed")
		}
	}
}

func (m *Mixer) findLocked(name string, category audio.Category) *stream.Reader {
	for _, s := range m.active[category] {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func (m *Mixer) removeLocked(category audio.Category, match func(*stream.Reader) bool) int {
	list := m.active[category]
	kept := list[:0]
	for _, s := range list {
		if !match(s) {
			kept = append(kept, s)
		}
	}
	removed := len(list) - len(kept)
	clear(list[len(kept):])
	m.active[category] = kept
	if removed > 0 {
		m.obs.StreamsActive(category, len(kept))
	}
	return removed
}

func (m *Mixer) totalLocked() int {
	total := 0
	for _, c := range audio.Categories {
		total += len(m.active[c])
	}
	return total
}

func (m *Mixer) validCategory(category audio.Category, op string) bool {
	if category.Valid() {
		return true
	}
	m.log.Warn().Uint8("category", uint8(category)).Str("op", op).Msg("invalid category")
	return false
}

func clampLevel(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
