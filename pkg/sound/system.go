// ABOUTME: Playback control facade over the bank, mixer and engine
// ABOUTME: PlaySound, PlayMusic, Stop, StopAll and category and master levels
package sound

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/stream"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/mixer"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/playback"
)

// System plays bank assets through a mixer. The engine may be nil, in which
// case the caller drives Mixer().ProduceOutputChunk itself.
type System struct {
	bank   *Bank
	mixer  *mixer.Mixer
	engine *playback.Engine
	log    zerolog.Logger
}

// NewSystem wires a bank to a mixer and an optional engine
func NewSystem(bank *Bank, mix *mixer.Mixer, engine *playback.Engine) *System {
	return &System{
		bank:   bank,
		mixer:  mix,
		engine: engine,
		log:    log.Logger.With().Str("c", "sound").Logger(),
	}
}

// WithLogger replaces the system logger
func (s *System) WithLogger(l zerolog.Logger) *System {
	s.log = l.With().Str("c", "sound").Logger()
	return s
}

// Bank returns the asset bank
func (s *System) Bank() *Bank { return s.bank }

// Mixer returns the mixer
func (s *System) Mixer() *mixer.Mixer { return s.mixer }

// Engine returns the playback engine, which may be nil
func (s *System) Engine() *playback.Engine { return s.engine }

// Start starts the playback engine
func (s *System) Start() error {
	if s.engine == nil {
		return nil
	}
	return s.engine.Start()
}

// Close disposes of the playback engine and drops every session
func (s *System) Close() error {
	s.mixer.ClearAll()
	if s.engine == nil {
		return nil
	}
	return s.engine.Dispose()
}

// PlaySound starts the named asset in its own category. With reuse set, an
// already playing session of the same name is armed for one more loop
// instead of starting a second copy.
func (s *System) PlaySound(name string, reuse bool) (*stream.Reader, error) {
	a, ok := s.bank.ByName(name)
	if !ok {
		s.log.Warn().Str("name", name).Msg("play of unknown sound")
		return nil, fmt.Errorf("%w: %q", ErrUnknownSound, name)
	}
	return s.play(a, reuse)
}

// PlaySoundID is PlaySound by sequential asset ID
func (s *System) PlaySoundID(id int, reuse bool) (*stream.Reader, error) {
	a, ok := s.bank.ByID(id)
	if !ok {
		s.log.Warn().Int("id", id).Msg("play of unknown sound")
		return nil, fmt.Errorf("%w: #%d", ErrUnknownSound, id)
	}
	return s.play(a, reuse)
}

// PlayMusic starts the named asset as music. A track that is already playing
// is rewound when restart is set and left running otherwise.
func (s *System) PlayMusic(name string, restart bool) (*stream.Reader, error) {
	a, ok := s.bank.ByName(name)
	if !ok {
		s.log.Warn().Str("name", name).Msg("play of unknown music")
		return nil, fmt.Errorf("%w: %q", ErrUnknownSound, name)
	}

	track := stream.New(a.Name, audio.Music, a.PCM)
	var r *stream.Reader
	var err error
	if restart {
		r, err = s.mixer.Add(track, true, true)
	} else {
		r, err = s.mixer.FindOrAdd(track)
	}
	if err != nil {
		return nil, err
	}
	s.log.Debug().Str("name", a.Name).Bool("restart", restart).Msg("music playing")
	return r, nil
}

func (s *System) play(a *Asset, reuse bool) (*stream.Reader, error) {
	return s.mixer.Add(stream.New(a.Name, a.Category, a.PCM), reuse, false)
}

// Stop removes the session with the given ID
func (s *System) Stop(id uuid.UUID) bool {
	_, ok := s.mixer.RemoveID(id)
	return ok
}

// StopName removes every session of name in category
func (s *System) StopName(name string, category audio.Category) int {
	return s.mixer.RemoveName(name, category)
}

// StopCategory removes every session in category
func (s *System) StopCategory(category audio.Category) {
	s.mixer.Clear(category)
}

// StopAll removes every session
func (s *System) StopAll() {
	s.mixer.ClearAll()
}

// Pause holds the session at its current position
func (s *System) Pause(id uuid.UUID) bool {
	r, ok := s.mixer.Lookup(id)
	if ok {
		r.Pause()
	}
	return ok
}

// Resume continues a paused session
func (s *System) Resume(id uuid.UUID) bool {
	r, ok := s.mixer.Lookup(id)
	if ok {
		r.Resume()
	}
	return ok
}

// SetLevel sets a category volume in [0, 1]
func (s *System) SetLevel(category audio.Category, level float64) error {
	return s.mixer.SetLevel(category, level)
}

// GetLevel returns a category volume
func (s *System) GetLevel(category audio.Category) (float64, error) {
	return s.mixer.GetLevel(category)
}

// SetMasterVolume sets the device gain. Without an engine it is a no-op.
func (s *System) SetMasterVolume(v float64) {
	if s.engine != nil {
		s.engine.SetMasterVolume(v)
	}
}

// MasterVolume returns the device gain, 1 without an engine
func (s *System) MasterVolume() float64 {
	if s.engine == nil {
		return 1
	}
	return s.engine.MasterVolume()
}

// SetPitch sets the playback frequency ratio
func (s *System) SetPitch(ratio float64) {
	if s.engine != nil {
		s.engine.SetPitch(ratio)
	}
}

// Pitch returns the playback frequency ratio, 1 without an engine
func (s *System) Pitch() float64 {
	if s.engine == nil {
		return 1
	}
	return s.engine.Pitch()
}

// Sessions lists the active sessions
func (s *System) Sessions() []stream.Snapshot {
	return s.mixer.Sessions()
}

// Stats returns engine counters; the zero value without an engine
func (s *System) Stats() playback.Stats {
	if s.engine == nil {
		return playback.Stats{}
	}
	return s.engine.Stats()
}
