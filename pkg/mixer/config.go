// ABOUTME: Mixer configuration and options
// ABOUTME: Stream budgets, worker count, initial levels, logger and observer hooks
package mixer

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

const (
	DefaultMaxStreams = 32
	DefaultMaxEffects = 24
	DefaultMaxMusic   = 4
	DefaultWorkers    = 8
)

// Config bounds the mixer
type Config struct {
	// MaxStreams caps the total number of active sessions
	MaxStreams int
	// MaxPerCategory caps each category; zero means only MaxStreams applies
	MaxPerCategory [audio.NumCategories]int
	// Workers bounds the parallel per-stream reads of one chunk
	Workers int
	// Levels are the initial category volumes
	Levels [audio.NumCategories]float64
}

// DefaultConfig returns the stock budgets with full volume
func DefaultConfig() Config {
	var cfg Config
	cfg.MaxStreams = DefaultMaxStreams
	cfg.MaxPerCategory[audio.Effect] = DefaultMaxEffects
	cfg.MaxPerCategory[audio.Music] = DefaultMaxMusic
	cfg.Workers = DefaultWorkers
	for i := range cfg.Levels {
		cfg.Levels[i] = 1
	}
	return cfg
}

// Observer receives mixer events. Implementations must not block.
type Observer interface {
	StreamsActive(category audio.Category, n int)
	StreamRejected(category audio.Category)
	StreamReadFailed(category audio.Category)
	ChunkProduced(streams int)
}

type nopObserver struct{}

func (nopObserver) StreamsActive(audio.Category, int) {}
func (nopObserver) StreamRejected(audio.Category)     {}
func (nopObserver) StreamReadFailed(audio.Category)   {}
func (nopObserver) ChunkProduced(int)                 {}

// Option configures a Mixer
type Option func(*Mixer)

// WithLogger sets the logger; the zerolog global logger is used otherwise
func WithLogger(l zerolog.Logger) Option {
	return func(m *Mixer) { m.log = l.With().Str("c", "mixer").Logger() }
}

// WithObserver installs an event observer
func WithObserver(o Observer) Option {
	return func(m *Mixer) {
		if o != nil {
			m.obs = o
		}
	}
}

func defaultLogger() zerolog.Logger {
	return log.Logger.With().Str("c", "mixer").Logger()
}
