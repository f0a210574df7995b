// ABOUTME: Playback engine configuration, states and hooks
// ABOUTME: Latency, buffer count, initial master volume and pitch
package playback

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/output"
)

const (
	DefaultLatencyMs = 100
	DefaultBuffers   = 2
	MinBuffers       = 2
	MaxBuffers       = 64
)

// State is the engine lifecycle state
type State int32

const (
	Uninitialized State = iota
	Initialized
	Running
	Terminating
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Config sizes the ring buffers
type Config struct {
	LatencyMs    int
	Buffers      int
	MasterVolume float64
	Pitch        float64
}

// DefaultConfig returns double buffering at 100ms per buffer
func DefaultConfig() Config {
	return Config{
		LatencyMs:    DefaultLatencyMs,
		Buffers:      DefaultBuffers,
		MasterVolume: 1,
		Pitch:        1,
	}
}

func (c Config) normalized() Config {
	if c.LatencyMs <= 0 {
		c.LatencyMs = DefaultLatencyMs
	}
	c.Buffers = min(max(c.Buffers, MinBuffers), MaxBuffers)
	c.MasterVolume = clampVolume(c.MasterVolume)
	if c.Pitch <= 0 {
		c.Pitch = 1
	}
	c.Pitch = clampPitch(c.Pitch)
	return c
}

// clampVolume limits v to [0, 1]; NaN is silence
func clampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return min(v, 1)
}

// clampPitch limits r to the voice's ratio range; NaN is normal speed
func clampPitch(r float64) float64 {
	if math.IsNaN(r) {
		return 1
	}
	return min(max(r, output.MinFrequencyRatio), output.MaxFrequencyRatio)
}

// Source produces canonical audio on demand
type Source interface {
	ProduceOutputChunk(byteCount int) audio.Chunk
}

// Observer receives engine events. Implementations must not block.
type Observer interface {
	BufferRefilled()
	SubmitFailed()
	StateChanged(s State)
}

type nopObserver struct{}

func (nopObserver) BufferRefilled()    {}
func (nopObserver) SubmitFailed()      {}
func (nopObserver) StateChanged(State) {}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger; the zerolog global logger is used otherwise
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l.With().Str("c", "playback").Logger() }
}

// WithObserver installs an event observer
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.obs = o
		}
	}
}

func defaultLogger() zerolog.Logger {
	return log.Logger.With().Str("c", "playback").Logger()
}
