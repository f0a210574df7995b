// ABOUTME: Voice interface definition and backend selection
// ABOUTME: Common interface for all playback backends
package output

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

const (
	MinFrequencyRatio = 1.0 / 1024
	MaxFrequencyRatio = 2.0
)

// ErrNotOpen is returned by Submit and Start before a successful Open
var ErrNotOpen = errors.New("voice not open")

// Voice is a native output stream fed with tagged buffers
type Voice interface {
	// Open prepares the device for format. onBufferEnd is called with the
	// tag of every submitted buffer once it has been played.
	Open(format audio.Format, onBufferEnd func(tag int)) error

	// Submit queues buf for playback. buf must stay untouched until its
	// tag is reported through onBufferEnd.
	Submit(buf []byte, tag int) error

	// Start begins pulling queued buffers
	Start() error

	// Stop pauses playback; queued buffers are kept
	Stop() error

	// SetVolume sets the output gain in [0, 1]
	SetVolume(v float64)
	Volume() float64

	// SetFrequencyRatio sets the playback pitch ratio in [1/1024, 2]
	SetFrequencyRatio(r float64)
	FrequencyRatio() float64

	// Underruns returns how many device reads found no queued audio
	Underruns() uint64

	// Close releases the device. Pending buffers are dropped without notification.
	Close() error
}

// Backends lists the names accepted by New
var Backends = []string{"oto", "malgo", "null", "wav:<path>"}

// New creates the voice named by backend
func New(backend string) (Voice, error) {
	switch {
	case backend == "oto":
		return NewOto(), nil
	case backend == "malgo":
		return NewMalgo(), nil
	case backend == "null" || backend == "":
		return NewNull(), nil
	case strings.HasPrefix(backend, "wav:"):
		path := strings.TrimPrefix(backend, "wav:")
		if path == "" {
			return nil, fmt.Errorf("wav backend needs a file path")
		}
		return NewRecorder(path), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q (supported: %s)", backend, strings.Join(Backends, ", "))
	}
}

func clampVolume(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampRatio(r float64) float64 {
	if math.IsNaN(r) {
		return 1
	}
	if r < MinFrequencyRatio {
		return MinFrequencyRatio
	}
	if r > MaxFrequencyRatio {
		return MaxFrequencyRatio
	}
	return r
}
