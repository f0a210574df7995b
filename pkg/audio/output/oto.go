// ABOUTME: Oto-based voice implementation
// ABOUTME: An oto player pulls from the slot queue; volume is the player's native gain
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

// oto allows one context per process
var (
	otoCtx      *oto.Context
	otoFormat   audio.Format
	otoInitOnce sync.Once
	otoInitErr  error
)

func ensureOtoContext(format audio.Format) (*oto.Context, error) {
	otoInitOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		}
		var readyChan chan struct{}
		otoCtx, readyChan, otoInitErr = oto.NewContext(op)
		if otoInitErr != nil {
			return
		}
		<-readyChan
		otoFormat = format
	})
	if otoInitErr != nil {
		return nil, otoInitErr
	}
	if otoFormat != format {
		return nil, fmt.Errorf("oto context already running at %v, cannot open %v", otoFormat, format)
	}
	return otoCtx, nil
}

// Oto plays through the platform mixer via ebitengine/oto
type Oto struct {
	q      *slotQueue
	mu     sync.Mutex
	player *oto.Player
	volume float64
}

// NewOto creates an unopened oto voice
func NewOto() *Oto {
	return &Oto{q: newSlotQueue(), volume: 1}
}

// Open creates the oto player for format
func (o *Oto) Open(format audio.Format, onBufferEnd func(tag int)) error {
	if format.BitDepth != 16 {
		return fmt.Errorf("%w: oto only supports 16-bit output, got %d", audio.ErrDeviceUnavailable, format.BitDepth)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		o.player.Close()
		o.player = nil
	}

	ctx, err := ensureOtoContext(format)
	if err != nil {
		return fmt.Errorf("%w: failed to create oto context: %v", audio.ErrDeviceUnavailable, err)
	}

	o.q.reset(format, onBufferEnd)
	o.player = ctx.NewPlayer(o.q)
	// keep oto's own read-ahead to ~20ms so the slot queue sets the latency
	o.player.SetBufferSize(format.BytesFor(20))
	o.player.SetVolume(o.volume)

	log.Info().Str("c", "output").Str("backend", "oto").Stringer("format", format).Msg("audio output initialized")
	return nil
}

// Submit queues a tagged buffer
func (o *Oto) Submit(buf []byte, tag int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return ErrNotOpen
	}
	o.q.push(buf, tag)
	return nil
}

// Start begins playback
func (o *Oto) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return ErrNotOpen
	}
	o.q.setRunning(true)
	o.player.Play()
	return nil
}

// Stop pauses playback
func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.q.setRunning(false)
	if o.player != nil {
		o.player.Pause()
	}
	return nil
}

// SetVolume sets the player gain
func (o *Oto) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = clampVolume(v)
	if o.player != nil {
		o.player.SetVolume(o.volume)
	}
}

// Volume returns the player gain
func (o *Oto) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// SetFrequencyRatio sets the pitch ratio
func (o *Oto) SetFrequencyRatio(r float64) { o.q.setRatio(r) }

// FrequencyRatio returns the pitch ratio
func (o *Oto) FrequencyRatio() float64 { return o.q.getRatio() }

// Underruns returns the number of starved reads
func (o *Oto) Underruns() uint64 { return o.q.underrunCount() }

// Close releases the player. The shared oto context stays alive.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.q.setRunning(false)
	if o.player == nil {
		return nil
	}
	err := o.player.Close()
	o.player = nil
	o.q.reset(audio.Canonical, nil)
	return err
}
