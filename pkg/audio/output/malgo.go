// ABOUTME: Malgo-based voice implementation
// ABOUTME: Uses miniaudio via malgo; the device data callback pulls from the slot queue
package output

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

// Malgo plays through a miniaudio playback device
type Malgo struct {
	q        *slotQueue
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	block    int
}

// NewMalgo creates an unopened malgo voice
func NewMalgo() *Malgo {
	return &Malgo{q: newSlotQueue()}
}

// Open initializes the miniaudio context and playback device
func (m *Malgo) Open(format audio.Format, onBufferEnd func(tag int)) error {
	if format.BitDepth != 16 {
		return fmt.Errorf("%w: unsupported bit depth %d", audio.ErrDeviceUnavailable, format.BitDepth)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("%w: failed to initialize malgo context: %v", audio.ErrDeviceUnavailable, err)
		}
		m.malgoCtx = ctx
	}

	m.q.reset(format, onBufferEnd)
	m.block = format.BlockAlign()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		n := min(int(frameCount)*m.block, len(pOutputSample))
		m.q.Read(pOutputSample[:n])
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return fmt.Errorf("%w: failed to initialize playback device: %v", audio.ErrDeviceUnavailable, err)
	}
	m.device = device

	log.Info().Str("c", "output").Str("backend", "malgo").Stringer("format", format).Msg("audio output initialized")
	return nil
}

// Submit queues a tagged buffer
func (m *Malgo) Submit(buf []byte, tag int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return ErrNotOpen
	}
	m.q.push(buf, tag)
	return nil
}

// Start starts the device
func (m *Malgo) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return ErrNotOpen
	}
	m.q.setRunning(true)
	if err := m.device.Start(); err != nil {
		m.q.setRunning(false)
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

// Stop stops the device
func (m *Malgo) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.q.setRunning(false)
	if m.device == nil {
		return nil
	}
	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return nil
}

// SetVolume sets the software gain
func (m *Malgo) SetVolume(v float64) { m.q.setGain(v) }

// Volume returns the software gain
func (m *Malgo) Volume() float64 { return m.q.getGain() }

// SetFrequencyRatio sets the pitch ratio
func (m *Malgo) SetFrequencyRatio(r float64) { m.q.setRatio(r) }

// FrequencyRatio returns the pitch ratio
func (m *Malgo) FrequencyRatio() float64 { return m.q.getRatio() }

// Underruns returns the number of starved callbacks
func (m *Malgo) Underruns() uint64 { return m.q.underrunCount() }

// Close releases the device and the miniaudio context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Warn().Err(err).Str("c", "output").Msg("malgo context uninit error")
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.device == nil {
		return
	}
	m.q.setRunning(false)
	if err := m.device.Stop(); err != nil {
		log.Warn().Err(err).Str("c", "output").Msg("device stop error")
	}
	m.device.Uninit()
	m.device = nil
	m.q.reset(audio.Canonical, nil)
}
