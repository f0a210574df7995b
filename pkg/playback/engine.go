// ABOUTME: Ring-buffer playback engine
// ABOUTME: Fills N slots from a Source and refills each one when the voice finishes it
package playback

import (
	"errors"
	"fmt"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/output"
)

// ErrTerminated is returned by Start after Dispose
var ErrTerminated = errors.New("playback engine terminated")

// Stats is a point-in-time view of the engine
type Stats struct {
	State          State
	Buffers        int
	BufferBytes    int
	InFlight       int
	Refills        uint64
	SubmitFailures uint64
	Underruns      uint64
	MasterVolume   float64
	Pitch          float64
}

// Engine keeps a voice fed from a Source
type Engine struct {
	source Source
	voice  output.Voice
	log    zerolog.Logger
	obs    Observer

	lifecycle sync.Mutex // serializes Init, Start and Dispose

	mu        sync.Mutex
	cond      *sync.Cond
	cfg       Config
	state     State
	voiceOpen bool
	slots     [][]byte
	bufBytes  int
	inFlight  uint64 // bit i set while slot i is owned by the voice
	blocked   uint64 // slots whose submit failed, held until the retry timer fires
	terminate bool
	retry     *time.Timer
	done      chan struct{}

	refills        atomic.Uint64
	submitFailures atomic.Uint64

	disposeOnce sync.Once
}

// New creates an uninitialized engine
func New(source Source, voice output.Voice, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		voice:  voice,
		cfg:    cfg.normalized(),
		log:    defaultLogger(),
		obs:    nopObserver{},
	}
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init opens the voice in canonical format. If the device cannot be opened
// the engine still moves to Initialized and Start retries the open.
func (e *Engine) Init() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	return e.init()
}

func (e *Engine) init() error {
	e.mu.Lock()
	if e.state != Uninitialized {
		st := e.state
		e.mu.Unlock()
		if st >= Terminating {
			return ErrTerminated
		}
		return nil
	}
	e.mu.Unlock()

	err := e.openVoice()

	e.mu.Lock()
	if e.state == Uninitialized {
		e.setStateLocked(Initialized)
	}
	e.mu.Unlock()
	return err
}

func (e *Engine) openVoice() error {
	if err := e.voice.Open(audio.Canonical, e.onBufferEnd); err != nil {
		e.log.Warn().Err(err).Msg("audio device unavailable")
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
		}
		return err
	}

	e.mu.Lock()
	vol, pitch := e.cfg.MasterVolume, e.cfg.Pitch
	e.voiceOpen = true
	e.mu.Unlock()

	e.voice.SetVolume(vol)
	e.voice.SetFrequencyRatio(pitch)
	return nil
}

// Start fills every slot, starts the voice and launches the refill goroutine.
// Calling Start on a running engine is a no-op.
func (e *Engine) Start() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if err := e.init(); err != nil {
		return err
	}

	e.mu.Lock()
	switch e.state {
	case Running:
		e.mu.Unlock()
		return nil
	case Terminating, Terminated:
		e.mu.Unlock()
		return ErrTerminated
	}
	open := e.voiceOpen
	e.mu.Unlock()

	if !open {
		if err := e.openVoice(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.bufBytes = audio.Canonical.BytesFor(e.cfg.LatencyMs)
	e.slots = make([][]byte, e.cfg.Buffers)
	for i := range e.slots {
		e.slots[i] = make([]byte, e.bufBytes)
	}
	e.inFlight = 0
	e.blocked = 0
	e.terminate = false
	n := len(e.slots)
	e.mu.Unlock()

	for i := range n {
		e.mu.Lock()
		e.inFlight |= 1 << i
		e.mu.Unlock()
		if err := e.refill(i); err != nil {
			e.discardVoice()
			return err
		}
	}

	if err := e.voice.Start(); err != nil {
		e.log.Error().Err(err).Msg("failed to start voice")
		e.discardVoice()
		return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}

	e.mu.Lock()
	e.done = make(chan struct{})
	e.setStateLocked(Running)
	go e.refillLoop(e.done)
	e.mu.Unlock()

	e.log.Info().
		Int("buffers", n).
		Int("latency_ms", e.cfg.LatencyMs).
		Int("buffer_bytes", e.bufBytes).
		Msg("playback started")
	return nil
}

// discardVoice closes a voice left holding part of the initial fill. Close
// drops queued buffers without notification, so the next Start reopens the
// voice and submits every slot exactly once.
func (e *Engine) discardVoice() {
	if err := e.voice.Close(); err != nil {
		e.log.Warn().Err(err).Msg("voice close error")
	}
	e.mu.Lock()
	e.voiceOpen = false
	e.inFlight = 0
	e.slots = nil
	e.mu.Unlock()
}

// refill produces a chunk into slot i and submits it. The caller must have
// set the slot's in-flight bit.
func (e *Engine) refill(i int) error {
	e.mu.Lock()
	buf := e.slots[i]
	e.mu.Unlock()

	chunk := e.produce(len(buf))
	n := 0
	if src := chunk.Buffer(); src != nil {
		n = copy(buf, src.Bytes()[:chunk.ByteCount()])
	}
	clear(buf[n:])

	if err := e.voice.Submit(buf, i); err != nil {
		e.submitFailures.Add(1)
		e.obs.SubmitFailed()
		return fmt.Errorf("failed to submit buffer %d: %w", i, err)
	}
	e.refills.Add(1)
	e.obs.BufferRefilled()
	return nil
}

func (e *Engine) produce(byteCount int) (chunk audio.Chunk) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("source panicked, substituting silence")
			chunk = audio.Chunk{}
		}
	}()
	return e.source.ProduceOutputChunk(byteCount)
}

func (e *Engine) refillLoop(done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	sampled := e.log.Sample(&zerolog.BasicSampler{N: 100})

	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		if e.terminate {
			return
		}
		free := ^(e.inFlight | e.blocked) & (1<<len(e.slots) - 1)
		if free == 0 {
			e.cond.Wait()
			continue
		}
		i := bits.TrailingZeros64(free)
		e.inFlight |= 1 << i
		e.mu.Unlock()

		err := e.refill(i)

		e.mu.Lock()
		if err != nil {
			e.inFlight &^= 1 << i
			e.blocked |= 1 << i
			e.scheduleRetryLocked()
			e.log.Warn().Err(err).Int("slot", i).Msg("buffer submit failed, retrying next period")
			continue
		}
		sampled.Debug().Int("slot", i).Uint64("refills", e.refills.Load()).Msg("buffer refilled")
	}
}

// scheduleRetryLocked releases blocked slots after one buffer period
func (e *Engine) scheduleRetryLocked() {
	if e.retry != nil {
		return
	}
	period := time.Duration(audio.Canonical.Duration(e.bufBytes) * float64(time.Second))
	e.retry = time.AfterFunc(period, func() {
		e.mu.Lock()
		e.retry = nil
		e.blocked = 0
		e.cond.Broadcast()
		e.mu.Unlock()
	})
}

// onBufferEnd runs on the voice's audio goroutine
func (e *Engine) onBufferEnd(tag int) {
	e.mu.Lock()
	if tag >= 0 && tag < len(e.slots) {
		e.inFlight &^= 1 << tag
		e.cond.Signal()
	}
	e.mu.Unlock()
}

// Dispose stops the refill goroutine, stops and closes the voice. It is safe
// to call more than once and from any goroutine.
func (e *Engine) Dispose() error {
	var err error
	e.disposeOnce.Do(func() {
		e.lifecycle.Lock()
		defer e.lifecycle.Unlock()

		e.mu.Lock()
		e.setStateLocked(Terminating)
		e.terminate = true
		if e.retry != nil {
			e.retry.Stop()
			e.retry = nil
		}
		e.cond.Broadcast()
		done, open := e.done, e.voiceOpen
		e.mu.Unlock()

		if done != nil {
			<-done
		}
		if open {
			if stopErr := e.voice.Stop(); stopErr != nil {
				e.log.Warn().Err(stopErr).Msg("voice stop error")
			}
			err = e.voice.Close()
		}

		e.mu.Lock()
		e.voiceOpen = false
		e.slots = nil
		e.inFlight = 0
		e.setStateLocked(Terminated)
		e.mu.Unlock()

		e.log.Info().Uint64("refills", e.refills.Load()).Msg("playback stopped")
	})
	return err
}

func (e *Engine) setStateLocked(s State) {
	if e.state == s {
		return
	}
	e.state = s
	e.obs.StateChanged(s)
}

// State returns the lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetMasterVolume sets the device-level gain, clamped to [0, 1]
func (e *Engine) SetMasterVolume(v float64) {
	v = clampVolume(v)
	e.mu.Lock()
	e.cfg.MasterVolume = v
	open := e.voiceOpen
	e.mu.Unlock()
	if open {
		e.voice.SetVolume(v)
	}
}

// MasterVolume returns the device-level gain
func (e *Engine) MasterVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.MasterVolume
}

// SetPitch sets the playback frequency ratio, clamped to the voice's range
func (e *Engine) SetPitch(ratio float64) {
	ratio = clampPitch(ratio)
	e.mu.Lock()
	e.cfg.Pitch = ratio
	open := e.voiceOpen
	e.mu.Unlock()
	if open {
		e.voice.SetFrequencyRatio(ratio)
	}
}

// Pitch returns the playback frequency ratio
func (e *Engine) Pitch() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Pitch
}

// Stats returns counters and buffer occupancy
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	s := Stats{
		State:        e.state,
		Buffers:      e.cfg.Buffers,
		BufferBytes:  e.bufBytes,
		InFlight:     bits.OnesCount64(e.inFlight),
		MasterVolume: e.cfg.MasterVolume,
		Pitch:        e.cfg.Pitch,
	}
	open := e.voiceOpen
	e.mu.Unlock()

	s.Refills = e.refills.Load()
	s.SubmitFailures = e.submitFailures.Load()
	if open {
		s.Underruns = e.voice.Underruns()
	}
	return s
}
