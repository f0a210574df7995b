// ABOUTME: Tests for backend selection and the clock voice
// ABOUTME: Drives the null and WAV-recording voices in real time with short buffers
package output

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/wav"
)

func TestVoiceImplementations(t *testing.T) {
	var _ Voice = (*Oto)(nil)
	var _ Voice = (*Malgo)(nil)
	var _ Voice = (*Clock)(nil)
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"oto", false},
		{"malgo", false},
		{"null", false},
		{"", false},
		{"wav:/tmp/out.wav", false},
		{"wav:", true},
		{"portaudio", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			v, err := New(tt.backend)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v == nil {
				t.Fatal("expected voice")
			}
		})
	}
}

func TestClockRequiresOpen(t *testing.T) {
	c := NewNull()
	if err := c.Submit(make([]byte, 4), 0); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen from Submit, got %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen from Start, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("expected Close on unopened voice to succeed, got %v", err)
	}
}

func TestClockRejectsWideFormats(t *testing.T) {
	err := NewNull().Open(audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 24}, nil)
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

// collector records buffer-end tags from the audio goroutine
type collector struct {
	mu   sync.Mutex
	tags []int
	ch   chan int
}

func newCollector() *collector {
	return &collector{ch: make(chan int, 16)}
}

func (c *collector) onEnd(tag int) {
	c.mu.Lock()
	c.tags = append(c.tags, tag)
	c.mu.Unlock()
	c.ch <- tag
}

func (c *collector) wait(t *testing.T, n int) []int {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-deadline:
			t.Fatalf("timed out after %d of %d buffer notifications", i, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.tags...)
}

func TestClockConsumesInRealTime(t *testing.T) {
	col := newCollector()
	c := NewClock("", 2*time.Millisecond)
	if err := c.Open(audio.Canonical, col.onEnd); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer c.Close()

	buf := audio.Canonical.BytesFor(10)
	c.Submit(make([]byte, buf), 0)
	c.Submit(make([]byte, buf), 1)
	if err := c.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	tags := col.wait(t, 2)
	if tags[0] != 0 || tags[1] != 1 {
		t.Errorf("expected tags [0 1], got %v", tags)
	}
	if c.Frames() < 441 {
		t.Errorf("expected at least 441 frames consumed, got %d", c.Frames())
	}
}

func TestRecorderWritesWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mix.wav")
	col := newCollector()
	c := NewClock(path, 2*time.Millisecond)
	if err := c.Open(audio.Canonical, col.onEnd); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	c.Submit(frames(1000, 2000, 3000), 0)
	c.Submit(make([]byte, audio.Canonical.BytesFor(5)), 1)
	c.Start()
	col.wait(t, 2)
	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open recording: %v", err)
	}
	defer f.Close()

	r, err := wav.NewReader(f, wav.DefaultOptions())
	if err != nil {
		t.Fatalf("recording is not a valid wav: %v", err)
	}
	if !r.Format().IsCanonical() {
		t.Errorf("expected canonical recording, got %v", r.Format())
	}
	pcm, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(pcm) < 12 {
		t.Fatalf("expected recorded audio, got %d bytes", len(pcm))
	}
	got := leftSamples(pcm[:12])
	if got[0] != 1000 || got[1] != 2000 || got[2] != 3000 {
		t.Errorf("expected recorded frames 1000 2000 3000, got %v", got)
	}
}

func TestClockVolumeAndPitchProperties(t *testing.T) {
	c := NewNull()
	c.SetVolume(0.25)
	if c.Volume() != 0.25 {
		t.Errorf("expected volume 0.25, got %f", c.Volume())
	}
	c.SetFrequencyRatio(4)
	if c.FrequencyRatio() != MaxFrequencyRatio {
		t.Errorf("expected ratio clamped to %v, got %v", MaxFrequencyRatio, c.FrequencyRatio())
	}
}
