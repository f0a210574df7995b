// ABOUTME: Tests for the PCM stream reader
// ABOUTME: Covers chunk sizing, pause idempotence, rewinds and the one-shot loop
package stream

import (
	"sync"
	"testing"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

func ramp(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i%250 + 1)
	}
	return data
}

func TestReadAdvances(t *testing.T) {
	r := New("laser", audio.Effect, ramp(40))

	c := r.Read(16)
	if c.ByteCount() != 16 {
		t.Fatalf("expected 16 bytes, got %d", c.ByteCount())
	}
	if c.Category() != audio.Effect {
		t.Errorf("expected effect category, got %v", c.Category())
	}
	if r.Position() != 16 {
		t.Errorf("expected position 16, got %d", r.Position())
	}

	c = r.Read(32)
	if c.ByteCount() != 24 {
		t.Fatalf("expected 24 bytes at the tail, got %d", c.ByteCount())
	}
	if c.Buffer().Len() != 32 {
		t.Errorf("expected buffer of requested size, got %d", c.Buffer().Len())
	}
	for i, b := range c.Buffer().Bytes()[24:] {
		if b != 0 {
			t.Fatalf("expected zero tail at %d, got %d", 24+i, b)
		}
	}
	if !r.Exhausted() || r.State() != Exhausted {
		t.Errorf("expected exhausted reader, got %v", r.State())
	}

	if c := r.Read(8); !c.Empty() {
		t.Errorf("expected empty chunk after end, got %d bytes", c.ByteCount())
	}
}

func TestChunkPositionIsReadStart(t *testing.T) {
	r := New("music", audio.Music, make([]byte, 176400))
	r.Read(88200)
	c := r.Read(4)
	if c.Position() != 0.5 {
		t.Errorf("expected chunk position 0.5s, got %f", c.Position())
	}
	if r.DurationMs() != 1000 {
		t.Errorf("expected 1000ms, got %d", r.DurationMs())
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	r := New("laser", audio.Effect, ramp(40))
	r.Read(8)

	r.Pause()
	r.Pause()
	if !r.Paused() {
		t.Fatal("expected paused after two Pause calls")
	}
	if r.State() != Paused {
		t.Errorf("expected Paused state, got %v", r.State())
	}

	c := r.Read(8)
	if !c.Empty() {
		t.Errorf("expected empty chunk while paused, got %d bytes", c.ByteCount())
	}
	if r.Position() != 8 {
		t.Errorf("expected position unchanged at 8, got %d", r.Position())
	}

	r.Resume()
	if r.Paused() {
		t.Error("expected playing after Resume")
	}
	if c := r.Read(8); c.ByteCount() != 8 {
		t.Errorf("expected 8 bytes after resume, got %d", c.ByteCount())
	}
}

func TestResetPosition(t *testing.T) {
	tests := []struct {
		name  string
		reads []int
	}{
		{"fresh", nil},
		{"partial", []int{4, 8}},
		{"past end", []int{40, 40, 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("laser", audio.Effect, ramp(40))
			for _, n := range tt.reads {
				r.Read(n)
			}
			r.ResetPosition()
			if r.Position() != 0 {
				t.Errorf("expected position 0, got %d", r.Position())
			}
			if r.Exhausted() {
				t.Error("expected rewound reader not to be exhausted")
			}
		})
	}
}

func TestRepeatOnceWrapsAcrossRead(t *testing.T) {
	data := ramp(40)
	r := New("theme", audio.Music, data)
	r.Read(28)
	r.SetRepeatOnce(true)

	// 12 bytes remain; ask for 20
	c := r.Read(20)
	if c.ByteCount() != 20 {
		t.Fatalf("expected a full 20-byte chunk, got %d", c.ByteCount())
	}
	got := c.Buffer().Bytes()
	for i := 0; i < 12; i++ {
		if got[i] != data[28+i] {
			t.Fatalf("byte %d: expected tail %d, got %d", i, data[28+i], got[i])
		}
	}
	for i := 12; i < 20; i++ {
		if got[i] != data[i-12] {
			t.Fatalf("byte %d: expected head %d, got %d", i, data[i-12], got[i])
		}
	}
	if r.Position() != 8 {
		t.Errorf("expected position 8, got %d", r.Position())
	}
	if r.RepeatOnce() {
		t.Error("expected repeat flag cleared")
	}
}

func TestRepeatOnceAtExactEnd(t *testing.T) {
	r := New("theme", audio.Music, ramp(16))
	r.SetRepeatOnce(true)
	r.Read(16)

	if r.Position() != 0 {
		t.Errorf("expected wrap to 0, got %d", r.Position())
	}
	if r.Exhausted() {
		t.Error("expected looping stream not to be exhausted")
	}
	r.Read(16)
	if !r.Exhausted() {
		t.Error("expected exhaustion after the second pass")
	}
}

func TestRetireAndRearm(t *testing.T) {
	r := New("coin", audio.Effect, ramp(16))
	if r.Retire() {
		t.Fatal("expected a playing reader not to retire")
	}
	if !r.Rearm(false) {
		t.Fatal("expected rearm to succeed before retirement")
	}
	r.Read(32)
	if !r.Retire() {
		t.Fatal("expected an exhausted reader to retire")
	}
	if r.Rearm(true) {
		t.Error("expected rearm to fail after retirement")
	}
	if r.Position() != 16 {
		t.Errorf("expected position untouched at 16, got %d", r.Position())
	}

	paused := New("theme", audio.Music, ramp(16))
	paused.Read(16)
	paused.Pause()
	if paused.Retire() {
		t.Error("expected a paused reader not to retire")
	}
	if !paused.Rearm(true) || paused.Position() != 0 {
		t.Errorf("expected paused reader rewound, got position %d", paused.Position())
	}
}

func TestPartialFrameTrimmed(t *testing.T) {
	r := New("odd", audio.Effect, make([]byte, 10))
	if r.Length() != 8 {
		t.Errorf("expected length 8, got %d", r.Length())
	}
}

func TestSnapshot(t *testing.T) {
	r := New("theme", audio.Music, ramp(16))
	r.SetRepeatOnce(true)
	r.Read(4)

	s := r.Snapshot()
	if s.ID != r.ID() || s.Name != "theme" || s.Category != audio.Music {
		t.Errorf("unexpected identity %+v", s)
	}
	if s.Position != 4 || s.Length != 16 || !s.RepeatOnce || s.State != Playing {
		t.Errorf("unexpected state %+v", s)
	}
}

func TestConcurrentControl(t *testing.T) {
	r := New("theme", audio.Music, make([]byte, 4*1024))
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			r.Read(16)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			r.Pause()
			r.Resume()
			r.ResetPosition()
		}
	}()
	wg.Wait()

	if p := r.Position(); p < 0 || p > r.Length() {
		t.Errorf("expected position within stream, got %d", p)
	}
}
