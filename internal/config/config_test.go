// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, YAML files, env overrides, flags and validation
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
	if cfg.Audio.LatencyMs != 100 {
		t.Errorf("expected 100ms latency, got %d", cfg.Audio.LatencyMs)
	}
	if cfg.Audio.Buffers != 2 {
		t.Errorf("expected 2 buffers, got %d", cfg.Audio.Buffers)
	}
	if !cfg.Assets.Convert8 || !cfg.Assets.Convert24 || !cfg.Assets.Convert32 {
		t.Error("expected all conversions enabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
audio:
  backend: "null"
  latencyMs: 40
  buffers: 3
mixer:
  maxEffects: 8
  musicLevel: 0.5
assets:
  convert24: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.Backend != "null" {
		t.Errorf("expected null backend, got %q", cfg.Audio.Backend)
	}
	if cfg.Audio.LatencyMs != 40 || cfg.Audio.Buffers != 3 {
		t.Errorf("expected 40ms x3, got %dms x%d", cfg.Audio.LatencyMs, cfg.Audio.Buffers)
	}
	if cfg.Mixer.MaxEffects != 8 {
		t.Errorf("expected 8 effects, got %d", cfg.Mixer.MaxEffects)
	}
	if cfg.Mixer.MaxMusic != 4 {
		t.Errorf("expected default music limit 4, got %d", cfg.Mixer.MaxMusic)
	}
	if cfg.Assets.Convert24 {
		t.Error("expected convert24 disabled by file")
	}
	if !cfg.Assets.Convert8 {
		t.Error("expected convert8 to keep its default")
	}

	mc := cfg.MixerConfig()
	if mc.MaxPerCategory[audio.Effect] != 8 {
		t.Errorf("expected effect budget 8, got %d", mc.MaxPerCategory[audio.Effect])
	}
	if mc.Levels[audio.Music] != 0.5 {
		t.Errorf("expected music level 0.5, got %v", mc.Levels[audio.Music])
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "audio:\n  latencyMs: 40\n")
	t.Setenv("RESONATE_MIXER_AUDIO_LATENCYMS", "60")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.LatencyMs != 60 {
		t.Errorf("expected env to win with 60, got %d", cfg.Audio.LatencyMs)
	}
}

func TestWithFlags(t *testing.T) {
	cfg := Default()
	cfg.Audio.LatencyMs = 40

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.WithFlags(fs)
	if err := fs.Parse([]string{"--backend", "wav:out.wav", "--debug", "-c", "x.yaml"}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.Audio.Backend != "wav:out.wav" {
		t.Errorf("expected wav backend, got %q", cfg.Audio.Backend)
	}
	if !cfg.Log.Debug {
		t.Error("expected debug enabled")
	}
	if cfg.Audio.LatencyMs != 40 {
		t.Errorf("expected untouched latency 40, got %d", cfg.Audio.LatencyMs)
	}
}

func TestPath(t *testing.T) {
	tests := []struct {
		args     []string
		expected string
	}{
		{[]string{"-c", "a.yaml"}, "a.yaml"},
		{[]string{"--latency", "20", "--conf=b.yaml", "--debug"}, "b.yaml"},
		{[]string{"--debug"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := Path(tt.args); got != tt.expected {
			t.Errorf("Path(%v): expected %q, got %q", tt.args, tt.expected, got)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{"unknown backend", func(c *Config) { c.Audio.Backend = "pulse" }, true, nil},
		{"zero latency", func(c *Config) { c.Audio.LatencyMs = 0 }, true, nil},
		{"zero streams", func(c *Config) { c.Mixer.MaxStreams = 0 }, true, nil},
		{"negative budget", func(c *Config) { c.Mixer.MaxMusic = -1 }, true, nil},
		{"bad control port", func(c *Config) { c.Control.Enabled = true; c.Control.Port = 70000 }, true, nil},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = -1 }, true, nil},
		{"buffers clamped", func(c *Config) { c.Audio.Buffers = 500 }, false, func(t *testing.T, c *Config) {
			if c.Audio.Buffers != 64 {
				t.Errorf("expected 64 buffers, got %d", c.Audio.Buffers)
			}
		}},
		{"levels clamped", func(c *Config) { c.Mixer.MusicLevel = 2; c.Audio.MasterVolume = -1 }, false, func(t *testing.T, c *Config) {
			if c.Mixer.MusicLevel != 1 || c.Audio.MasterVolume != 0 {
				t.Errorf("expected clamped levels, got %v and %v", c.Mixer.MusicLevel, c.Audio.MasterVolume)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
