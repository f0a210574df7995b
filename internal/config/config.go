// ABOUTME: Application configuration
// ABOUTME: Loaded from config.yaml with fig, overridden by RESONATE_MIXER_* env vars and pflag flags
package config

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kkyr/fig"
	"github.com/spf13/pflag"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/wav"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/mixer"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/playback"
)

// EnvPrefix prefixes environment overrides, e.g. RESONATE_MIXER_AUDIO_LATENCYMS
const EnvPrefix = "RESONATE_MIXER"

// FileName is the config file looked up in each search directory
const FileName = "config.yaml"

type Audio struct {
	Backend      string
	LatencyMs    int
	Buffers      int
	Workers      int
	MasterVolume float64
	Pitch        float64
}

type Mixer struct {
	MaxStreams   int
	MaxEffects   int
	MaxMusic     int
	EffectsLevel float64
	MusicLevel   float64
}

type Assets struct {
	Dir               string
	Convert8          bool
	Convert24         bool
	Convert32         bool
	SubstituteSilence bool
}

type Control struct {
	Enabled bool
	Port    int
	Name    string
	Mdns    bool
}

type Metrics struct {
	Port int
}

type Log struct {
	Debug   bool
	Console bool
}

type UI struct {
	Enabled bool
}

// Config is the full application configuration
type Config struct {
	Audio   Audio
	Mixer   Mixer
	Assets  Assets
	Control Control
	Metrics Metrics
	Log     Log
	UI      UI
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Audio: Audio{
			Backend:      "oto",
			LatencyMs:    playback.DefaultLatencyMs,
			Buffers:      playback.DefaultBuffers,
			Workers:      mixer.DefaultWorkers,
			MasterVolume: 1,
			Pitch:        1,
		},
		Mixer: Mixer{
			MaxStreams:   mixer.DefaultMaxStreams,
			MaxEffects:   mixer.DefaultMaxEffects,
			MaxMusic:     mixer.DefaultMaxMusic,
			EffectsLevel: 1,
			MusicLevel:   1,
		},
		Assets: Assets{
			Dir:       "assets",
			Convert8:  true,
			Convert24: true,
			Convert32: true,
		},
		Control: Control{
			Port: 8928,
			Name: "Resonate Mixer",
		},
		Log: Log{Console: true},
	}
}

// Load reads the configuration. An empty path searches ".", "configs" and
// "../../configs". A missing file leaves the defaults in place; environment
// variables apply either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	opts := []fig.Option{fig.UseEnv(EnvPrefix)}
	if path != "" {
		opts = append(opts, fig.File(filepath.Base(path)), fig.Dirs(filepath.Dir(path)))
	} else {
		opts = append(opts, fig.File(FileName), fig.Dirs(".", "configs", "../../configs"))
	}

	err := fig.Load(cfg, opts...)
	if errors.Is(err, fig.ErrFileNotFound) {
		if path != "" {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		err = fig.Load(cfg, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Path extracts --conf/-c from args, ignoring every other flag
func Path(args []string) string {
	fs := pflag.NewFlagSet("conf", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	path := fs.StringP("conf", "c", "", "")
	_ = fs.Parse(args)
	return *path
}

// WithFlags binds command-line overrides. Flag defaults are the values
// already loaded, so only flags given on the command line change anything.
func (c *Config) WithFlags(fs *pflag.FlagSet) *Config {
	fs.StringP("conf", "c", "", "Set custom configuration file path")
	fs.StringVar(&c.Audio.Backend, "backend", c.Audio.Backend, "Audio output: "+strings.Join(output.Backends, ", "))
	fs.IntVar(&c.Audio.LatencyMs, "latency", c.Audio.LatencyMs, "Buffer length in milliseconds")
	fs.IntVar(&c.Audio.Buffers, "buffers", c.Audio.Buffers, "Number of ring buffers")
	fs.Float64Var(&c.Audio.MasterVolume, "volume", c.Audio.MasterVolume, "Master volume (0-1)")
	fs.StringVar(&c.Assets.Dir, "assets", c.Assets.Dir, "Directory of sound assets")
	fs.BoolVar(&c.Control.Enabled, "control", c.Control.Enabled, "Enable the websocket control server")
	fs.IntVar(&c.Control.Port, "port", c.Control.Port, "Control server port")
	fs.StringVar(&c.Control.Name, "name", c.Control.Name, "Name advertised over mDNS")
	fs.BoolVar(&c.Control.Mdns, "mdns", c.Control.Mdns, "Advertise the control server over mDNS")
	fs.IntVar(&c.Metrics.Port, "metrics.port", c.Metrics.Port, "Prometheus metrics port (0 disables)")
	fs.BoolVar(&c.Log.Debug, "debug", c.Log.Debug, "Enable debug logging")
	fs.BoolVar(&c.UI.Enabled, "tui", c.UI.Enabled, "Show the terminal UI")
	return c
}

// Validate clamps soft limits and rejects values that cannot work
func (c *Config) Validate() error {
	if _, err := output.New(c.Audio.Backend); err != nil {
		return err
	}
	if c.Audio.LatencyMs <= 0 {
		return fmt.Errorf("audio.latencyMs must be positive, got %d", c.Audio.LatencyMs)
	}
	c.Audio.Buffers = min(max(c.Audio.Buffers, playback.MinBuffers), playback.MaxBuffers)
	if c.Audio.Workers <= 0 {
		c.Audio.Workers = mixer.DefaultWorkers
	}
	c.Audio.MasterVolume = unit(c.Audio.MasterVolume)
	c.Audio.Pitch = min(max(c.Audio.Pitch, output.MinFrequencyRatio), output.MaxFrequencyRatio)

	if c.Mixer.MaxStreams <= 0 {
		return fmt.Errorf("mixer.maxStreams must be positive, got %d", c.Mixer.MaxStreams)
	}
	if c.Mixer.MaxEffects < 0 || c.Mixer.MaxMusic < 0 {
		return errors.New("mixer category limits must not be negative")
	}
	c.Mixer.EffectsLevel = unit(c.Mixer.EffectsLevel)
	c.Mixer.MusicLevel = unit(c.Mixer.MusicLevel)

	if c.Control.Enabled && (c.Control.Port <= 0 || c.Control.Port > 65535) {
		return fmt.Errorf("control.port out of range: %d", c.Control.Port)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port)
	}
	return nil
}

// WAVOptions returns the sample width conversions for asset loading
func (c *Config) WAVOptions() wav.Options {
	return wav.Options{
		Convert8:  c.Assets.Convert8,
		Convert24: c.Assets.Convert24,
		Convert32: c.Assets.Convert32,
	}
}

// MixerConfig maps the mixer section onto mixer.Config
func (c *Config) MixerConfig() mixer.Config {
	cfg := mixer.DefaultConfig()
	cfg.MaxStreams = c.Mixer.MaxStreams
	cfg.MaxPerCategory[audio.Effect] = c.Mixer.MaxEffects
	cfg.MaxPerCategory[audio.Music] = c.Mixer.MaxMusic
	cfg.Workers = c.Audio.Workers
	cfg.Levels[audio.Effect] = c.Mixer.EffectsLevel
	cfg.Levels[audio.Music] = c.Mixer.MusicLevel
	return cfg
}

// PlaybackConfig maps the audio section onto playback.Config
func (c *Config) PlaybackConfig() playback.Config {
	return playback.Config{
		LatencyMs:    c.Audio.LatencyMs,
		Buffers:      c.Audio.Buffers,
		MasterVolume: c.Audio.MasterVolume,
		Pitch:        c.Audio.Pitch,
	}
}

func unit(v float64) float64 { return min(max(v, 0), 1) }
