// ABOUTME: Entry point for the Resonate mixer
// ABOUTME: Loads config and assets, starts playback and the optional control, metrics and TUI surfaces
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/Resonate-Protocol/resonate-mixer/internal/config"
	"github.com/Resonate-Protocol/resonate-mixer/internal/control"
	"github.com/Resonate-Protocol/resonate-mixer/internal/discovery"
	"github.com/Resonate-Protocol/resonate-mixer/internal/logger"
	"github.com/Resonate-Protocol/resonate-mixer/internal/metrics"
	"github.com/Resonate-Protocol/resonate-mixer/internal/ui"
	"github.com/Resonate-Protocol/resonate-mixer/internal/version"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/mixer"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/playback"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/sound"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(config.Path(os.Args[1:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	cfg.WithFlags(pflag.CommandLine)
	discover := pflag.Bool("discover", false, "List mixers on the local network and exit")
	play := pflag.StringSlice("play", nil, "Sounds to play at startup")
	showVersion := pflag.Bool("version", false, "Print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	switch {
	case cfg.UI.Enabled:
		logger.Discard()
	case cfg.Log.Console:
		logger.NewConsole(os.Stderr, cfg.Log.Debug, false)
	default:
		logger.New(os.Stderr, cfg.Log.Debug)
	}

	if *discover {
		listMixers(3 * time.Second)
		return
	}

	if err := run(cfg, *play); err != nil {
		log.Fatal().Err(err).Msg("mixer failed")
	}
}

func run(cfg *config.Config, play []string) error {
	log.Info().Str("version", version.Version).Str("backend", cfg.Audio.Backend).Msg("starting mixer")

	m := metrics.New()
	mix := mixer.New(cfg.MixerConfig(), mixer.WithObserver(m))

	voice, err := output.New(cfg.Audio.Backend)
	if err != nil {
		return err
	}
	engine := playback.New(mix, voice, cfg.PlaybackConfig(), playback.WithObserver(m))
	m.WatchEngine(engine)

	bank := sound.NewBank(
		sound.WithWAVOptions(cfg.WAVOptions()),
		sound.WithSilentSubstitutes(cfg.Assets.SubstituteSilence),
	)
	if cfg.Assets.Dir != "" {
		if _, err := bank.LoadDir(cfg.Assets.Dir); err != nil {
			log.Warn().Err(err).Str("dir", cfg.Assets.Dir).Msg("some assets failed to load")
		}
	}

	sys := sound.NewSystem(bank, mix, engine)
	defer func() {
		if err := sys.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing playback")
		}
	}()

	if err := sys.Start(); err != nil {
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			return err
		}
		log.Error().Err(err).Msg("playback not started, control and metrics stay up")
	}

	for _, name := range play {
		if _, err := sys.PlaySound(name, false); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("startup sound failed")
		}
	}

	var shutdown []func(context.Context) error

	if cfg.Metrics.Port > 0 {
		ms, err := m.Listen(cfg.Metrics.Port)
		if err != nil {
			return err
		}
		go ms.Run()
		shutdown = append(shutdown, ms.Shutdown)
	}

	if cfg.Control.Enabled {
		srv := control.New(control.Config{
			Port:       cfg.Control.Port,
			Name:       cfg.Control.Name,
			EnableMDNS: cfg.Control.Mdns,
		}, sys)
		if err := srv.Start(); err != nil {
			return err
		}
		shutdown = append(shutdown, srv.Shutdown)
	}

	wait(cfg, sys)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(shutdown) - 1; i >= 0; i-- {
		if err := shutdown[i](ctx); err != nil {
			log.Warn().Err(err).Msg("shutdown error")
		}
	}
	log.Info().Uint64("underruns", sys.Stats().Underruns).Msg("mixer stopped")
	return nil
}

// wait blocks until a signal arrives or the TUI quits
func wait(cfg *config.Config, sys *sound.System) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if !cfg.UI.Enabled {
		sig := <-sigChan
		log.Info().Stringer("signal", sig).Msg("shutting down")
		return
	}

	prog := ui.New(sys, cfg.Audio.Backend)
	uiDone := make(chan error, 1)
	go func() {
		_, err := prog.Run()
		uiDone <- err
	}()

	select {
	case err := <-uiDone:
		if err != nil {
			fmt.Fprintf(os.Stderr, "tui: %v\n", err)
		}
	case <-sigChan:
		prog.Quit()
		<-uiDone
	}
}

func listMixers(timeout time.Duration) {
	disc := discovery.NewManager(discovery.Config{})
	defer disc.Stop()

	found := disc.Lookup(timeout)
	if len(found) == 0 {
		fmt.Println("no mixers found")
		return
	}
	for _, m := range found {
		fmt.Printf("%s\tws://%s%s\n", m.Name, m.Addr(), m.Path)
	}
}
