// ABOUTME: Root play command wiring the player to its front ends
// ABOUTME: Runs the TUI, shell or headless wait alongside the event feed under one errgroup
package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Resonate-Protocol/streamplayer-go/internal/config"
	"github.com/Resonate-Protocol/streamplayer-go/internal/discovery"
	"github.com/Resonate-Protocol/streamplayer-go/internal/eventfeed"
	"github.com/Resonate-Protocol/streamplayer-go/internal/logger"
	"github.com/Resonate-Protocol/streamplayer-go/internal/meter"
	"github.com/Resonate-Protocol/streamplayer-go/internal/record"
	"github.com/Resonate-Protocol/streamplayer-go/internal/shell"
	"github.com/Resonate-Protocol/streamplayer-go/internal/ui"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/output"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/source"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/streamplayer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type frontEnd int

const (
	headless frontEnd = iota
	tui
	interactive
)

func (a *app) chooseFrontEnd(cfg *config.Config) frontEnd {
	stdin := a.isTerminal(os.Stdin.Fd())
	stdout := a.isTerminal(os.Stdout.Fd())
	switch {
	case cfg.UI.TUI && stdin && stdout:
		return tui
	case stdin:
		return interactive
	default:
		return headless
	}
}

func (a *app) runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := a.load()
	if err != nil {
		return err
	}
	mode := a.chooseFrontEnd(cfg)

	if mode == headless && len(args) == 0 && cfg.Events.Addr == "" {
		return errors.New("a source is required when not attached to a terminal")
	}

	log, closeLog, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    mode == headless,
		Stderr:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	factory, err := output.NewFactory(cfg.Output.Backend)
	if err != nil {
		return err
	}
	player, err := streamplayer.New(streamplayer.Config{
		Devices:          factory,
		DeviceName:       cfg.Output.Device,
		ChunkSize:        cfg.Playback.ChunkSize,
		PausePoll:        cfg.Playback.PausePoll,
		StopGrace:        cfg.Playback.StopGrace,
		Speed:            cfg.Playback.Speed,
		OutputBufferSize: cfg.Output.BufferSize,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	defer player.Close()

	levels := meter.New(meter.DefaultBands)
	player.AddListener(levels)

	if cfg.Record.Path != "" {
		rec := record.New(cfg.Record.Path, log)
		player.AddListener(rec)
		defer rec.Close()
	}

	// controls exist only while a device is open, so the initial gain waits for Playing
	gain := cfg.Playback.GainDB
	player.AddListener(&streamplayer.Callbacks{OnStatus: func(e streamplayer.Event) {
		if e.Status == streamplayer.Playing && gain != 0 {
			if err := player.SetLogScaleGain(gain); err == nil {
				gain = 0
			}
		}
	}})

	finished := make(chan error, 1)
	player.AddListener(playbackEnd(finished))

	var bridge *ui.Bridge
	if mode == tui {
		bridge = ui.NewBridge()
		player.AddListener(bridge)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Events.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Events.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Events.Addr, err)
		}
		name := feedName(cfg)
		feed := eventfeed.New(eventfeed.Config{Name: name, Logger: log}, player)
		player.AddListener(feed)
		g.Go(func() error { return feed.Serve(gctx, ln) })

		if cfg.Events.Advertise {
			mgr := discovery.NewManager(discovery.Config{
				ServiceName: name,
				Port:        ln.Addr().(*net.TCPAddr).Port,
				Path:        eventfeed.Path,
				Logger:      log,
			})
			if err := mgr.Advertise(); err != nil {
				log.Warn("mDNS advertisement failed", zap.Error(err))
			}
			defer mgr.Stop()
		}
	}

	if len(args) == 1 {
		if err := player.Open(origin(args[0])); err != nil {
			cancel()
			g.Wait()
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		if err := player.Play(); err != nil {
			cancel()
			g.Wait()
			return fmt.Errorf("failed to start playback: %w", err)
		}
	}

	g.Go(func() error {
		defer cancel()
		switch mode {
		case tui:
			return ui.Run(gctx, ui.Config{Controller: player, Levels: levels, Bridge: bridge})
		case interactive:
			home, _ := os.UserHomeDir()
			return shell.Run(gctx, player, shell.Config{
				HistoryFile: filepath.Join(home, ".streamplayer_history"),
				Logger:      log,
			})
		default:
			if len(args) == 0 {
				<-gctx.Done()
				return nil
			}
			select {
			case err := <-finished:
				return err
			case <-gctx.Done():
				return nil
			}
		}
	})

	return g.Wait()
}

// playbackEnd reports the Stopped that follows end of media, or a Stopped
// carrying a playback error
func playbackEnd(finished chan<- error) streamplayer.Listener {
	eom := false
	return &streamplayer.Callbacks{OnStatus: func(e streamplayer.Event) {
		switch e.Status {
		case streamplayer.EndOfMedia:
			eom = true
		case streamplayer.Playing, streamplayer.Opening:
			eom = false
		case streamplayer.Stopped:
			var result error
			if err, ok := e.Description.(error); ok {
				result = fmt.Errorf("playback failed: %w", err)
			} else if !eom {
				return
			}
			select {
			case finished <- result:
			default:
			}
		}
	}}
}

// origin maps "-" to standard input
func origin(arg string) any {
	if arg == "-" {
		return source.NewStream(os.Stdin)
	}
	return arg
}

func feedName(cfg *config.Config) string {
	if cfg.Events.Name != "" {
		return cfg.Events.Name
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return host + "-streamplayer"
}
