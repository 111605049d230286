package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/game"
	"github.com/pthm-cable/slime/loop"
)

// runHeadless steps the simulation from timers until interrupted or until
// max ticks is reached.
func runHeadless(cfg *config.Config, opts game.Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := loop.NewTimerHost(cfg.Loop.FrameRate)
	defer host.Close()

	g, err := game.New(cfg, host, opts)
	if err != nil {
		return err
	}
	defer g.Unload()

	g.Scheduler().Start()

	status := time.NewTicker(time.Second)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("interrupted", "tick", g.Tick())
			return nil
		case <-g.Done():
			slog.Info("max ticks reached", "tick", g.Tick())
			return nil
		case <-status.C:
			if err := g.Scheduler().Err(); err != nil {
				return err
			}
			if opts.LogStats {
				slog.Info("metrics", "tick", g.Tick(), "line", g.Metrics().Format())
			}
		}
	}
}
