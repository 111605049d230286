package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/field"
	"github.com/pthm-cable/slime/game"
	"github.com/pthm-cable/slime/loop"
	"github.com/pthm-cable/slime/stream"
)

const shutdownTimeout = 5 * time.Second

// runServe steps the simulation from timers and streams every FrameEvery-th
// rendered frame to websocket clients.
func runServe(cfg *config.Config, opts game.Options) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	factor := max(cfg.Stream.Downsample, 1)
	every := uint64(max(cfg.Stream.FrameEvery, 1))

	var hub *stream.Hub
	var renders uint64
	opts.OnRender = func(tick uint64, view field.View) error {
		renders++
		if renders%every == 0 {
			hub.Publish(stream.NewFrame(tick, view, factor, 1))
		}
		return nil
	}

	host := loop.NewTimerHost(cfg.Loop.FrameRate)
	defer host.Close()

	g, err := game.New(cfg, host, opts)
	if err != nil {
		return err
	}
	defer g.Unload()

	w := (cfg.Derived.FieldW + factor - 1) / factor
	h := (cfg.Derived.FieldH + factor - 1) / factor
	hub = stream.NewHub(w, h, g.Metrics(), g.Scheduler(), slog.Default())

	srv := &http.Server{
		Addr:              cfg.Stream.Addr,
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	eg, ctx := errgroup.WithContext(runCtx)

	eg.Go(func() error {
		slog.Info("serving field stream", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		return hub.Run(ctx)
	})

	eg.Go(func() error {
		g.Scheduler().Start()
		defer g.Scheduler().Stop()

		status := time.NewTicker(time.Second)
		defer status.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-g.Done():
				slog.Info("max ticks reached", "tick", g.Tick())
				cancel()
				return nil
			case <-status.C:
				if err := g.Scheduler().Err(); err != nil {
					return err
				}
			}
		}
	})

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
