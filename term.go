package main

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/field"
	"github.com/pthm-cable/slime/game"
	"github.com/pthm-cable/slime/loop"
	"github.com/pthm-cable/slime/palette"
	"github.com/pthm-cable/slime/terminal"
)

// runTerm draws the field as glyphs. Events are read on their own goroutine;
// frames are pumped from this one, so drawing never races the screen.
func runTerm(cfg *config.Config, opts game.Options) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("creating screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing screen: %w", err)
	}
	defer screen.Fini()
	screen.EnableFocus()
	screen.HideCursor()

	view := terminal.NewRenderer(screen, palette.Default(), 1)

	var g *game.Game
	opts.OnRender = func(tick uint64, fv field.View) error {
		view.Draw(fv, termStatus(g, tick))
		return nil
	}

	host := loop.NewManualHost()
	g, err = game.New(cfg, host, opts)
	if err != nil {
		return err
	}
	defer g.Unload()

	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()

	fps := cfg.Screen.TargetFPS
	if fps <= 0 {
		fps = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	visibility := loop.NewVisibility(g.Scheduler())
	epoch := time.Now()
	g.Scheduler().Start()

	for {
		select {
		case ev := <-events:
			switch terminal.HandleEvent(ev) {
			case terminal.ActionQuit:
				return nil
			case terminal.ActionTogglePause:
				g.TogglePause()
				view.Draw(g.Sim().Field(), termStatus(g, g.Tick()))
			case terminal.ActionHidden:
				visibility.Inactive()
			case terminal.ActionVisible:
				visibility.Active()
			case terminal.ActionResize:
				screen.Sync()
				view.Draw(g.Sim().Field(), termStatus(g, g.Tick()))
			}
		case <-ticker.C:
			host.Frame(time.Since(epoch))
			if err := g.Scheduler().Err(); err != nil {
				return err
			}
		case <-g.Done():
			return nil
		}
	}
}

func termStatus(g *game.Game, tick uint64) string {
	status := fmt.Sprintf(" tick %d  %s", tick, g.Metrics().Format())
	if g.Paused() {
		status += "  [paused]"
	}
	return status + "  (space pause, q quit)"
}
