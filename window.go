package main

import (
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/field"
	"github.com/pthm-cable/slime/game"
	"github.com/pthm-cable/slime/loop"
	"github.com/pthm-cable/slime/palette"
	"github.com/pthm-cable/slime/renderer"
)

// runWindow shows the field in a raylib window. The window's own frame loop
// pumps a ManualHost, so every scheduler callback runs on the GL thread.
func runWindow(cfg *config.Config, opts game.Options) error {
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), "Slime")
	defer rl.CloseWindow()

	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	fieldRenderer := renderer.NewFieldRenderer(cfg.Derived.FieldW, cfg.Derived.FieldH, palette.Default(), 1)
	fieldRenderer.Init()
	defer fieldRenderer.Unload()

	opts.OnRender = func(_ uint64, view field.View) error {
		fieldRenderer.Upload(view)
		return nil
	}

	host := loop.NewManualHost()
	g, err := game.New(cfg, host, opts)
	if err != nil {
		return err
	}
	defer g.Unload()

	visibility := loop.NewVisibility(g.Scheduler())
	epoch := time.Now()
	g.Scheduler().Start()

	for !rl.WindowShouldClose() {
		if rl.IsWindowMinimized() || rl.IsWindowHidden() {
			visibility.Inactive()
		} else {
			visibility.Active()
		}
		if rl.IsKeyPressed(rl.KeySpace) {
			g.TogglePause()
		}

		host.Frame(time.Since(epoch))

		rl.BeginDrawing()
		rl.ClearBackground(rl.Black)
		fieldRenderer.Draw(float32(rl.GetScreenWidth()), float32(rl.GetScreenHeight()))
		renderer.DrawHUD(g.Metrics().Format(), g.Paused() && !visibility.Paused())
		rl.EndDrawing()

		if err := g.Scheduler().Err(); err != nil {
			return err
		}
		select {
		case <-g.Done():
			return nil
		default:
		}
	}
	return nil
}
