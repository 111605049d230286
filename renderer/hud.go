package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"
)

const (
	hudFontSize = 16
	hudPadding  = 6
)

var (
	hudBackground = rl.Color{R: 0, G: 0, B: 0, A: 160}
	hudText       = rl.Color{R: 230, G: 230, B: 230, A: 255}
	hudPaused     = rl.Color{R: 255, G: 180, B: 60, A: 255}
)

// DrawHUD draws the metrics line in the top-left corner, plus a pause marker.
func DrawHUD(metrics string, paused bool) {
	w := rl.MeasureText(metrics, hudFontSize)
	rl.DrawRectangle(0, 0, w+2*hudPadding, hudFontSize+2*hudPadding, hudBackground)
	rl.DrawText(metrics, hudPadding, hudPadding, hudFontSize, hudText)

	if paused {
		const label = "PAUSED"
		lw := rl.MeasureText(label, hudFontSize)
		x := int32(rl.GetScreenWidth()) - lw - 2*hudPadding
		rl.DrawRectangle(x, 0, lw+2*hudPadding, hudFontSize+2*hudPadding, hudBackground)
		rl.DrawText(label, x+hudPadding, hudPadding, hudFontSize, hudPaused)
	}
}
