// Package renderer draws the trail field in a raylib window.
package renderer

import (
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/slime/field"
	"github.com/pthm-cable/slime/palette"
)

// FieldRenderer uploads the committed field into a texture and stretches it
// over the window.
type FieldRenderer struct {
	tex        rl.Texture2D
	texW, texH int

	pal   *palette.Palette
	scale float32 // Trail value drawn at full intensity

	// Scratch reused across uploads
	quant  []uint8
	pixels []color.RGBA

	initialized bool
}

// NewFieldRenderer creates a renderer for a fieldW×fieldH grid.
func NewFieldRenderer(fieldW, fieldH int, pal *palette.Palette, scale float32) *FieldRenderer {
	if scale <= 0 {
		scale = 1
	}
	return &FieldRenderer{
		texW:  fieldW,
		texH:  fieldH,
		pal:   pal,
		scale: scale,
	}
}

// Init creates the texture (must be called after raylib window is created).
func (r *FieldRenderer) Init() {
	if r.initialized {
		return
	}

	img := rl.GenImageColor(r.texW, r.texH, rl.Black)
	r.tex = rl.LoadTextureFromImage(img)
	rl.SetTextureFilter(r.tex, rl.FilterBilinear)
	rl.SetTextureWrap(r.tex, rl.WrapRepeat)
	rl.UnloadImage(img)

	r.initialized = true
}

// Upload converts the view to colors and pushes it to the GPU. Views whose
// size does not match the texture are ignored.
func (r *FieldRenderer) Upload(view field.View) {
	if !r.initialized {
		r.Init()
	}
	if view.Width() != r.texW || view.Height() != r.texH {
		return
	}

	r.quant = view.Quantize(r.quant, r.scale)
	r.pixels = r.pal.Fill(r.pixels, r.quant)
	rl.UpdateTexture(r.tex, r.pixels)
}

// Draw stretches the field texture over a screenW×screenH area.
func (r *FieldRenderer) Draw(screenW, screenH float32) {
	if !r.initialized {
		return
	}

	srcRect := rl.Rectangle{X: 0, Y: 0, Width: float32(r.texW), Height: float32(r.texH)}
	dstRect := rl.Rectangle{X: 0, Y: 0, Width: screenW, Height: screenH}
	rl.DrawTexturePro(r.tex, srcRect, dstRect, rl.Vector2{}, 0, rl.White)
}

// Unload frees GPU resources.
func (r *FieldRenderer) Unload() {
	if !r.initialized {
		return
	}
	rl.UnloadTexture(r.tex)
	r.initialized = false
}
