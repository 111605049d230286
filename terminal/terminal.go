// Package terminal draws the trail field as shaded glyphs in a tcell screen.
package terminal

import (
	"github.com/gdamore/tcell/v2"

	"github.com/pthm-cable/slime/field"
	"github.com/pthm-cable/slime/palette"
)

// Action is what an input event asks the viewer to do.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionTogglePause
	ActionHidden  // focus lost
	ActionVisible // focus regained
	ActionResize
)

// Renderer paints a field view into a tcell screen. The bottom row holds the
// status line.
type Renderer struct {
	screen tcell.Screen
	pal    *palette.Palette
	scale  float32

	statusStyle tcell.Style

	// Scratch reused across frames
	cells []float32
	quant []uint8
}

// NewRenderer creates a renderer for an initialized screen. scale is the
// trail value drawn at full intensity.
func NewRenderer(screen tcell.Screen, pal *palette.Palette, scale float32) *Renderer {
	if scale <= 0 {
		scale = 1
	}
	return &Renderer{
		screen:      screen,
		pal:         pal,
		scale:       scale,
		statusStyle: tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorDarkSlateGray),
	}
}

// Draw maps the field onto every row but the last, writes status on the last
// row and shows the screen. Each glyph shows the mean of the field cells it
// covers.
func (r *Renderer) Draw(view field.View, status string) {
	cols, rows := r.screen.Size()
	if cols <= 0 || rows <= 0 {
		return
	}
	fieldRows := rows - 1

	r.screen.Clear()
	if fieldRows > 0 {
		r.sample(view, cols, fieldRows)
		for y := 0; y < fieldRows; y++ {
			for x := 0; x < cols; x++ {
				q := r.quant[y*cols+x]
				c := r.pal.Color(q)
				style := tcell.StyleDefault.
					Foreground(tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))).
					Background(tcell.ColorBlack)
				r.screen.SetContent(x, y, r.pal.Shade(q), nil, style)
			}
		}
	}
	r.drawStatus(status, cols, rows-1)
	r.screen.Show()
}

// sample averages the field over a cols×rows grid of glyph cells and
// quantizes the result.
func (r *Renderer) sample(view field.View, cols, rows int) {
	n := cols * rows
	if cap(r.cells) < n {
		r.cells = make([]float32, n)
	}
	r.cells = r.cells[:n]

	fw, fh := view.Width(), view.Height()
	for y := 0; y < rows; y++ {
		y0 := y * fh / rows
		y1 := max((y+1)*fh/rows, y0+1)
		for x := 0; x < cols; x++ {
			x0 := x * fw / cols
			x1 := max((x+1)*fw/cols, x0+1)
			var sum float32
			for fy := y0; fy < y1; fy++ {
				for fx := x0; fx < x1; fx++ {
					sum += view.At(fx, fy)
				}
			}
			r.cells[y*cols+x] = sum / float32((y1-y0)*(x1-x0))
		}
	}

	r.quant = field.ViewOf(cols, rows, r.cells).Quantize(r.quant, r.scale)
}

func (r *Renderer) drawStatus(status string, cols, row int) {
	x := 0
	for _, ch := range status {
		if x >= cols {
			break
		}
		r.screen.SetContent(x, row, ch, nil, r.statusStyle)
		x++
	}
	for ; x < cols; x++ {
		r.screen.SetContent(x, row, ' ', nil, r.statusStyle)
	}
}

// HandleEvent translates a tcell event into a viewer action.
func HandleEvent(ev tcell.Event) Action {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return keyAction(ev.Key(), ev.Rune())
	case *tcell.EventFocus:
		if ev.Focused {
			return ActionVisible
		}
		return ActionHidden
	case *tcell.EventResize:
		return ActionResize
	}
	return ActionNone
}

func keyAction(key tcell.Key, ch rune) Action {
	switch key {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return ActionQuit
	case tcell.KeyRune:
		switch ch {
		case 'q', 'Q':
			return ActionQuit
		case ' ', 'p':
			return ActionTogglePause
		}
	}
	return ActionNone
}
