// Package field implements the double-buffered toroidal trail grid.
package field

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSize is returned for non-positive grid dimensions.
var ErrInvalidSize = errors.New("field: invalid size")

// Field is a W×H scalar grid with a committed buffer (cur) and a scratch buffer
// (next). Steps read cur and write next; Swap commits next.
//
// Cells written during a step must be disjoint between concurrent writers.
// Nothing synchronizes inside a step; Swap is the only commit point.
type Field struct {
	W, H int

	cur  []float32
	next []float32
}

// New allocates a zeroed field.
func New(w, h int) (*Field, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	return &Field{
		W:    w,
		H:    h,
		cur:  make([]float32, w*h),
		next: make([]float32, w*h),
	}, nil
}

// Current returns a read-only view of the last committed step.
func (f *Field) Current() View {
	return View{w: f.W, h: f.H, data: f.cur}
}

// Swap commits the scratch buffer. The old committed buffer becomes scratch.
func (f *Field) Swap() {
	f.cur, f.next = f.next, f.cur
}

// Index returns the flat index of (x, y) after toroidal wrapping.
func (f *Field) Index(x, y int) int {
	return modInt(y, f.H)*f.W + modInt(x, f.W)
}

// At returns the committed value at (x, y), wrapping toroidally.
func (f *Field) At(x, y int) float32 {
	return f.cur[f.Index(x, y)]
}

// Sum3x3 returns the sum of the committed 3×3 neighbourhood centred on (x, y).
func (f *Field) Sum3x3(x, y int) float32 {
	var sum float32
	for oy := -1; oy <= 1; oy++ {
		row := modInt(y+oy, f.H) * f.W
		for ox := -1; ox <= 1; ox++ {
			sum += f.cur[row+modInt(x+ox, f.W)]
		}
	}
	return sum
}

// Deposit overwrites the scratch cell at (x, y). Concurrent deposits to the same
// cell are not allowed; callers serialize them.
func (f *Field) Deposit(x, y int, v float32) {
	f.next[f.Index(x, y)] = v
}

// Set overwrites the committed cell at (x, y). Used to seed fields in tools and
// tests, never during a step.
func (f *Field) Set(x, y int, v float32) {
	f.cur[f.Index(x, y)] = v
}

// Fill overwrites every committed cell.
func (f *Field) Fill(v float32) {
	for i := range f.cur {
		f.cur[i] = v
	}
}

// Wrap maps c into [0, dim) toroidally. Values already inside are returned
// unchanged; others use fract(c/dim)*dim.
func Wrap(c, dim float32) float32 {
	if c >= 0 && c < dim {
		return c
	}
	r := fract(float64(c)/float64(dim)) * float64(dim)
	w := float32(r)
	// fract of a tiny negative rounds up to 1.
	if w >= dim || w < 0 {
		return 0
	}
	return w
}

func fract(x float64) float64 {
	return x - math.Floor(x)
}

func modInt(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
