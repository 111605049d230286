package field

import (
	"log/slog"

	"gonum.org/v1/gonum/blas/blas32"
)

// View is a read-only handle on a committed buffer. It stays valid until the
// next Swap; renderers copy out what they need inside their render callback.
type View struct {
	w, h int
	data []float32
}

// ViewOf wraps a row-major w×h buffer. data is not copied.
func ViewOf(w, h int, data []float32) View {
	return View{w: w, h: h, data: data[:w*h]}
}

// Width returns the grid width.
func (v View) Width() int { return v.w }

// Height returns the grid height.
func (v View) Height() int { return v.h }

// At returns the value at (x, y), wrapping toroidally.
func (v View) At(x, y int) float32 {
	return v.data[modInt(y, v.h)*v.w+modInt(x, v.w)]
}

// CopyTo copies the buffer into dst and returns the number of cells copied.
func (v View) CopyTo(dst []float32) int {
	return copy(dst, v.data)
}

// Snapshot returns a copy of the buffer.
func (v View) Snapshot() []float32 {
	out := make([]float32, len(v.data))
	copy(out, v.data)
	return out
}

// Stats holds aggregate values over a committed buffer.
type Stats struct {
	Total float64 `csv:"total"`
	Mean  float64 `csv:"mean"`
	Peak  float64 `csv:"peak"`
}

// Stats computes total mass, mean and peak. Cells are non-negative, so the
// absolute sum is the sum.
func (v View) Stats() Stats {
	n := len(v.data)
	if n == 0 {
		return Stats{}
	}
	vec := blas32.Vector{N: n, Inc: 1, Data: v.data}
	total := float64(blas32.Asum(vec))
	peak := float64(v.data[blas32.Iamax(vec)])
	return Stats{
		Total: total,
		Mean:  total / float64(n),
		Peak:  peak,
	}
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("total", s.Total),
		slog.Float64("mean", s.Mean),
		slog.Float64("peak", s.Peak),
	)
}

// Downsample averages factor×factor blocks into a new view. Edge blocks that
// do not fit are averaged over the cells they cover. factor <= 1 returns v.
func (v View) Downsample(factor int) View {
	if factor <= 1 {
		return v
	}
	w := (v.w + factor - 1) / factor
	h := (v.h + factor - 1) / factor
	out := make([]float32, w*h)

	for by := 0; by < h; by++ {
		y0, y1 := by*factor, min((by+1)*factor, v.h)
		for bx := 0; bx < w; bx++ {
			x0, x1 := bx*factor, min((bx+1)*factor, v.w)
			var sum float32
			for y := y0; y < y1; y++ {
				row := v.data[y*v.w : (y+1)*v.w]
				for x := x0; x < x1; x++ {
					sum += row[x]
				}
			}
			out[by*w+bx] = sum / float32((y1-y0)*(x1-x0))
		}
	}
	return View{w: w, h: h, data: out}
}

// Quantize maps each cell to 0..255 with v/scale clamped to [0,1], writing
// into dst (grown as needed).
func (v View) Quantize(dst []uint8, scale float32) []uint8 {
	n := len(v.data)
	if cap(dst) < n {
		dst = make([]uint8, n)
	}
	dst = dst[:n]
	if scale <= 0 {
		scale = 1
	}
	for i, c := range v.data {
		t := c / scale
		switch {
		case t <= 0:
			dst[i] = 0
		case t >= 1:
			dst[i] = 255
		default:
			dst[i] = uint8(t*255 + 0.5)
		}
	}
	return dst
}
