package field

// diffuseRadius gives a 5×5 neighbourhood.
const diffuseRadius = 2

const diffuseArea = (2*diffuseRadius + 1) * (2*diffuseRadius + 1)

// DiffuseRows blends rows [y0, y1) of the committed buffer toward their 5×5
// toroidal mean by diffuseRate, scales by (1-decayRate) and writes the result to
// scratch. Rows are independent, so disjoint ranges may run concurrently.
func (f *Field) DiffuseRows(y0, y1 int, diffuseRate, decayRate float32) {
	w, h := f.W, f.H
	src := f.cur
	dst := f.next
	keep := 1 - decayRate

	var rows [2*diffuseRadius + 1]int
	var cols [2*diffuseRadius + 1]int

	for y := y0; y < y1; y++ {
		for k := range rows {
			rows[k] = modInt(y+k-diffuseRadius, h) * w
		}
		for x := 0; x < w; x++ {
			for k := range cols {
				cols[k] = modInt(x+k-diffuseRadius, w)
			}

			var sum float32
			for _, r := range rows {
				for _, c := range cols {
					sum += src[r+c]
				}
			}
			mean := sum / diffuseArea

			i := y*w + x
			c := src[i]
			dst[i] = (c + (mean-c)*diffuseRate) * keep
		}
	}
}

// Diffuse runs DiffuseRows over the whole grid on the calling goroutine.
func (f *Field) Diffuse(diffuseRate, decayRate float32) {
	f.DiffuseRows(0, f.H, diffuseRate, decayRate)
}
