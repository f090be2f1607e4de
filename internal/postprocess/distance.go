package postprocess

import (
	"math"

	"github.com/Brownie44l1/crcseg-api/internal/mask"
)

const (
	axisStep     = 1.0
	diagonalStep = math.Sqrt2
)

// DistanceField holds, for every pixel, the chamfer distance to the nearest
// foreground pixel. Pixels are +Inf when the mask has no foreground.
type DistanceField struct {
	W, H int
	Data []float64
}

func (f *DistanceField) At(x, y int) float64 {
	return f.Data[y*f.W+x]
}

// Max returns the largest finite distance, or 0 if there is none.
func (f *DistanceField) Max() float64 {
	m := 0.0
	for _, d := range f.Data {
		if !math.IsInf(d, 1) && d > m {
			m = d
		}
	}
	return m
}

// DistanceTransform runs a two-pass 3×3 chamfer transform over b.
func DistanceTransform(b *mask.Binary) *DistanceField {
	w, h := b.W, b.H
	d := make([]float64, w*h)
	for i, v := range b.Data {
		if v == 0 {
			d[i] = math.Inf(1)
		}
	}

	relax := func(i, x, y int, step float64) {
		if x < 0 || x >= w || y < 0 || y >= h {
			return
		}
		if c := d[y*w+x] + step; c < d[i] {
			d[i] = c
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if d[i] == 0 {
				continue
			}
			relax(i, x-1, y, axisStep)
			relax(i, x, y-1, axisStep)
			relax(i, x-1, y-1, diagonalStep)
			relax(i, x+1, y-1, diagonalStep)
		}
	}
	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			i := y*w + x
			if d[i] == 0 {
				continue
			}
			relax(i, x+1, y, axisStep)
			relax(i, x, y+1, axisStep)
			relax(i, x+1, y+1, diagonalStep)
			relax(i, x-1, y+1, diagonalStep)
		}
	}
	return &DistanceField{W: w, H: h, Data: d}
}
