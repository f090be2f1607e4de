// Package mask holds the model-resolution segmentation outputs.
package mask

import "fmt"

// Threshold is the foreground cut-off applied to probabilities.
const Threshold = 0.5

// Probabilities is a row-major W×H map of foreground probabilities in [0,1].
type Probabilities struct {
	W, H int
	Data []float32
}

// Binary is a row-major W×H mask whose values are exactly 0 or 1.
type Binary struct {
	W, H int
	Data []uint8
}

func NewBinary(w, h int) *Binary {
	return &Binary{W: w, H: h, Data: make([]uint8, w*h)}
}

func (p *Probabilities) Validate() error {
	if p.W <= 0 || p.H <= 0 || len(p.Data) != p.W*p.H {
		return fmt.Errorf("probability map %dx%d has %d values", p.W, p.H, len(p.Data))
	}
	return nil
}

// Binarize marks every pixel whose probability is strictly greater than t.
func (p *Probabilities) Binarize(t float32) *Binary {
	b := NewBinary(p.W, p.H)
	for i, v := range p.Data {
		if v > t {
			b.Data[i] = 1
		}
	}
	return b
}

func (b *Binary) At(x, y int) uint8 {
	return b.Data[y*b.W+x]
}

func (b *Binary) Set(x, y int, v uint8) {
	b.Data[y*b.W+x] = v
}

// Count returns the number of foreground pixels.
func (b *Binary) Count() int {
	n := 0
	for _, v := range b.Data {
		n += int(v)
	}
	return n
}

func (b *Binary) Total() int {
	return b.W * b.H
}

func (b *Binary) Shape() []int {
	return []int{b.H, b.W}
}
