// Package preprocess turns a decoded frame into the fixed-shape model input.
package preprocess

import (
	"github.com/nfnt/resize"

	"github.com/Brownie44l1/crcseg-api/internal/img"
)

// Size is the model's spatial input resolution.
const Size = 256

const channels = 3

// ImageNet statistics the model was trained with, in RGB order.
var (
	Mean = [channels]float32{0.485, 0.456, 0.406}
	Std  = [channels]float32{0.229, 0.224, 0.225}
)

// Tensor is a (1,3,Size,Size) NCHW float32 buffer.
type Tensor struct {
	Data []float32
}

func (t *Tensor) Shape() []int64 {
	return []int64{1, channels, Size, Size}
}

// Preprocess resizes d to Size×Size, scales it to [0,1] and normalises each
// channel. The output shape never depends on the input resolution.
func Preprocess(d *img.Decoded) *Tensor {
	resized := resize.Resize(Size, Size, d.Image, resize.Lanczos3)

	bounds := resized.Bounds()
	plane := Size * Size
	data := make([]float32, channels*plane)

	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			i := y*Size + x
			data[i] = normalize(r, 0)
			data[plane+i] = normalize(g, 1)
			data[2*plane+i] = normalize(b, 2)
		}
	}
	return &Tensor{Data: data}
}

func normalize(v uint32, c int) float32 {
	return (float32(v>>8)/255.0 - Mean[c]) / Std[c]
}
