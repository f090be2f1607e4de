package postprocess

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/Brownie44l1/crcseg-api/internal/mask"
)

// overlayAlpha is the red tint weight out of 255.
const overlayAlpha = 180

// Upscale resizes b to w×h with nearest-neighbour sampling, so the result
// stays strictly binary.
func Upscale(b *mask.Binary, w, h int) *mask.Binary {
	if b.W == w && b.H == h {
		out := mask.NewBinary(w, h)
		copy(out.Data, b.Data)
		return out
	}
	src := image.NewGray(image.Rect(0, 0, b.W, b.H))
	for i, v := range b.Data {
		src.Pix[i] = v * 0xff
	}
	resized := imaging.Resize(src, w, h, imaging.NearestNeighbor)

	out := mask.NewBinary(w, h)
	for i := range out.Data {
		if resized.Pix[i*4] >= 0x80 {
			out.Data[i] = 1
		}
	}
	return out
}

// Overlay tints every foreground pixel of full towards pure red.
// full must already match the original's resolution; background pixels are
// copied unchanged.
func Overlay(original *image.NRGBA, full *mask.Binary) *image.NRGBA {
	out := imaging.Clone(original)
	for y := 0; y < full.H; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < full.W; x++ {
			if full.At(x, y) == 0 {
				continue
			}
			p := row[x*4 : x*4+3 : x*4+3]
			p[0] = blend(p[0], 0xff)
			p[1] = blend(p[1], 0)
			p[2] = blend(p[2], 0)
		}
	}
	return out
}

func blend(orig, tint uint8) uint8 {
	return uint8((uint32(tint)*overlayAlpha + uint32(orig)*(0xff-overlayAlpha) + 0x7f) / 0xff)
}
