// Package testx builds synthetic frames shared by package tests.
package testx

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
)

// ColonoscopyFrame renders a reddish, smoothly textured frame with a dark
// vignette, close enough to endoscopic imagery to pass the validator.
func ColonoscopyFrame(w, h int) *image.NRGBA {
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	cx, cy := float64(w)/2, float64(h)/2
	half := math.Min(cx, cy)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rn := math.Hypot(float64(x)-cx, float64(y)-cy) / half
			f := math.Max(0.15, math.Min(1, 1-0.9*rn))
			s := math.Sin(float64(x)/9) * math.Cos(float64(y)/11)
			m.SetNRGBA(x, y, color.NRGBA{
				R: clamp(f * (210 + 40*s)),
				G: clamp(f * (100 + 30*s)),
				B: clamp(f * (80 + 30*s)),
				A: 0xff,
			})
		}
	}
	return m
}

func Solid(w, h int, c color.NRGBA) *image.NRGBA {
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return m
}

// PNG encodes m, panicking on failure since fixtures are always encodable.
func PNG(m image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func clamp(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
