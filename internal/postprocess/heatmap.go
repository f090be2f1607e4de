package postprocess

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// DefaultRadius is the distance in original pixels at which the heatmap fades out.
const DefaultRadius = 80.0

type band struct {
	from, to           color.NRGBA
	alphaFrom, alphaTo float64
}

// The gradient is split into four equal bands over t = min(d, radius)/radius.
var bands = [4]band{
	{from: rgb(139, 0, 0), to: rgb(255, 0, 0), alphaFrom: 0.75, alphaTo: 0.65},
	{from: rgb(255, 0, 0), to: rgb(255, 140, 0), alphaFrom: 0.65, alphaTo: 0.5},
	{from: rgb(255, 140, 0), to: rgb(255, 255, 0), alphaFrom: 0.5, alphaTo: 0.3},
	{from: rgb(255, 255, 0), to: rgb(0, 200, 0), alphaFrom: 0.3, alphaTo: 0},
}

func rgb(r, g, b uint8) color.NRGBA {
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// GradientColor maps a normalised distance t in [0,1] to a colour and blend
// alpha. Alpha decreases monotonically and is 0 at t = 1.
func GradientColor(t float64) (color.NRGBA, float64) {
	t = math.Max(0, math.Min(1, t))
	idx := int(t * 4)
	if idx > 3 {
		idx = 3
	}
	b := bands[idx]
	local := t*4 - float64(idx)
	c := color.NRGBA{
		R: lerp8(b.from.R, b.to.R, local),
		G: lerp8(b.from.G, b.to.G, local),
		B: lerp8(b.from.B, b.to.B, local),
		A: 0xff,
	}
	return c, b.alphaFrom + (b.alphaTo-b.alphaFrom)*local
}

// GradientHeatmap blends the four-band gradient over original. Pixels at or
// beyond radius from any foreground pixel are left unchanged.
func GradientHeatmap(original *image.NRGBA, field *DistanceField, radius float64) *image.NRGBA {
	if radius <= 0 {
		radius = DefaultRadius
	}
	out := imaging.Clone(original)
	for y := 0; y < field.H; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < field.W; x++ {
			d := field.At(x, y)
			if d >= radius {
				continue
			}
			c, a := GradientColor(d / radius)
			p := row[x*4 : x*4+3 : x*4+3]
			p[0] = mix(p[0], c.R, a)
			p[1] = mix(p[1], c.G, a)
			p[2] = mix(p[2], c.B, a)
		}
	}
	return out
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

func mix(orig, c uint8, a float64) uint8 {
	return uint8(math.Round(float64(orig)*(1-a) + float64(c)*a))
}
