package postprocess

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// DefaultJetAlpha is the colormap weight of the jet heatmap.
const DefaultJetAlpha = 0.4

// Jet maps v in [0,1] onto the blue-cyan-yellow-red JET palette.
func Jet(v float64) color.NRGBA {
	v = math.Max(0, math.Min(1, v))
	ch := func(center float64) uint8 {
		return uint8(math.Round(255 * math.Max(0, math.Min(1, 1.5-math.Abs(4*v-center)))))
	}
	return color.NRGBA{R: ch(3), G: ch(2), B: ch(1), A: 0xff}
}

// JetHeatmap colours the whole frame by heat = 1 - d/max(d) and blends it
// over original with weight alpha. A mask without foreground yields a copy of
// original.
func JetHeatmap(original *image.NRGBA, field *DistanceField, alpha float64) *image.NRGBA {
	out := imaging.Clone(original)
	maxD := field.Max()
	if maxD == 0 && math.IsInf(field.Data[0], 1) {
		return out
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultJetAlpha
	}
	for y := 0; y < field.H; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < field.W; x++ {
			heat := 1.0
			if maxD > 0 {
				heat = 1 - field.At(x, y)/maxD
			}
			c := Jet(heat)
			p := row[x*4 : x*4+3 : x*4+3]
			p[0] = mix(p[0], c.R, alpha)
			p[1] = mix(p[1], c.G, alpha)
			p[2] = mix(p[2], c.B, alpha)
		}
	}
	return out
}
