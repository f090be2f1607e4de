package postprocess

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Brownie44l1/crcseg-api/internal/mask"
	"github.com/Brownie44l1/crcseg-api/internal/testx"
)

func TestGradientColorBands(t *testing.T) {
	tests := []struct {
		t     float64
		c     color.NRGBA
		alpha float64
	}{
		{0, rgb(139, 0, 0), 0.75},
		{0.25, rgb(255, 0, 0), 0.65},
		{0.5, rgb(255, 140, 0), 0.5},
		{0.75, rgb(255, 255, 0), 0.3},
		{1, rgb(0, 200, 0), 0},
		{2, rgb(0, 200, 0), 0},
		{-1, rgb(139, 0, 0), 0.75},
	}
	for _, tt := range tests {
		c, a := GradientColor(tt.t)
		assert.Equal(t, tt.c, c, "t=%v", tt.t)
		assert.InDelta(t, tt.alpha, a, 1e-9, "t=%v", tt.t)
	}
}

func TestGradientAlphaMonotonic(t *testing.T) {
	_, prev := GradientColor(0)
	for i := 1; i <= 1000; i++ {
		_, a := GradientColor(float64(i) / 1000)
		assert.LessOrEqual(t, a, prev+1e-12)
		prev = a
	}
}

func TestGradientHeatmap(t *testing.T) {
	orig := testx.Solid(200, 200, color.NRGBA{R: 100, G: 100, B: 100, A: 0xff})
	b := mask.NewBinary(200, 200)
	b.Set(100, 100, 1)
	out := GradientHeatmap(orig, DistanceTransform(b), 80)

	// 0.25*100 + 0.75*139 = 129.25
	assert.Equal(t, color.NRGBA{R: 129, G: 25, B: 25, A: 0xff}, out.NRGBAAt(100, 100))
	assert.Equal(t, orig.NRGBAAt(100, 10), out.NRGBAAt(100, 10))
	assert.Equal(t, orig.NRGBAAt(0, 0), out.NRGBAAt(0, 0))
	assert.NotEqual(t, orig.NRGBAAt(100, 140), out.NRGBAAt(100, 140))
}

func TestGradientHeatmapEmptyMask(t *testing.T) {
	orig := testx.ColonoscopyFrame(50, 40)
	out := GradientHeatmap(orig, DistanceTransform(mask.NewBinary(50, 40)), 0)
	assert.Equal(t, orig.Pix, out.Pix)
}

func TestJet(t *testing.T) {
	assert.Equal(t, rgb(0, 0, 128), Jet(0))
	assert.Equal(t, rgb(128, 255, 128), Jet(0.5))
	assert.Equal(t, rgb(128, 0, 0), Jet(1))
}

func TestJetHeatmap(t *testing.T) {
	orig := testx.Solid(30, 30, color.NRGBA{R: 100, G: 100, B: 100, A: 0xff})
	assert.Equal(t, orig.Pix, JetHeatmap(orig, DistanceTransform(mask.NewBinary(30, 30)), 0.4).Pix)

	b := mask.NewBinary(30, 30)
	b.Set(0, 0, 1)
	out := JetHeatmap(orig, DistanceTransform(b), 0.4)
	// heat 1 at the seed: 0.6*100 + 0.4*(128,0,0)
	assert.Equal(t, color.NRGBA{R: 111, G: 60, B: 60, A: 0xff}, out.NRGBAAt(0, 0))
	// heat 0 at the far corner: 0.6*100 + 0.4*(0,0,128)
	assert.Equal(t, color.NRGBA{R: 60, G: 60, B: 111, A: 0xff}, out.NRGBAAt(29, 29))
}
