package img

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/crcseg-api/internal/errorx"
)

func TestNormalizeIdempotent(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 7, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 50), B: uint8(x * y), A: 0xff})
		}
	}
	once := Normalize(src)
	twice := Normalize(once)
	assert.Equal(t, src.Pix, once.Pix)
	assert.Equal(t, once.Pix, twice.Pix)
	assert.Equal(t, once.Rect, twice.Rect)
}

func TestNormalizeCompositesAlphaOverWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 200, G: 0, B: 100, A: 128})
	out := Normalize(src)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, out.NRGBAAt(0, 0))
	got := out.NRGBAAt(1, 0)
	assert.Equal(t, uint8(255), got.A)
	assert.InDelta(t, 227, int(got.R), 1)
	assert.InDelta(t, 127, int(got.G), 1)
	assert.InDelta(t, 177, int(got.B), 1)
}

func TestNormalizeExpandsPaletteAndGray(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.RGBA{R: 10, G: 20, B: 30, A: 255}, color.RGBA{R: 40, G: 50, B: 60, A: 255}})
	pal.SetColorIndex(1, 1, 1)
	out := Normalize(pal)
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 40, G: 50, B: 60, A: 255}, out.NRGBAAt(1, 1))

	gray := image.NewGray(image.Rect(3, 3, 5, 5))
	gray.SetGray(3, 3, color.Gray{Y: 77})
	out = Normalize(gray)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Rect)
	assert.Equal(t, color.NRGBA{R: 77, G: 77, B: 77, A: 255}, out.NRGBAAt(0, 0))
}

func TestDecode(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	src.Set(1, 1, color.RGBA{R: 250, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	d, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", d.Format)
	assert.Equal(t, 4, d.Width())
	assert.Equal(t, 3, d.Height())
	assert.Equal(t, color.NRGBA{R: 250, A: 255}, d.Image.NRGBAAt(1, 1))
}

func TestDecodeFailure(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("definitely not an image"), {0x89, 'P', 'N', 'G', 0x0d, 0x0a}} {
		_, err := Decode(data)
		require.Error(t, err)
		assert.Equal(t, errorx.DecodeFailure, errorx.CodeOf(err))
	}
}

func TestDataURL(t *testing.T) {
	b, err := EncodePNG(image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	require.NoError(t, err)
	u := DataURL(b)
	assert.True(t, strings.HasPrefix(u, "data:image/png;base64,iVBOR"))
}
