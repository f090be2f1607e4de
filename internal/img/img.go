// Package img holds the request-scoped image types and the decode, colour
// normalisation and encode steps shared by every pipeline stage.
package img

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/crcseg-api/internal/errorx"
)

// MaxPixels caps decoded frames so a crafted header cannot allocate unbounded memory.
const MaxPixels = 50_000_000

// Raw is an upload as received from the client.
type Raw struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Decoded is an opaque RGB frame. Alpha is always 0xff.
type Decoded struct {
	Image  *image.NRGBA
	Format string
}

func (d *Decoded) Width() int {
	return d.Image.Rect.Dx()
}

func (d *Decoded) Height() int {
	return d.Image.Rect.Dy()
}

// Decode parses raw bytes and normalises the colour mode. Any failure is
// returned as a DecodeFailure.
func Decode(data []byte) (*Decoded, error) {
	if len(data) == 0 {
		return nil, errorx.NewDecodeFailure(fmt.Errorf("empty upload"))
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errorx.NewDecodeFailure(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, errorx.NewDecodeFailure(fmt.Errorf("unsupported dimensions %dx%d", cfg.Width, cfg.Height))
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errorx.NewDecodeFailure(err)
	}
	return &Decoded{Image: Normalize(src), Format: format}, nil
}

// Normalize returns an opaque NRGBA copy of src anchored at (0,0).
// Translucent pixels are composited over white, palette and grey images are
// expanded. Normalising an already opaque RGB image yields identical pixels.
func Normalize(src image.Image) *image.NRGBA {
	dst := imaging.Clone(src)
	pix := dst.Pix
	for i := 0; i < len(pix); i += 4 {
		a := uint32(pix[i+3])
		if a == 0xff {
			continue
		}
		for c := 0; c < 3; c++ {
			v := uint32(pix[i+c])
			pix[i+c] = uint8((v*a + 0xff*(0xff-a) + 0x7f) / 0xff)
		}
		pix[i+3] = 0xff
	}
	return dst
}

func EncodePNG(m image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DataURL(pngBytes []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}
