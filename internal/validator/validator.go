// Package validator rejects uploads that are unlikely to be colonoscopy
// frames. The checks are heuristics over colour statistics, vignetting and
// texture; none of them is a classifier.
package validator

import (
	"image"

	"github.com/montanaflynn/stats"

	"github.com/Brownie44l1/crcseg-api/internal/conf"
	"github.com/Brownie44l1/crcseg-api/internal/errorx"
	"github.com/Brownie44l1/crcseg-api/internal/img"
)

// Names of the individual heuristics. They appear in logs and metrics only.
const (
	CheckDecode     = "decode"
	CheckSize       = "size"
	CheckBlueRatio  = "red_over_blue"
	CheckGreenRatio = "green_dominant"
	CheckGrayscale  = "grayscale"
	CheckHue        = "hue_share"
	CheckWhite      = "white_background"
	CheckCoolColors = "cool_colors"
	CheckVignette   = "vignette"
	CheckDarkCenter = "dark_center"
	CheckUniform    = "uniform"
	CheckEdges      = "edge_density"
)

const (
	MinSide = 300

	redOverBlue      = 1.15
	greenOverRed     = 1.2
	minSaturation    = 30
	minWarmShare     = 0.20
	maxWhiteShare    = 0.60
	maxCoolShare     = 0.30
	maxYellowShare   = 0.25
	maxEdgeToCenter  = 0.90
	minCenterValue   = 50
	minCenterStd     = 12
	maxEdgeStrength  = 35
	borderFraction   = 0.2
	centerLowerBound = 0.3
	centerUpperBound = 0.7
)

type Verdict struct {
	Accepted bool   `json:"valid"`
	Reason   string `json:"reason"`
	// Check names the failed heuristic and is never sent to clients.
	Check string `json:"-"`
}

func accept() Verdict {
	return Verdict{Accepted: true, Reason: "validation passed"}
}

func reject(check string) Verdict {
	return Verdict{Reason: errorx.RejectionMessage, Check: check}
}

// Err converts a rejected verdict into a ValidationRejection.
func (v Verdict) Err() error {
	if v.Accepted {
		return nil
	}
	return errorx.NewRejection()
}

// Validate decodes data and runs every heuristic. It never panics on
// malformed input; a decode failure is a rejection.
func Validate(data []byte) Verdict {
	d, err := img.Decode(data)
	if err != nil {
		conf.Log.Debugf("validation decode failed: %v", err)
		return reject(CheckDecode)
	}
	return ValidateImage(d.Image)
}

// ValidateImage runs the heuristics on an already normalised frame.
func ValidateImage(m *image.NRGBA) Verdict {
	w, h := m.Rect.Dx(), m.Rect.Dy()
	if w < MinSide || h < MinSide {
		return reject(CheckSize)
	}
	f := measure(m)
	switch {
	case f.meanR <= f.meanB*redOverBlue:
		return reject(CheckBlueRatio)
	case f.meanG > f.meanR*greenOverRed:
		return reject(CheckGreenRatio)
	case f.meanS < minSaturation:
		return reject(CheckGrayscale)
	case f.warmShare < minWarmShare:
		return reject(CheckHue)
	case f.whiteShare > maxWhiteShare:
		return reject(CheckWhite)
	case f.coolShare > maxCoolShare || f.yellowShare > maxYellowShare:
		return reject(CheckCoolColors)
	case f.edgeValue/(f.centerValue+1e-6) > maxEdgeToCenter:
		return reject(CheckVignette)
	case f.centerValue < minCenterValue:
		return reject(CheckDarkCenter)
	case f.centerStd < minCenterStd:
		return reject(CheckUniform)
	case f.edgeStrength > maxEdgeStrength:
		return reject(CheckEdges)
	}
	return accept()
}

type features struct {
	meanR, meanG, meanB, meanS float64
	warmShare                  float64
	whiteShare                 float64
	coolShare, yellowShare     float64
	edgeValue, centerValue     float64
	centerStd                  float64
	edgeStrength               float64
}

func measure(m *image.NRGBA) features {
	w, h := m.Rect.Dx(), m.Rect.Dy()
	n := float64(w * h)

	bw, bh := int(float64(w)*borderFraction), int(float64(h)*borderFraction)
	cx0, cx1 := int(float64(w)*centerLowerBound), int(float64(w)*centerUpperBound)
	cy0, cy1 := int(float64(h)*centerLowerBound), int(float64(h)*centerUpperBound)
	cw, ch := cx1-cx0, cy1-cy0

	var sumR, sumG, sumB, sumS float64
	var warm, white, cool, yellow int
	var top, bottom, left, right, center float64
	centerR := make(stats.Float64Data, 0, cw*ch)
	centerG := make(stats.Float64Data, 0, cw*ch)
	centerB := make(stats.Float64Data, 0, cw*ch)
	gray := make([]float64, 0, cw*ch)

	for y := 0; y < h; y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+w*4]
		for x := 0; x < w; x++ {
			r, g, b := row[x*4], row[x*4+1], row[x*4+2]
			hue, s, v := hsv(r, g, b)
			sumR += float64(r)
			sumG += float64(g)
			sumB += float64(b)
			sumS += s

			if (hue <= 30 || hue >= 165) && s > 20 {
				warm++
			}
			if v > 220 && s < 30 {
				white++
			}
			if hue >= 50 && hue <= 130 && s > 50 {
				cool++
			}
			if hue >= 20 && hue <= 30 && s > 50 && v > 200 {
				yellow++
			}

			if y < bh {
				top += v
			}
			if y >= h-bh {
				bottom += v
			}
			if x < bw {
				left += v
			}
			if x >= w-bw {
				right += v
			}
			if x >= cx0 && x < cx1 && y >= cy0 && y < cy1 {
				center += v
				centerR = append(centerR, float64(r))
				centerG = append(centerG, float64(g))
				centerB = append(centerB, float64(b))
				gray = append(gray, (float64(r)+float64(g)+float64(b))/3)
			}
		}
	}

	f := features{
		meanR:       sumR / n,
		meanG:       sumG / n,
		meanB:       sumB / n,
		meanS:       sumS / n,
		warmShare:   float64(warm) / n,
		whiteShare:  float64(white) / n,
		coolShare:   float64(cool) / n,
		yellowShare: float64(yellow) / n,
		centerValue: center / float64(cw*ch),
	}
	f.edgeValue, _ = stats.Mean(stats.Float64Data{
		safeDiv(top, float64(bh*w)),
		safeDiv(bottom, float64(bh*w)),
		safeDiv(left, float64(bw*h)),
		safeDiv(right, float64(bw*h)),
	})
	stdR, _ := stats.StandardDeviationPopulation(centerR)
	stdG, _ := stats.StandardDeviationPopulation(centerG)
	stdB, _ := stats.StandardDeviationPopulation(centerB)
	f.centerStd = (stdR + stdG + stdB) / 3
	f.edgeStrength = edgeStrength(gray, cw, ch)
	return f
}

// edgeStrength averages the mean absolute vertical and horizontal first
// differences of a row-major grey window.
func edgeStrength(gray []float64, w, h int) float64 {
	if w < 2 || h < 2 {
		return 0
	}
	var dv, dh float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := gray[y*w+x]
			if y+1 < h {
				dv += abs(gray[(y+1)*w+x] - v)
			}
			if x+1 < w {
				dh += abs(gray[y*w+x+1] - v)
			}
		}
	}
	return (dv/float64((h-1)*w) + dh/float64(h*(w-1))) / 2
}

// hsv returns hue, saturation and value all on a 0-255 scale, the byte
// layout of an 8-bit HSV image. Hue 0-255 spans the full colour wheel.
func hsv(r, g, b uint8) (float64, float64, float64) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	mx := max(rf, gf, bf)
	mn := min(rf, gf, bf)
	if mx == 0 {
		return 0, 0, 0
	}
	d := mx - mn
	s := d * 255 / mx
	if d == 0 {
		return 0, s, mx
	}
	var hue float64
	switch mx {
	case rf:
		hue = 60 * (gf - bf) / d
	case gf:
		hue = 60*(bf-rf)/d + 120
	default:
		hue = 60*(rf-gf)/d + 240
	}
	if hue < 0 {
		hue += 360
	}
	return hue * 255 / 360, s, mx
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
