// Package postprocess derives the overlay, heatmap, statistics and risk tier
// from a binary mask and the original frame.
package postprocess

import (
	"image"

	"github.com/Brownie44l1/crcseg-api/internal/conf"
	"github.com/Brownie44l1/crcseg-api/internal/mask"
)

type Options struct {
	// Style is conf.HeatmapGradient or conf.HeatmapJet.
	Style    string
	Radius   float64
	JetAlpha float64
}

func OptionsFrom(c conf.HeatmapConf) Options {
	return Options{Style: c.Style, Radius: c.Radius, JetAlpha: c.JetAlpha}
}

func DefaultOptions() Options {
	return Options{Style: conf.HeatmapGradient, Radius: DefaultRadius, JetAlpha: DefaultJetAlpha}
}

type Result struct {
	Overlay    *image.NRGBA
	Heatmap    *image.NRGBA
	Statistics Statistics
	Risk       RiskLevel
	// MaskShape is the model-resolution mask shape as (height, width).
	MaskShape []int
}

// Postprocess is a pure function of its inputs. Statistics and risk are
// computed on b at model resolution; overlay and heatmap at the original's.
func Postprocess(original *image.NRGBA, b *mask.Binary, opts Options) *Result {
	stats := ComputeStatistics(b)
	w, h := original.Rect.Dx(), original.Rect.Dy()
	full := Upscale(b, w, h)
	field := DistanceTransform(full)

	var heatmap *image.NRGBA
	if opts.Style == conf.HeatmapJet {
		heatmap = JetHeatmap(original, field, opts.JetAlpha)
	} else {
		heatmap = GradientHeatmap(original, field, opts.Radius)
	}

	return &Result{
		Overlay:    Overlay(original, full),
		Heatmap:    heatmap,
		Statistics: stats,
		Risk:       ClassifyRisk(stats.CancerPercentage),
		MaskShape:  b.Shape(),
	}
}
