// Package pipeline composes validation, preprocessing, inference and
// postprocessing for one uploaded image at a time.
package pipeline

import (
	"context"
	"image"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Brownie44l1/crcseg-api/internal/conf"
	"github.com/Brownie44l1/crcseg-api/internal/errorx"
	"github.com/Brownie44l1/crcseg-api/internal/img"
	"github.com/Brownie44l1/crcseg-api/internal/metrics"
	"github.com/Brownie44l1/crcseg-api/internal/model"
	"github.com/Brownie44l1/crcseg-api/internal/postprocess"
	"github.com/Brownie44l1/crcseg-api/internal/preprocess"
	"github.com/Brownie44l1/crcseg-api/internal/validator"
)

type Options struct {
	// Timeout bounds each image independently.
	Timeout        time.Duration
	MaxConcurrency int
	Validation     bool
	Heatmap        postprocess.Options
}

func OptionsFrom(c *conf.Config) Options {
	return Options{
		Timeout:        c.Timeout(),
		MaxConcurrency: c.Basic.MaxConcurrency,
		Validation:     c.Validation.Enabled,
		Heatmap:        postprocess.OptionsFrom(c.Heatmap),
	}
}

type Result struct {
	RequestID string
	Filename  string

	Original *image.NRGBA
	Overlay  *image.NRGBA
	Heatmap  *image.NRGBA

	OriginalPNG []byte
	OverlayPNG  []byte
	HeatmapPNG  []byte

	Statistics postprocess.Statistics
	Risk       postprocess.RiskLevel
	// ImageShape is (width, height) of the upload.
	ImageShape []int
	MaskShape  []int
	Backend    string
}

// Item is one entry of a batch: either Result or Err is set.
type Item struct {
	RequestID string
	Filename  string
	Result    *Result
	Err       error
}

type Pipeline struct {
	segmenter model.Segmenter
	sem       *semaphore.Weighted
	opts      Options
}

func New(segmenter model.Segmenter, opts Options) *Pipeline {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Pipeline{
		segmenter: segmenter,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		opts:      opts,
	}
}

func (p *Pipeline) Ready() bool {
	return p.segmenter != nil && p.segmenter.Ready()
}

func (p *Pipeline) ModelInfo() model.Info {
	return p.segmenter.Info()
}

// Validate runs only the validator on raw.
func (p *Pipeline) Validate(raw img.Raw) validator.Verdict {
	v := validator.Validate(raw.Data)
	if !v.Accepted {
		metrics.RejectionCounter.WithLabelValues(v.Check).Inc()
	}
	return v
}

// Process runs the full pipeline for a single upload under its own timeout.
func (p *Pipeline) Process(ctx context.Context, raw img.Raw) (*Result, error) {
	return p.process(ctx, raw, uuid.NewString())
}

// ProcessBatch processes raws in order. A failing item never affects the
// others.
func (p *Pipeline) ProcessBatch(ctx context.Context, raws []img.Raw) []Item {
	items := make([]Item, len(raws))
	for i, raw := range raws {
		id := uuid.NewString()
		res, err := p.process(ctx, raw, id)
		items[i] = Item{RequestID: id, Filename: raw.Filename, Result: res, Err: err}
	}
	return items
}

func (p *Pipeline) process(ctx context.Context, raw img.Raw, id string) (res *Result, err error) {
	log := conf.Log.WithFields(logrus.Fields{"request_id": id, "filename": raw.Filename})
	defer func() {
		code := "ok"
		if err != nil {
			code = strconv.Itoa(int(errorx.CodeOf(err)))
			if errorx.IsRejection(err) {
				log.Infof("upload rejected: %v", err)
			} else {
				log.Errorf("processing failed: %v", err)
			}
		}
		metrics.ImageCounter.WithLabelValues(code).Inc()
	}()

	if !p.Ready() {
		return nil, errorx.NewModelUnavailable("model is not loaded")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errorx.FromContext(err)
	}
	defer p.sem.Release(1)
	metrics.InflightGauge.Inc()
	defer metrics.InflightGauge.Dec()

	start := time.Now()
	decoded, err := img.Decode(raw.Data)
	metrics.ObserveStage(metrics.StageDecode, start)
	if err != nil {
		metrics.RejectionCounter.WithLabelValues(validator.CheckDecode).Inc()
		return nil, err
	}

	if p.opts.Validation {
		start = time.Now()
		v := validator.ValidateImage(decoded.Image)
		metrics.ObserveStage(metrics.StageValidate, start)
		if !v.Accepted {
			log.Debugf("validation failed check %s", v.Check)
			metrics.RejectionCounter.WithLabelValues(v.Check).Inc()
			return nil, v.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errorx.FromContext(err)
	}

	start = time.Now()
	tensor := preprocess.Preprocess(decoded)
	metrics.ObserveStage(metrics.StagePreprocess, start)
	if err := ctx.Err(); err != nil {
		return nil, errorx.FromContext(err)
	}

	start = time.Now()
	binary, err := p.segmenter.Segment(ctx, tensor)
	metrics.ObserveStage(metrics.StageInference, start)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errorx.FromContext(err)
	}

	start = time.Now()
	post := postprocess.Postprocess(decoded.Image, binary, p.opts.Heatmap)
	metrics.ObserveStage(metrics.StagePostprocess, start)

	res = &Result{
		RequestID:  id,
		Filename:   raw.Filename,
		Original:   decoded.Image,
		Overlay:    post.Overlay,
		Heatmap:    post.Heatmap,
		Statistics: post.Statistics,
		Risk:       post.Risk,
		ImageShape: []int{decoded.Width(), decoded.Height()},
		MaskShape:  post.MaskShape,
		Backend:    p.segmenter.Info().Backend,
	}

	start = time.Now()
	if err := res.encode(); err != nil {
		return nil, errorx.Wrap(errorx.InferenceFailure, "failed to encode result", err)
	}
	metrics.ObserveStage(metrics.StageEncode, start)

	metrics.RiskCounter.WithLabelValues(string(res.Risk)).Inc()
	log.Infof("segmented %dx%d image: %.2f%% coverage, %s", decoded.Width(), decoded.Height(),
		res.Statistics.CancerPercentage, res.Risk)
	return res, nil
}

func (r *Result) encode() error {
	var err error
	if r.OriginalPNG, err = img.EncodePNG(r.Original); err != nil {
		return err
	}
	if r.OverlayPNG, err = img.EncodePNG(r.Overlay); err != nil {
		return err
	}
	r.HeatmapPNG, err = img.EncodePNG(r.Heatmap)
	return err
}
