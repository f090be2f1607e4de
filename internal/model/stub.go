package model

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/crcseg-api/internal/errorx"
	"github.com/Brownie44l1/crcseg-api/internal/mask"
	"github.com/Brownie44l1/crcseg-api/internal/preprocess"
)

// ProbFunc produces a probability map for a tensor.
type ProbFunc func(t *preprocess.Tensor) *mask.Probabilities

// Stub is an in-process Segmenter that needs no ONNX runtime. The server
// runs it only when model.stub is set, and reports the backend as "stub".
type Stub struct {
	fn ProbFunc
	// Delay simulates inference latency; it is interrupted by ctx.
	Delay  time.Duration
	closed atomic.Bool
}

func NewStub(fn ProbFunc) *Stub {
	if fn == nil {
		fn = RedDominance
	}
	return &Stub{fn: fn}
}

func (s *Stub) Info() Info {
	return Info{
		InputName:   "input",
		OutputName:  "output",
		InputShape:  []int64{1, 3, preprocess.Size, preprocess.Size},
		OutputShape: []int64{1, 1, preprocess.Size, preprocess.Size},
		Strategy:    StrategySigmoid,
		Backend:     BackendStub,
		Sessions:    1,
	}
}

func (s *Stub) Ready() bool {
	return !s.closed.Load()
}

func (s *Stub) Predict(ctx context.Context, t *preprocess.Tensor) (*mask.Probabilities, error) {
	if s.closed.Load() {
		return nil, errorx.NewModelUnavailable("model is not loaded")
	}
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, errorx.FromContext(ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errorx.FromContext(err)
	}
	p := s.fn(t)
	if err := p.Validate(); err != nil {
		return nil, errorx.NewInferenceFailure(err)
	}
	return p, nil
}

func (s *Stub) Segment(ctx context.Context, t *preprocess.Tensor) (*mask.Binary, error) {
	return segment(ctx, s, t)
}

func (s *Stub) Close() error {
	s.closed.Store(true)
	return nil
}

// FixedMask always returns b as a probability map.
func FixedMask(b *mask.Binary) ProbFunc {
	return func(*preprocess.Tensor) *mask.Probabilities {
		p := &mask.Probabilities{W: b.W, H: b.H, Data: make([]float32, len(b.Data))}
		for i, v := range b.Data {
			p.Data[i] = float32(v)
		}
		return p
	}
}

// RedDominance scores pixels whose normalised red channel clearly exceeds
// both other channels. It is a demo heuristic, not a detector.
func RedDominance(t *preprocess.Tensor) *mask.Probabilities {
	plane := preprocess.Size * preprocess.Size
	p := &mask.Probabilities{W: preprocess.Size, H: preprocess.Size, Data: make([]float32, plane)}
	for i := 0; i < plane; i++ {
		r, g, b := t.Data[i], t.Data[plane+i], t.Data[2*plane+i]
		score := float64(r - max(g, b) - 1.5)
		p.Data[i] = float32(1 / (1 + math.Exp(-6*score)))
	}
	return p
}
