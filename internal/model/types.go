package model

import (
	"context"
	"fmt"
	"math"

	"github.com/Brownie44l1/crcseg-api/internal/errorx"
	"github.com/Brownie44l1/crcseg-api/internal/mask"
	"github.com/Brownie44l1/crcseg-api/internal/preprocess"
)

// Strategy converts the raw output tensor into foreground probabilities.
type Strategy string

const (
	// StrategySigmoid reads a single already-activated foreground channel.
	StrategySigmoid Strategy = "sigmoid"
	// StrategySoftmax reads two-channel logits, channel 0 background, and
	// scores foreground as 1 - softmax(background).
	StrategySoftmax Strategy = "softmax"
	// StrategyArgmax marks a pixel foreground when any class other than
	// channel 0 holds the first maximum logit. Used for three or more classes.
	StrategyArgmax Strategy = "argmax"
)

const (
	BackendCPU  = "cpu"
	BackendCUDA = "cuda"
	BackendStub = "stub"
)

// Info describes the loaded model. It never changes after load.
type Info struct {
	Path        string   `json:"path,omitempty"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Strategy    Strategy `json:"strategy"`
	Backend     string   `json:"backend"`
	Sessions    int      `json:"sessions"`
}

// Segmenter runs the segmentation model. Implementations are safe for
// concurrent use.
type Segmenter interface {
	Predict(ctx context.Context, t *preprocess.Tensor) (*mask.Probabilities, error)
	Segment(ctx context.Context, t *preprocess.Tensor) (*mask.Binary, error)
	Info() Info
	Ready() bool
	Close() error
}

// StrategyFor picks the output strategy from an NCHW output shape.
func StrategyFor(outputShape []int64) (Strategy, error) {
	if len(outputShape) != 4 {
		return "", fmt.Errorf("expected 4D output, got %dD", len(outputShape))
	}
	switch c := outputShape[1]; {
	case c == 1:
		return StrategySigmoid, nil
	case c == 2:
		return StrategySoftmax, nil
	case c > 2:
		return StrategyArgmax, nil
	default:
		return "", fmt.Errorf("unsupported output channel count %d", c)
	}
}

// Decode turns a raw (1,C,H,W) output into a probability map.
func (s Strategy) Decode(data []float32, channels, h, w int) (*mask.Probabilities, error) {
	plane := h * w
	if len(data) < channels*plane {
		return nil, fmt.Errorf("output has %d values, want %d", len(data), channels*plane)
	}
	p := &mask.Probabilities{W: w, H: h, Data: make([]float32, plane)}
	switch s {
	case StrategySigmoid:
		for i := 0; i < plane; i++ {
			p.Data[i] = clamp01(data[i])
		}
	case StrategySoftmax:
		for i := 0; i < plane; i++ {
			mx := data[i]
			for c := 1; c < channels; c++ {
				mx = max(mx, data[c*plane+i])
			}
			var sum float64
			for c := 0; c < channels; c++ {
				sum += math.Exp(float64(data[c*plane+i] - mx))
			}
			bg := math.Exp(float64(data[i]-mx)) / sum
			p.Data[i] = clamp01(float32(1 - bg))
		}
	case StrategyArgmax:
		for i := 0; i < plane; i++ {
			bg := data[i]
			for c := 1; c < channels; c++ {
				if data[c*plane+i] > bg {
					p.Data[i] = 1
					break
				}
			}
		}
	default:
		return nil, fmt.Errorf("unknown strategy %q", s)
	}
	return p, p.Validate()
}

func segment(ctx context.Context, s Segmenter, t *preprocess.Tensor) (*mask.Binary, error) {
	p, err := s.Predict(ctx, t)
	if err != nil {
		return nil, err
	}
	if p.W != preprocess.Size || p.H != preprocess.Size {
		return nil, errorx.NewInferenceFailure(fmt.Errorf("mask is %dx%d, want %dx%d", p.W, p.H, preprocess.Size, preprocess.Size))
	}
	return p.Binarize(mask.Threshold), nil
}

func clamp01(v float32) float32 {
	if math.IsNaN(float64(v)) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
