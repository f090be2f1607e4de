package model

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/crcseg-api/internal/conf"
	"github.com/Brownie44l1/crcseg-api/internal/errorx"
	"github.com/Brownie44l1/crcseg-api/internal/mask"
	"github.com/Brownie44l1/crcseg-api/internal/preprocess"
)

func tensor() *preprocess.Tensor {
	return &preprocess.Tensor{Data: make([]float32, 3*preprocess.Size*preprocess.Size)}
}

func TestStrategyFor(t *testing.T) {
	s, err := StrategyFor([]int64{1, 1, 256, 256})
	require.NoError(t, err)
	assert.Equal(t, StrategySigmoid, s)

	s, err = StrategyFor([]int64{1, 2, 256, 256})
	require.NoError(t, err)
	assert.Equal(t, StrategySoftmax, s)

	s, err = StrategyFor([]int64{1, 3, 256, 256})
	require.NoError(t, err)
	assert.Equal(t, StrategyArgmax, s)

	_, err = StrategyFor([]int64{1, 0, 256, 256})
	assert.Error(t, err)
	_, err = StrategyFor([]int64{1, 256, 256})
	assert.Error(t, err)
}

func TestSigmoidDecodeClamps(t *testing.T) {
	p, err := StrategySigmoid.Decode([]float32{-0.5, 0.2, 0.7, 3, float32(math.NaN()), 0.5}, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, p.W)
	assert.Equal(t, 2, p.H)
	assert.Equal(t, []float32{0, 0.2, 0.7, 1, 0, 0.5}, p.Data)
	assert.Equal(t, []uint8{0, 0, 1, 1, 0, 0}, p.Binarize(mask.Threshold).Data)
}

func TestSoftmaxDecode(t *testing.T) {
	// two channels, two pixels: background wins on the first, foreground on the second
	data := []float32{
		3, -1, // background logits
		0, 2, // foreground logits
	}
	p, err := StrategySoftmax.Decode(data, 2, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(3)), p.Data[0], 1e-6)
	assert.InDelta(t, 1-1/(1+math.Exp(3)), p.Data[1], 1e-6)
}

func TestArgmaxDecode(t *testing.T) {
	// three classes, four pixels
	data := []float32{
		0.4, 0.2, 0.3, 0.5, // background
		0.3, 0.5, 0.3, 0.1, // class 1
		0.3, 0.3, 0.4, 0.5, // class 2
	}
	p, err := StrategyArgmax.Decode(data, 3, 2, 2)
	require.NoError(t, err)
	// background keeps the first maximum on ties
	assert.Equal(t, []float32{0, 1, 1, 0}, p.Data)
	assert.Equal(t, []uint8{0, 1, 1, 0}, p.Binarize(mask.Threshold).Data)
}

func TestDecodeShortOutput(t *testing.T) {
	_, err := StrategySigmoid.Decode(make([]float32, 3), 1, 2, 2)
	assert.Error(t, err)
	_, err = Strategy("logits").Decode(make([]float32, 4), 1, 2, 2)
	assert.Error(t, err)
}

func TestResolveShape(t *testing.T) {
	s, err := resolveShape([]int64{-1, 3, -1, -1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 256, 256}, s)

	s, err = resolveShape([]int64{1, -1, 256, 256}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 256, 256}, s)

	_, err = resolveShape([]int64{4, 3, 256, 256}, 3)
	assert.Error(t, err)
	_, err = resolveShape([]int64{3, 256, 256}, 3)
	assert.Error(t, err)
}

func TestStubFixedMask(t *testing.T) {
	b := mask.NewBinary(preprocess.Size, preprocess.Size)
	b.Set(10, 20, 1)
	s := NewStub(FixedMask(b))
	assert.True(t, s.Ready())
	assert.Equal(t, BackendStub, s.Info().Backend)

	got, err := s.Segment(context.Background(), tensor())
	require.NoError(t, err)
	assert.Equal(t, b.Data, got.Data)
}

func TestStubRejectsMalformedMask(t *testing.T) {
	short := NewStub(func(*preprocess.Tensor) *mask.Probabilities {
		return &mask.Probabilities{W: preprocess.Size, H: preprocess.Size, Data: make([]float32, 10)}
	})
	_, err := short.Predict(context.Background(), tensor())
	assert.Equal(t, errorx.InferenceFailure, errorx.CodeOf(err))

	small := NewStub(FixedMask(mask.NewBinary(128, 128)))
	_, err = small.Segment(context.Background(), tensor())
	assert.Equal(t, errorx.InferenceFailure, errorx.CodeOf(err))
}

func TestCheckOutputShape(t *testing.T) {
	assert.NoError(t, checkOutputShape([]int64{1, 1, 256, 256}))
	assert.NoError(t, checkOutputShape([]int64{1, 3, 256, 256}))
	assert.Error(t, checkOutputShape([]int64{1, 1, 128, 128}))
	assert.Error(t, checkOutputShape([]int64{1, 1, 256, 128}))
}

func TestReleaseEnvOnlyWhenOwned(t *testing.T) {
	calls := 0
	orig := destroyEnvironment
	destroyEnvironment = func() error {
		calls++
		return nil
	}
	defer func() { destroyEnvironment = orig }()

	require.NoError(t, (&Server{}).Close())
	assert.Equal(t, 0, calls)

	require.NoError(t, (&Server{ownsEnv: true}).Close())
	assert.Equal(t, 1, calls)
}

func TestStubClosed(t *testing.T) {
	s := NewStub(nil)
	require.NoError(t, s.Close())
	assert.False(t, s.Ready())
	_, err := s.Segment(context.Background(), tensor())
	assert.Equal(t, errorx.ModelUnavailable, errorx.CodeOf(err))
}

func TestStubHonoursDeadline(t *testing.T) {
	s := NewStub(nil)
	s.Delay = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Predict(ctx, tensor())
	assert.Equal(t, errorx.Timeout, errorx.CodeOf(err))
}

func TestRedDominanceDeterministic(t *testing.T) {
	in := tensor()
	plane := preprocess.Size * preprocess.Size
	in.Data[0] = 2.2
	in.Data[plane] = -1
	in.Data[2*plane] = -1

	a := RedDominance(in).Binarize(mask.Threshold)
	b := RedDominance(in).Binarize(mask.Threshold)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, uint8(1), a.Data[0])
	assert.Equal(t, 1, a.Count())
}

func TestServerMissingModel(t *testing.T) {
	_, err := NewServer(conf.ModelConf{Path: "does/not/exist.onnx", Provider: conf.ProviderCPU, Sessions: 1})
	assert.Error(t, err)
}
