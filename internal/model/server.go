package model

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/crcseg-api/internal/conf"
	"github.com/Brownie44l1/crcseg-api/internal/errorx"
	"github.com/Brownie44l1/crcseg-api/internal/mask"
	"github.com/Brownie44l1/crcseg-api/internal/preprocess"
)

// session is one AdvancedSession with its own bound tensors. It is owned by
// at most one request at a time.
type session struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func (s *session) destroy() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
}

// Server serves inference from a fixed pool of ONNX sessions.
type Server struct {
	info     Info
	channels int

	mu       sync.RWMutex
	closed   bool
	pool     chan *session
	sessions []*session
	// ownsEnv is set when this server initialised the ONNX environment.
	ownsEnv bool
}

var destroyEnvironment = ort.DestroyEnvironment

// releaseEnv tears down the ONNX environment only if the caller created it.
func releaseEnv(owned bool) error {
	if !owned {
		return nil
	}
	return destroyEnvironment()
}

// NewServer loads the model, negotiates the execution backend and opens
// c.Sessions sessions. Any failure leaves no resources behind.
func NewServer(c conf.ModelConf) (*Server, error) {
	log := conf.Log
	if _, err := os.Stat(c.Path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	ort.SetSharedLibraryPath(sharedLibPath(c.SharedLibraryPath))
	ownsEnv := false
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		ownsEnv = true
	}

	info, err := loadInfo(c.Path)
	if err != nil {
		releaseEnv(ownsEnv)
		return nil, err
	}
	n := c.Sessions
	if n <= 0 {
		n = 1
	}
	s := &Server{
		info:     info,
		channels: int(info.OutputShape[1]),
		pool:     make(chan *session, n),
		ownsEnv:  ownsEnv,
	}
	s.info.Sessions = n

	switch c.Provider {
	case conf.ProviderCUDA:
		err = s.open(c, BackendCUDA, n)
	case conf.ProviderCPU:
		err = s.open(c, BackendCPU, n)
	default:
		if err = s.open(c, BackendCUDA, n); err != nil {
			log.Warnf("CUDA unavailable, falling back to CPU: %v", err)
			err = s.open(c, BackendCPU, n)
		}
	}
	if err != nil {
		releaseEnv(ownsEnv)
		return nil, err
	}

	log.Infof("model loaded: %s (input %s %v, output %s %v, strategy %s, backend %s, sessions %d)",
		c.Path, info.InputName, info.InputShape, info.OutputName, info.OutputShape, info.Strategy, s.info.Backend, n)
	return s, nil
}

func loadInfo(path string) (Info, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return Info{}, fmt.Errorf("error getting input and output info for %s: %w", path, err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return Info{}, fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return Info{}, fmt.Errorf("model must take and return float32 tensors")
	}

	inShape, err := resolveShape(in.Dimensions, 3)
	if err != nil {
		return Info{}, fmt.Errorf("input %s: %w", in.Name, err)
	}
	if inShape[1] != 3 || inShape[2] != preprocess.Size || inShape[3] != preprocess.Size {
		return Info{}, fmt.Errorf("input %s has shape %v, want [1 3 %d %d]", in.Name, inShape, preprocess.Size, preprocess.Size)
	}
	outShape, err := resolveShape(out.Dimensions, 1)
	if err != nil {
		return Info{}, fmt.Errorf("output %s: %w", out.Name, err)
	}
	if err := checkOutputShape(outShape); err != nil {
		return Info{}, fmt.Errorf("output %s: %w", out.Name, err)
	}
	strategy, err := StrategyFor(outShape)
	if err != nil {
		return Info{}, fmt.Errorf("output %s: %w", out.Name, err)
	}
	return Info{
		Path:        path,
		InputName:   in.Name,
		OutputName:  out.Name,
		InputShape:  inShape,
		OutputShape: outShape,
		Strategy:    strategy,
	}, nil
}

// resolveShape pins dynamic NCHW dimensions: batch to 1, channels to
// defaultChannels and spatial axes to the model resolution.
func resolveShape(dims ort.Shape, defaultChannels int64) ([]int64, error) {
	if len(dims) != 4 {
		return nil, fmt.Errorf("expected 4D tensor, got %dD", len(dims))
	}
	fallback := []int64{1, defaultChannels, preprocess.Size, preprocess.Size}
	shape := make([]int64, 4)
	for i, d := range dims {
		if d <= 0 {
			d = fallback[i]
		}
		shape[i] = d
	}
	if shape[0] != 1 {
		return nil, fmt.Errorf("batch size %d is not supported", shape[0])
	}
	return shape, nil
}

// checkOutputShape requires the mask to come out at model resolution.
func checkOutputShape(shape []int64) error {
	if shape[2] != preprocess.Size || shape[3] != preprocess.Size {
		return fmt.Errorf("output has shape %v, want [1 C %d %d]", shape, preprocess.Size, preprocess.Size)
	}
	return nil
}

func sessionOptions(c conf.ModelConf, backend string) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	if c.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("intra-op threads: %w", err)
		}
	}
	if backend == BackendCUDA {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("cuda options: %w", err)
		}
		defer cudaOpts.Destroy()
		if err := cudaOpts.Update(map[string]string{"device_id": "0"}); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("cuda options: %w", err)
		}
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("cuda provider: %w", err)
		}
	}
	return opts, nil
}

// open creates n sessions on backend. On failure every session created so
// far is destroyed.
func (s *Server) open(c conf.ModelConf, backend string, n int) error {
	opts, err := sessionOptions(c, backend)
	if err != nil {
		return err
	}
	defer opts.Destroy()

	created := make([]*session, 0, n)
	for i := 0; i < n; i++ {
		sess, err := s.newSession(c.Path, opts)
		if err != nil {
			for _, cs := range created {
				cs.destroy()
			}
			return fmt.Errorf("failed to create ONNX session on %s: %w", backend, err)
		}
		created = append(created, sess)
	}
	for _, sess := range created {
		s.pool <- sess
	}
	s.sessions = created
	s.info.Backend = backend
	return nil
}

func (s *Server) newSession(path string, opts *ort.SessionOptions) (*session, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(s.info.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(s.info.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	sess, err := ort.NewAdvancedSession(path,
		[]string{s.info.InputName}, []string{s.info.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		opts)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	return &session{session: sess, inputTensor: inputTensor, outputTensor: outputTensor}, nil
}

func (s *Server) Info() Info {
	return s.info
}

func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// Predict waits for a free session, honouring ctx, and runs the model.
func (s *Server) Predict(ctx context.Context, t *preprocess.Tensor) (*mask.Probabilities, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errorx.NewModelUnavailable("model is not loaded")
	}

	var sess *session
	select {
	case sess = <-s.pool:
	case <-ctx.Done():
		return nil, errorx.FromContext(ctx.Err())
	}
	defer func() { s.pool <- sess }()

	in := sess.inputTensor.GetData()
	if len(t.Data) != len(in) {
		return nil, errorx.NewInferenceFailure(fmt.Errorf("expected %d input values, got %d", len(in), len(t.Data)))
	}
	copy(in, t.Data)

	if err := sess.session.Run(); err != nil {
		return nil, errorx.NewInferenceFailure(err)
	}

	p, err := s.info.Strategy.Decode(sess.outputTensor.GetData(), s.channels,
		int(s.info.OutputShape[2]), int(s.info.OutputShape[3]))
	if err != nil {
		return nil, errorx.NewInferenceFailure(err)
	}
	return p, nil
}

func (s *Server) Segment(ctx context.Context, t *preprocess.Tensor) (*mask.Binary, error) {
	return segment(ctx, s, t)
}

// Close waits for in-flight inference, then releases every session and the
// ONNX environment. Later calls fail with ModelUnavailable.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, sess := range s.sessions {
		sess.destroy()
	}
	s.sessions = nil
	return releaseEnv(s.ownsEnv)
}

func sharedLibPath(configured string) string {
	if configured != "" {
		return configured
	}
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "darwin":
		return "/usr/local/lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		if runtime.GOARCH == "arm64" {
			return "/usr/local/onnx/lib/onnxruntime_arm64.so"
		}
		return "/usr/local/lib/libonnxruntime.so"
	}
}
