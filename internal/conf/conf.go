package conf

import (
	"fmt"
	"runtime"
	"time"
)

const ConfFileName = "crcseg.yaml"

type BasicConf struct {
	Debug      bool
	ConsoleLog bool
	FileLog    bool
	LogDir     string
	RotateTime int
	MaxAge     int

	RestIp         string
	RestPort       int
	AllowedOrigins []string
	// RequestTimeout bounds one image's validate+preprocess+infer+postprocess, in seconds.
	RequestTimeout int
	MaxUploadSize  int64
	MaxConcurrency int
}

type ModelConf struct {
	Path              string
	SharedLibraryPath string
	// Provider is auto, cuda or cpu.
	Provider       string
	Sessions       int
	IntraOpThreads int
	// Stub replaces the ONNX session with a deterministic demo segmenter.
	Stub bool
}

type HeatmapConf struct {
	// Style is gradient or jet.
	Style    string
	Radius   float64
	JetAlpha float64
}

type ValidationConf struct {
	Enabled bool
}

type MetricsConf struct {
	Enabled bool
}

type Config struct {
	Basic      BasicConf
	Model      ModelConf
	Heatmap    HeatmapConf
	Validation ValidationConf
	Metrics    MetricsConf
}

const (
	ProviderAuto = "auto"
	ProviderCUDA = "cuda"
	ProviderCPU  = "cpu"

	HeatmapGradient = "gradient"
	HeatmapJet      = "jet"
)

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

func Default() *Config {
	return &Config{
		Basic: BasicConf{
			ConsoleLog:     true,
			LogDir:         "log",
			RotateTime:     24,
			MaxAge:         72,
			RestIp:         "0.0.0.0",
			RestPort:       8000,
			RequestTimeout: 30,
			MaxUploadSize:  32 << 20,
		},
		Model: ModelConf{
			Path:           "model/crc_segmentation.onnx",
			Provider:       ProviderAuto,
			IntraOpThreads: 1,
		},
		Heatmap: HeatmapConf{
			Style:    HeatmapGradient,
			Radius:   80,
			JetAlpha: 0.4,
		},
		Validation: ValidationConf{Enabled: true},
		Metrics:    MetricsConf{Enabled: true},
	}
}

// Validate fills zero values with defaults and rejects settings the server
// cannot start with.
func (c *Config) Validate() error {
	if c.Basic.RestPort <= 0 || c.Basic.RestPort > 65535 {
		return fmt.Errorf("invalid rest port: %d", c.Basic.RestPort)
	}
	if c.Basic.RestIp == "" {
		c.Basic.RestIp = "0.0.0.0"
	}
	if len(c.Basic.AllowedOrigins) == 0 {
		c.Basic.AllowedOrigins = defaultOrigins
	}
	if c.Basic.RequestTimeout <= 0 {
		c.Basic.RequestTimeout = 30
	}
	if c.Basic.MaxUploadSize <= 0 {
		c.Basic.MaxUploadSize = 32 << 20
	}
	if c.Basic.MaxConcurrency <= 0 {
		c.Basic.MaxConcurrency = runtime.GOMAXPROCS(0)
	}
	switch c.Model.Provider {
	case "":
		c.Model.Provider = ProviderAuto
	case ProviderAuto, ProviderCUDA, ProviderCPU:
	default:
		return fmt.Errorf("invalid model provider: %s", c.Model.Provider)
	}
	if c.Model.Sessions <= 0 {
		c.Model.Sessions = c.Basic.MaxConcurrency
	}
	if c.Model.IntraOpThreads < 0 {
		return fmt.Errorf("invalid intra-op threads: %d", c.Model.IntraOpThreads)
	}
	if !c.Model.Stub && c.Model.Path == "" {
		return fmt.Errorf("model path is required")
	}
	switch c.Heatmap.Style {
	case "":
		c.Heatmap.Style = HeatmapGradient
	case HeatmapGradient, HeatmapJet:
	default:
		return fmt.Errorf("invalid heatmap style: %s", c.Heatmap.Style)
	}
	if c.Heatmap.Radius <= 0 {
		c.Heatmap.Radius = 80
	}
	if c.Heatmap.JetAlpha <= 0 || c.Heatmap.JetAlpha > 1 {
		c.Heatmap.JetAlpha = 0.4
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Basic.RequestTimeout) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Basic.RestIp, c.Basic.RestPort)
}
