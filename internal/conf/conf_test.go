package conf

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidate(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 8000, c.Basic.RestPort)
	assert.Equal(t, "0.0.0.0:8000", c.Addr())
	assert.Equal(t, 30*time.Second, c.Timeout())
	assert.Equal(t, defaultOrigins, c.Basic.AllowedOrigins)
	assert.Equal(t, runtime.GOMAXPROCS(0), c.Basic.MaxConcurrency)
	assert.Equal(t, c.Basic.MaxConcurrency, c.Model.Sessions)
	assert.Equal(t, ProviderAuto, c.Model.Provider)
	assert.Equal(t, HeatmapGradient, c.Heatmap.Style)
	assert.Equal(t, 80.0, c.Heatmap.Radius)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"port", func(c *Config) { c.Basic.RestPort = 70000 }},
		{"provider", func(c *Config) { c.Model.Provider = "tpu" }},
		{"style", func(c *Config) { c.Heatmap.Style = "rainbow" }},
		{"path", func(c *Config) { c.Model.Path = "" }},
		{"threads", func(c *Config) { c.Model.IntraOpThreads = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestValidateStubNeedsNoPath(t *testing.T) {
	c := Default()
	c.Model.Path = ""
	c.Model.Stub = true
	assert.NoError(t, c.Validate())
}

func writeConf(t *testing.T, content string) string {
	p := filepath.Join(t.TempDir(), ConfFileName)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadFile(t *testing.T) {
	p := writeConf(t, `
basic:
  restPort: 9001
  allowedOrigins:
    - https://app.example
model:
  provider: cpu
  sessions: 3
heatmap:
  style: jet
  jetAlpha: 0.5
validation:
  enabled: false
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 9001, c.Basic.RestPort)
	assert.Equal(t, []string{"https://app.example"}, c.Basic.AllowedOrigins)
	assert.Equal(t, ProviderCPU, c.Model.Provider)
	assert.Equal(t, 3, c.Model.Sessions)
	assert.Equal(t, HeatmapJet, c.Heatmap.Style)
	assert.Equal(t, 0.5, c.Heatmap.JetAlpha)
	assert.False(t, c.Validation.Enabled)
	// untouched keys keep their defaults
	assert.Equal(t, 80.0, c.Heatmap.Radius)
	assert.True(t, c.Metrics.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	p := writeConf(t, "basic:\n  restPort: 9001\n")
	t.Setenv("CRCSEG__BASIC__RESTPORT", "9100")
	t.Setenv("CRCSEG__MODEL__STUB", "true")
	t.Setenv("CRCSEG__HEATMAP__RADIUS", "64.5")
	t.Setenv("CRCSEG__BASIC__ALLOWEDORIGINS", "[http://a.example,http://b.example]")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 9100, c.Basic.RestPort)
	assert.True(t, c.Model.Stub)
	assert.Equal(t, 64.5, c.Heatmap.Radius)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, c.Basic.AllowedOrigins)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConf(t, "basic: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConf(t, "model:\n  provider: tpu\n"))
	assert.Error(t, err)
}

func TestLoadWithoutFile(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Basic.RestPort, c.Basic.RestPort)
}

func TestLoadEnvWithoutFile(t *testing.T) {
	t.Setenv("CRCSEG__BASIC__RESTPORT", "9123")
	t.Setenv("CRCSEG__MODEL__STUB", "true")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9123, c.Basic.RestPort)
	assert.True(t, c.Model.Stub)
	assert.Equal(t, Default().Heatmap.Radius, c.Heatmap.Radius)
}

func TestLoadEnvWeakTypes(t *testing.T) {
	t.Setenv("CRCSEG__BASIC__DEBUG", "1")
	t.Setenv("CRCSEG__MODEL__STUB", "1")
	t.Setenv("CRCSEG__HEATMAP__RADIUS", "64")

	c, err := Load("")
	require.NoError(t, err)
	assert.True(t, c.Basic.Debug)
	assert.True(t, c.Model.Stub)
	assert.Equal(t, 64.0, c.Heatmap.Radius)
}

func TestNameToKeys(t *testing.T) {
	assert.Equal(t, []string{"basic", "restport"}, nameToKeys("BASIC__RESTPORT"))
}

func TestGetValueType(t *testing.T) {
	assert.Equal(t, int64(3), getValueType("3"))
	assert.Equal(t, true, getValueType("true"))
	assert.Equal(t, 0.25, getValueType("0.25"))
	assert.Equal(t, "cpu", getValueType(" cpu "))
	assert.Equal(t, []interface{}{int64(1), "x"}, getValueType("[1,x]"))
}
