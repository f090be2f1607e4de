package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStageIsExported(t *testing.T) {
	ObserveStage(StageEncode, time.Now().Add(-time.Millisecond))
	RejectionCounter.WithLabelValues("size").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
		if f.GetName() == "crcseg_pipeline_stage_duration_microseconds" {
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, uint64(1), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found["crcseg_pipeline_stage_duration_microseconds"])
	assert.True(t, found["crcseg_validator_rejections_total"])
}
