package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	LblEndpoint = "endpoint"
	LblStatus   = "status"
	LblStage    = "stage"
	LblCheck    = "check"
	LblRisk     = "risk"
	LblCode     = "code"

	StageValidate    = "validate"
	StageDecode      = "decode"
	StagePreprocess  = "preprocess"
	StageInference   = "inference"
	StagePostprocess = "postprocess"
	StageEncode      = "encode"
)

var (
	RequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crcseg",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "counter of handled HTTP requests",
	}, []string{LblEndpoint, LblStatus})

	ImageCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crcseg",
		Subsystem: "pipeline",
		Name:      "images_total",
		Help:      "counter of processed images by outcome code",
	}, []string{LblCode})

	RejectionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crcseg",
		Subsystem: "validator",
		Name:      "rejections_total",
		Help:      "counter of rejected uploads by failed heuristic",
	}, []string{LblCheck})

	RiskCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crcseg",
		Subsystem: "pipeline",
		Name:      "risk_total",
		Help:      "counter of completed analyses by risk tier",
	}, []string{LblRisk})

	StageDurationHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crcseg",
		Subsystem: "pipeline",
		Name:      "stage_duration_microseconds",
		Help:      "Histogram of pipeline stage duration",
		Buckets:   prometheus.ExponentialBuckets(100, 2, 18), // 100us ~ 13s
	}, []string{LblStage})

	InflightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "crcseg",
		Subsystem: "pipeline",
		Name:      "inflight",
		Help:      "gauge of images holding a worker slot",
	})
)

func init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(ImageCounter)
	prometheus.MustRegister(RejectionCounter)
	prometheus.MustRegister(RiskCounter)
	prometheus.MustRegister(StageDurationHist)
	prometheus.MustRegister(InflightGauge)
}

// ObserveStage records the time elapsed since start for stage.
func ObserveStage(stage string, start time.Time) {
	StageDurationHist.WithLabelValues(stage).Observe(float64(time.Since(start).Microseconds()))
}
