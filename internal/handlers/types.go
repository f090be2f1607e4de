package handlers

import (
	"github.com/Brownie44l1/crcseg-api/internal/errorx"
	"github.com/Brownie44l1/crcseg-api/internal/img"
	"github.com/Brownie44l1/crcseg-api/internal/pipeline"
	"github.com/Brownie44l1/crcseg-api/internal/postprocess"
)

// AnalysisVersion identifies the /v1/analysis report layout.
const AnalysisVersion = "1.0"

const (
	statusSuccess = "success"
	statusError   = "error"
)

type SegmentResult struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	Original  string `json:"original,omitempty"`
	Overlay   string `json:"overlay,omitempty"`
	Heatmap   string `json:"heatmap,omitempty"`
	// Gradcam and Mask repeat Heatmap and Overlay under their legacy keys.
	Gradcam    string                  `json:"gradcam,omitempty"`
	Mask       string                  `json:"mask,omitempty"`
	Statistics *postprocess.Statistics `json:"statistics,omitempty"`
	RiskLevel  postprocess.RiskLevel   `json:"risk_level,omitempty"`
	ImageShape []int                   `json:"image_shape,omitempty"`
	MaskShape  []int                   `json:"mask_shape,omitempty"`
	Backend    string                  `json:"backend,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Code       errorx.ErrorCode        `json:"code,omitempty"`
}

type errorResponse struct {
	Error   errorx.ErrorCode `json:"error"`
	Message string           `json:"message"`
}

type SegmentResponse struct {
	Status         string          `json:"status"`
	Results        []SegmentResult `json:"results"`
	TotalProcessed int             `json:"total_processed"`
}

// AnalysisReport is the stable contract consumed by report generators.
type AnalysisReport struct {
	Version         string                       `json:"version"`
	RequestID       string                       `json:"request_id"`
	Filename        string                       `json:"filename"`
	RiskLevel       postprocess.RiskLevel        `json:"risk_level"`
	Statistics      postprocess.Statistics       `json:"statistics"`
	Overlay         string                       `json:"overlay"`
	Heatmap         string                       `json:"heatmap"`
	Recommendations []postprocess.Recommendation `json:"recommendations"`
}

func newSegmentResult(r *pipeline.Result) SegmentResult {
	stats := r.Statistics
	overlay, heatmap := img.DataURL(r.OverlayPNG), img.DataURL(r.HeatmapPNG)
	return SegmentResult{
		Filename:   r.Filename,
		Status:     statusSuccess,
		RequestID:  r.RequestID,
		Original:   img.DataURL(r.OriginalPNG),
		Overlay:    overlay,
		Heatmap:    heatmap,
		Gradcam:    heatmap,
		Mask:       overlay,
		Statistics: &stats,
		RiskLevel:  r.Risk,
		ImageShape: r.ImageShape,
		MaskShape:  r.MaskShape,
		Backend:    r.Backend,
	}
}

func failedResult(filename, requestID string, err error) SegmentResult {
	return SegmentResult{
		Filename:  filename,
		Status:    statusError,
		RequestID: requestID,
		Error:     err.Error(),
		Code:      errorx.CodeOf(err),
	}
}

func newAnalysisReport(r *pipeline.Result) AnalysisReport {
	return AnalysisReport{
		Version:         AnalysisVersion,
		RequestID:       r.RequestID,
		Filename:        r.Filename,
		RiskLevel:       r.Risk,
		Statistics:      r.Statistics,
		Overlay:         img.DataURL(r.OverlayPNG),
		Heatmap:         img.DataURL(r.HeatmapPNG),
		Recommendations: r.Risk.Recommendations(),
	}
}
