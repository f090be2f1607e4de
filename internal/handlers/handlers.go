package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Brownie44l1/crcseg-api/internal/conf"
	"github.com/Brownie44l1/crcseg-api/internal/errorx"
	"github.com/Brownie44l1/crcseg-api/internal/img"
	"github.com/Brownie44l1/crcseg-api/internal/metrics"
	"github.com/Brownie44l1/crcseg-api/internal/pipeline"
)

const (
	ContentType     = "Content-Type"
	ContentTypeJSON = "application/json"

	formFiles = "files"
	formFile  = "file"
)

type Handler struct {
	pipeline      *pipeline.Pipeline
	maxUploadSize int64
}

func NewHandler(p *pipeline.Pipeline, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = 32 << 20
	}
	return &Handler{
		pipeline:      p,
		maxUploadSize: maxUploadSize,
	}
}

// Router registers every endpoint. /metrics is only exposed when withMetrics is set.
func (h *Handler) Router(withMetrics bool) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)
	r.HandleFunc("/", h.Root).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/segment", h.Segment).Methods(http.MethodPost)
	r.HandleFunc("/segment-single", h.SegmentSingle).Methods(http.MethodPost)
	r.HandleFunc("/validate", h.Validate).Methods(http.MethodPost)
	r.HandleFunc("/v1/analysis", h.Analysis).Methods(http.MethodPost)
	if withMetrics {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	return r
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	jsonResponse(map[string]any{
		"status":       "ok",
		"message":      "CRC Segmentation API is running",
		"model_loaded": h.pipeline.Ready(),
	}, w)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if !h.pipeline.Ready() {
		jsonStatusResponse(http.StatusServiceUnavailable, map[string]any{
			"status":       "unhealthy",
			"model_status": "not loaded",
		}, w)
		return
	}
	info := h.pipeline.ModelInfo()
	jsonResponse(map[string]any{
		"status":       "healthy",
		"model_status": "loaded",
		"backend":      info.Backend,
		"strategy":     info.Strategy,
	}, w)
}

// Segment processes every file of the "files" field. Per-image failures are
// reported inside the envelope; the request itself still succeeds.
func (h *Handler) Segment(w http.ResponseWriter, r *http.Request) {
	raws, err := h.readUploads(w, r, formFiles)
	if err != nil {
		handleError(w, err, "")
		return
	}
	if !h.pipeline.Ready() {
		handleError(w, errorx.NewModelUnavailable("model is not loaded"), "")
		return
	}
	items := h.pipeline.ProcessBatch(r.Context(), raws)
	results := make([]SegmentResult, len(items))
	for i, it := range items {
		if it.Err != nil {
			results[i] = failedResult(it.Filename, it.RequestID, it.Err)
			continue
		}
		results[i] = newSegmentResult(it.Result)
	}
	jsonResponse(SegmentResponse{Status: "completed", Results: results, TotalProcessed: len(results)}, w)
}

func (h *Handler) SegmentSingle(w http.ResponseWriter, r *http.Request) {
	raw, err := h.readUpload(w, r)
	if err != nil {
		handleError(w, err, "")
		return
	}
	res, err := h.pipeline.Process(r.Context(), raw)
	if err != nil {
		handleError(w, err, "")
		return
	}
	jsonResponse(SegmentResponse{Status: "completed", Results: []SegmentResult{newSegmentResult(res)}, TotalProcessed: 1}, w)
}

// Validate runs only the validator. A rejection is a normal 200 answer.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	raw, err := h.readUpload(w, r)
	if err != nil {
		handleError(w, err, "")
		return
	}
	jsonResponse(h.pipeline.Validate(raw), w)
}

func (h *Handler) Analysis(w http.ResponseWriter, r *http.Request) {
	raw, err := h.readUpload(w, r)
	if err != nil {
		handleError(w, err, "")
		return
	}
	res, err := h.pipeline.Process(r.Context(), raw)
	if err != nil {
		handleError(w, err, "")
		return
	}
	jsonResponse(newAnalysisReport(res), w)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (img.Raw, error) {
	raws, err := h.readUploads(w, r, formFile)
	if err != nil {
		return img.Raw{}, err
	}
	return raws[0], nil
}

// readUploads reads every part of field, in order.
func (h *Handler) readUploads(w http.ResponseWriter, r *http.Request, field string) ([]img.Raw, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		return nil, errorx.Wrap(errorx.DecodeFailure, "failed to parse form", err)
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, errorx.NewWithCode(errorx.DecodeFailure, fmt.Sprintf("no image provided, use '%s' as the form field name", field))
	}
	raws := make([]img.Raw, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, errorx.Wrap(errorx.DecodeFailure, "failed to read "+fh.Filename, err)
		}
		conf.Log.Debugf("received file: %s, size: %d bytes", fh.Filename, fh.Size)
		raws = append(raws, img.Raw{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(ContentType),
			Data:        data,
		})
	}
	return raws, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func handleError(w http.ResponseWriter, err error, prefix string) {
	message := prefix
	if message != "" {
		message += ": "
	}
	message += err.Error()
	status := errorx.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		conf.Log.Error(message)
	} else {
		conf.Log.Info(message)
	}
	jsonStatusResponse(status, errorResponse{Error: errorx.CodeOf(err), Message: message}, w)
}

func jsonResponse(i any, w http.ResponseWriter) {
	jsonStatusResponse(http.StatusOK, i, w)
}

func jsonStatusResponse(status int, i any, w http.ResponseWriter) {
	jsonByte, err := json.Marshal(i)
	if err != nil {
		handleError(w, err, "")
		return
	}
	w.Header().Add(ContentType, ContentTypeJSON)
	w.Header().Add("Content-Length", strconv.Itoa(len(jsonByte)))
	w.WriteHeader(status)
	if _, err = w.Write(jsonByte); err != nil {
		conf.Log.Errorf("write response: %v", err)
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		m := httpsnoop.CaptureMetrics(next, w, r)
		metrics.RequestCounter.WithLabelValues(endpoint, strconv.Itoa(m.Code)).Inc()
		conf.Log.Debugf("%s %s %d %s", r.Method, endpoint, m.Code, m.Duration)
	})
}
