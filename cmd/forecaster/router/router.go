// Package router configures HTTP routes for the forecaster's HTTP API.
//
// Routes configured:
//   - GET  /                          - Welcome message
//   - POST /forecast                  - Forecast a JSON series
//   - POST /forecast-with-grid-search - Forecast a JSON series with grid search
//   - POST /upload-csv                - Forecast a CSV file (multipart "file" or raw body)
//   - POST /generate-report           - Forecast a JSON series and return a CSV report
//   - GET  /healthz                   - Health check endpoint
//   - GET  /metrics                   - Prometheus metrics endpoint
//
// Forecast responses carry the winning method, its parameters and holdout
// metrics, the forecast dates and values, and every method's backtest.
// Errors are returned as {"error": "<message>"}.
package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/runrate/cmd/forecaster/metrics"
	"github.com/HatiCode/runrate/pkg/backtest"
	"github.com/HatiCode/runrate/pkg/engine"
	"github.com/HatiCode/runrate/pkg/httpx"
	"github.com/HatiCode/runrate/pkg/ingest"
	"github.com/HatiCode/runrate/pkg/models"
	"github.com/HatiCode/runrate/pkg/report"
	"github.com/HatiCode/runrate/pkg/series"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to Run-Rate Forecaster API"

// Forecaster produces an outcome for a series of raw records.
type Forecaster interface {
	Forecast(ctx context.Context, records []series.Record, req engine.Request) (*engine.Outcome, error)
}

// Config holds the router's dependencies.
type Config struct {
	Forecaster Forecaster
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// MaxUploadBytes limits request bodies; <= 0 means 10 MiB.
	MaxUploadBytes int64
	// HealthCheck backs /healthz; nil always reports healthy.
	HealthCheck func(ctx context.Context) error
	Logger      *slog.Logger
}

// Response is the body of a successful forecast.
type Response struct {
	ModelName       string                      `json:"model_name"`
	ModelParams     models.Params               `json:"model_params"`
	Metrics         engine.Metrics              `json:"metrics"`
	Dates           []string                    `json:"dates"`
	Forecast        []float64                   `json:"forecast"`
	BacktestResults map[string]backtest.Outcome `json:"backtest_results"`
}

// NewResponse converts an outcome into its wire form. Dates are RFC 3339 in
// UTC.
func NewResponse(out *engine.Outcome) Response {
	dates := make([]string, len(out.Dates))
	for i, d := range out.Dates {
		dates[i] = d.UTC().Format(time.RFC3339)
	}

	return Response{
		ModelName:       out.ModelName,
		ModelParams:     out.Params,
		Metrics:         out.Metrics,
		Dates:           dates,
		Forecast:        out.Forecast,
		BacktestResults: out.BacktestResults,
	}
}

type handlers struct {
	forecaster Forecaster
	metrics    *metrics.Metrics
	maxBytes   int64
	logger     *slog.Logger
}

// SetupRoutes configures HTTP endpoints for the forecaster.
func SetupRoutes(cfg Config) *http.ServeMux {
	if cfg.Forecaster == nil {
		panic("router: forecaster is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}

	h := &handlers{
		forecaster: cfg.Forecaster,
		metrics:    cfg.Metrics,
		maxBytes:   maxBytes,
		logger:     logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("POST /forecast", h.handleForecast(false))
	mux.HandleFunc("POST /forecast-with-grid-search", h.handleForecast(true))
	mux.HandleFunc("POST /upload-csv", h.handleUploadCSV)
	mux.HandleFunc("POST /generate-report", h.handleReport)

	mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(cfg.HealthCheck))
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	if err := httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage}); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// handleForecast serves POST /forecast and, with forceGrid, POST
// /forecast-with-grid-search.
func (h *handlers) handleForecast(forceGrid bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer h.observe(r.URL.Path, start)

		fr, ok := h.decodeJSON(w, r)
		if !ok {
			return
		}
		if forceGrid {
			fr.Request.GridSearch = true
		}

		out, ok := h.forecast(w, r, fr.Records, fr.Request)
		if !ok {
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, NewResponse(out)); err != nil {
			h.logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleUploadCSV serves POST /upload-csv?forecast_steps=N&use_grid_search=b.
// The CSV is taken from the multipart field "file" or, for any other content
// type, from the raw body.
func (h *handlers) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.observe(r.URL.Path, start)

	req, err := ingest.ParseQuery(r.URL.Query())
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	body, err := h.csvBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	records, err := ingest.ReadCSV(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out, ok := h.forecast(w, r, records, req)
	if !ok {
		return
	}

	if err := httpx.WriteJSON(w, http.StatusOK, NewResponse(out)); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func (h *handlers) csvBody(r *http.Request) (io.Reader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: invalid multipart form: %v", series.ErrValidation, err)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing form file \"file\"", series.ErrValidation)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// handleReport serves POST /generate-report?format=csv&kind=forecast|detailed.
func (h *handlers) handleReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.observe(r.URL.Path, start)

	q := r.URL.Query()
	if f := q.Get("format"); f != "" && f != "csv" {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "Unsupported report format. Use 'csv'.")
		return
	}
	kind, err := report.ParseKind(q.Get("kind"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err)
		return
	}

	fr, ok := h.decodeJSON(w, r)
	if !ok {
		return
	}

	out, ok := h.forecast(w, r, fr.Records, fr.Request)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, kind, out); err != nil {
		h.logger.Error("failed to render report", "kind", kind, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "failed to generate report")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": kind.Filename()}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("failed to write report", "error", err)
	}
}

func (h *handlers) decodeJSON(w http.ResponseWriter, r *http.Request) (ingest.ForecastRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		h.writeError(w, r, err)
		return ingest.ForecastRequest{}, false
	}

	fr, err := ingest.DecodeForecastRequest(body)
	if err != nil {
		h.writeError(w, r, err)
		return ingest.ForecastRequest{}, false
	}
	return fr, true
}

func (h *handlers) forecast(w http.ResponseWriter, r *http.Request, records []series.Record, req engine.Request) (*engine.Outcome, bool) {
	out, err := h.forecaster.Forecast(r.Context(), records, req)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return out, true
}

// writeError maps err to a status code: validation problems are the
// caller's fault, oversize bodies are 413 and everything else is a server
// failure.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, series.ErrValidation):
		httpx.WriteError(w, http.StatusBadRequest, err)
	case errors.As(err, &maxErr):
		httpx.WriteErrorMessage(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
	default:
		h.logger.Error("forecast failed",
			"path", r.URL.Path,
			"request_id", httpx.RequestID(r.Context()),
			"error", err,
		)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "Forecasting failed: "+err.Error())
	}
}

func (h *handlers) observe(endpoint string, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordRequest(endpoint, time.Since(start))
	}
}
