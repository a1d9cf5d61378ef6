package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/whisper-transcribe-service/internal/config"
	"github.com/skypro1111/whisper-transcribe-service/internal/engine"
	"github.com/skypro1111/whisper-transcribe-service/internal/metrics"
	"github.com/skypro1111/whisper-transcribe-service/internal/transcription"
)

// Transcriber runs one transcription request end to end.
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, opts transcription.RequestOptions) (*transcription.Result, error)
}

// EngineStats exposes the inference client's runtime statistics.
type EngineStats interface {
	GetStats() engine.ClientStats
}

// HTTPServer provides the transcription API plus monitoring endpoints
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	transcriber Transcriber
	engineStats EngineStats
	metrics     *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger,
	transcriber Transcriber, engineStats EngineStats, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:      logger,
		config:      cfg,
		transcriber: transcriber,
		engineStats: engineStats,
		metrics:     m,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.GetReadTimeoutDuration(),
		WriteTimeout: cfg.HTTP.GetWriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Transcription endpoint
	mux.HandleFunc("/v1/audio/transcriptions", h.withMetrics("/v1/audio/transcriptions", h.handleTranscribe))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// writeError sends a JSON error body with the given status code
func (h *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {"message": message},
	})
}

// handleTranscribe implements the POST /v1/audio/transcriptions endpoint.
// It accepts a multipart form with a WAV file and optional language,
// temperature and response_format fields.
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	requestID := uuid.New().String()
	logger := h.logger.With(slog.String("request_id", requestID))

	r.Body = http.MaxBytesReader(w, r.Body, h.config.HTTP.MaxUploadSize)
	if err := r.ParseMultipartForm(h.config.HTTP.MaxUploadSize); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Missing audio file field 'file'")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read audio file: %v", err))
		return
	}

	if lang := r.FormValue("language"); lang != "" && lang != h.config.Transcription.Language {
		h.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Unsupported language %q, this deployment serves %q", lang, h.config.Transcription.Language))
		return
	}

	formatValue := r.FormValue("response_format")
	if formatValue == "" {
		formatValue = h.config.Transcription.DefaultFormat
	}
	format, err := transcription.ParseResponseFormat(formatValue)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	temperature := h.config.Transcription.Temperature
	if tempValue := r.FormValue("temperature"); tempValue != "" {
		parsed, err := strconv.ParseFloat(tempValue, 32)
		if err != nil || parsed < 0 || parsed > 2 {
			h.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("temperature must be a number between 0 and 2, got %q", tempValue))
			return
		}
		temperature = float32(parsed)
	}

	logger.Info("Transcription request received",
		slog.String("filename", header.Filename),
		slog.Int("size_bytes", len(data)),
		slog.String("format", string(format)),
	)

	h.metrics.RecordRequestStarted()
	startTime := time.Now()

	result, err := h.transcriber.Transcribe(r.Context(), data, transcription.RequestOptions{
		RequestID:   requestID,
		Temperature: temperature,
		Format:      format,
	})
	if err != nil {
		h.metrics.RecordRequestFailure(string(format), time.Since(startTime).Seconds())

		if errors.Is(err, transcription.ErrInvalidAudio) {
			h.metrics.RecordInvalidAudio()
			logger.Warn("Rejected invalid audio", slog.String("error", err.Error()))
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		h.metrics.RecordEngineFailure()
		logger.Error("Transcription failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadGateway, "Transcription failed")
		return
	}

	h.metrics.RecordRequestSuccess(string(format), time.Since(startTime).Seconds(),
		result.AudioDuration, result.Windows, result.SegmentCount)

	body, contentType, err := result.Response.Body()
	if err != nil {
		logger.Error("Failed to encode response", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "Failed to encode response")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(body)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	uptime := time.Since(h.startTime)
	engineStats := h.engineStats.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "whisper-transcribe-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"engine": map[string]interface{}{
				"status":          "running",
				"model":           engineStats.Model,
				"total_requests":  engineStats.TotalRequests,
				"success_rate":    engineStats.SuccessRate,
				"active_requests": engineStats.ActiveRequests,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"port":            h.config.HTTP.Port,
			"address":         h.config.HTTP.Address,
			"max_upload_size": h.config.HTTP.MaxUploadSize,
		},
		"engine": map[string]interface{}{
			"endpoint":       h.config.Engine.Endpoint,
			"timeout":        h.config.Engine.Timeout,
			"max_concurrent": h.config.Engine.MaxConcurrent,
			// Note: API key is intentionally omitted for security
		},
		"audio": map[string]interface{}{
			"sample_rate":     h.config.Audio.SampleRate,
			"window_duration": h.config.Audio.WindowDuration,
		},
		"transcription": map[string]interface{}{
			"language":       h.config.Transcription.Language,
			"temperature":    h.config.Transcription.Temperature,
			"default_format": h.config.Transcription.DefaultFormat,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"engine":    h.engineStats.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Whisper Transcription Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"POST /v1/audio/transcriptions": "Transcribe a WAV file (multipart form: file, language, temperature, response_format)",
			"GET /health":                   "Service health check",
			"GET /config":                   "Get service configuration",
			"GET /stats":                    "Get service statistics",
			"GET /metrics":                  "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
