package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audioscribe/transcript-gateway/internal/config"
	"github.com/audioscribe/transcript-gateway/internal/metrics"
	"github.com/audioscribe/transcript-gateway/internal/transcription"
	"github.com/audioscribe/transcript-gateway/internal/workflow"
)

const (
	serviceName    = "transcript-gateway"
	serviceVersion = "1.0.0"

	// maxUploadBytes caps the audio payload accepted on /api/source.
	maxUploadBytes = 256 << 20 // 256 MB
)

// HTTPServer exposes the workflow intents and monitoring endpoints over HTTP
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	controller *workflow.Controller
	metrics    *metrics.Metrics

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger,
	appConfig *config.Config, controller *workflow.Controller, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		controller: controller,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Workflow intents
	mux.HandleFunc("/api/credential", h.withMetrics("/api/credential", h.handleCredential))
	mux.HandleFunc("/api/source", h.withMetrics("/api/source", h.handleSource))
	mux.HandleFunc("/api/submit", h.withMetrics("/api/submit", h.handleSubmit))
	mux.HandleFunc("/api/reset", h.withMetrics("/api/reset", h.handleReset))
	mux.HandleFunc("/api/job", h.withMetrics("/api/job", h.handleJob))

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

// handleCredential implements the /api/credential endpoint
func (h *HTTPServer) handleCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.controller.SetCredential(req.APIKey); err != nil {
		h.logger.Error("Failed to set credential", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to persist credential")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSource implements the /api/source endpoint. A multipart request
// selects a file; a JSON body selects an audio URL. The two are mutually
// exclusive and the most recent one wins.
func (h *HTTPServer) handleSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			h.writeError(w, http.StatusBadRequest, "failed to parse multipart form")
			return
		}

		file, header, err := r.FormFile("audio")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "missing audio file field")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "failed to read audio file")
			return
		}

		h.controller.SetFile(header.Filename, data)
		h.logger.Info("Audio file selected",
			slog.String("file_name", header.Filename),
			slog.Int("size_bytes", len(data)),
		)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req struct {
		AudioURL string `json:"audio_url"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10) // a URL payload is tiny
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AudioURL == "" {
		h.writeError(w, http.StatusBadRequest, "audio_url is required")
		return
	}

	h.controller.SetAudioURL(req.AudioURL)
	h.logger.Info("Audio URL selected", slog.String("audio_url", req.AudioURL))
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmit implements the /api/submit endpoint
func (h *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.controller.Submit()
	switch {
	case errors.Is(err, transcription.ErrAuthenticationRequired):
		h.writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, workflow.ErrNoSource):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(h.controller.Snapshot())
}

// handleReset implements the /api/reset endpoint
func (h *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.controller.Reset()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.controller.Snapshot())
}

// handleJob implements the /api/job endpoint
func (h *HTTPServer) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.controller.Snapshot())
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.controller.Snapshot()
	uptime := time.Since(h.startTime)

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"workflow": map[string]interface{}{
			"state":          snap.State,
			"has_credential": h.controller.HasCredential(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workflowStats := h.controller.GetStatistics()
	snap := h.controller.Snapshot()
	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"workflow": map[string]interface{}{
			"state":           snap.State,
			"submissions":     workflowStats.Submissions,
			"uploads":         workflowStats.Uploads,
			"upload_failures": workflowStats.UploadFailures,
			"jobs_completed":  workflowStats.JobsCompleted,
			"jobs_failed":     workflowStats.JobsFailed,
			"poll_ticks":      workflowStats.PollTicks,
			"poll_failures":   workflowStats.PollFailures,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (the credential never appears here)
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"address": h.config.HTTP.Address,
			"port":    h.config.HTTP.Port,
		},
		"transcription": map[string]interface{}{
			"base_url":      h.config.Transcription.BaseURL,
			"language_code": h.config.Transcription.LanguageCode,
			"timeout":       h.config.Transcription.Timeout,
		},
		"workflow": map[string]interface{}{
			"poll_interval": h.config.Workflow.PollInterval,
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

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                "API documentation",
			"GET /health":          "Service health check",
			"GET /config":          "Get service configuration",
			"GET /stats":           "Service statistics",
			"GET /metrics":         "Prometheus metrics",
			"GET /api/job":         "Current workflow state, job, and error",
			"POST /api/credential": "Set or clear the API credential",
			"POST /api/source":     "Select an audio URL (JSON) or file (multipart)",
			"POST /api/submit":     "Start a transcription run",
			"POST /api/reset":      "Return the workflow to idle",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}

// writeError sends a JSON error body matching the upstream convention.
func (h *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
