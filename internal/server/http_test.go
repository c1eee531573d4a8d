package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/audioscribe/transcript-gateway/internal/config"
	"github.com/audioscribe/transcript-gateway/internal/metrics"
	"github.com/audioscribe/transcript-gateway/internal/transcription"
	"github.com/audioscribe/transcript-gateway/internal/workflow"
)

type stubAPI struct {
	uploadFn func(ctx context.Context, data []byte, credential string) (string, error)
	createFn func(ctx context.Context, audioURL, credential string) (*transcription.Job, error)
	fetchFn  func(ctx context.Context, id, credential string) (*transcription.Job, error)
}

func (s *stubAPI) Upload(ctx context.Context, data []byte, credential string) (string, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, data, credential)
	}
	return "https://cdn.example.com/upload/1", nil
}

func (s *stubAPI) CreateJob(ctx context.Context, audioURL, credential string) (*transcription.Job, error) {
	if s.createFn != nil {
		return s.createFn(ctx, audioURL, credential)
	}
	return &transcription.Job{ID: "t1", AudioURL: audioURL, Status: transcription.StatusCompleted, Text: "hello"}, nil
}

func (s *stubAPI) FetchJob(ctx context.Context, id, credential string) (*transcription.Job, error) {
	if s.fetchFn != nil {
		return s.fetchFn(ctx, id, credential)
	}
	return &transcription.Job{ID: id, Status: transcription.StatusCompleted, Text: "hello"}, nil
}

type memStore struct {
	credential string
}

func (m *memStore) Load() (string, error) { return m.credential, nil }

func (m *memStore) Save(credential string) error {
	m.credential = credential
	return nil
}

func newTestServer(t *testing.T) (*HTTPServer, *workflow.Controller) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewMetrics(prometheus.NewRegistry())

	controller, err := workflow.NewController(&stubAPI{}, &memStore{}, logger, m, workflow.Config{
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	t.Cleanup(controller.Close)

	appConfig := &config.Config{
		HTTP:          config.HTTPConfig{Port: 8080, Address: "0.0.0.0"},
		Transcription: config.TranscriptionConfig{BaseURL: "https://api.example.com/v1", LanguageCode: "en_us", Timeout: 30},
		Workflow:      config.WorkflowConfig{PollInterval: 5.0},
		Credentials:   config.CredentialsConfig{Path: "data/credentials.yaml"},
		Logging:       config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}

	h := NewHTTPServer(HTTPServerConfig{Port: 8080, Address: "127.0.0.1"}, logger, appConfig, controller, m)
	return h, controller
}

func doRequest(h *HTTPServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)
	return rec
}

func waitForState(t *testing.T, c *workflow.Controller, want workflow.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Snapshot().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for state %q, last state %q", want, c.Snapshot().State)
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", health["status"])
	}
}

func TestRootEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to parse root response: %v", err)
	}
	if doc["service"] != serviceName {
		t.Errorf("Expected service %q, got %v", serviceName, doc["service"])
	}
}

func TestRootUnknownPath(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestConfigEndpointOmitsCredential(t *testing.T) {
	h, c := newTestServer(t)
	if err := c.SetCredential("secret-key"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}

	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/config", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret-key") {
		t.Errorf("Config response leaked the credential: %s", rec.Body.String())
	}
}

func TestSetCredential(t *testing.T) {
	h, c := newTestServer(t)

	body := strings.NewReader(`{"api_key": "k1"}`)
	rec := doRequest(h, httptest.NewRequest(http.MethodPost, "/api/credential", body))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if !c.HasCredential() {
		t.Errorf("Expected credential to be set")
	}
}

func TestSetCredentialInvalidJSON(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(h, httptest.NewRequest(http.MethodPost, "/api/credential", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "error") {
		t.Errorf("Expected JSON error body, got: %s", rec.Body.String())
	}
}

func TestSetSourceURL(t *testing.T) {
	h, c := newTestServer(t)

	body := strings.NewReader(`{"audio_url": "https://x/a.mp3"}`)
	rec := doRequest(h, httptest.NewRequest(http.MethodPost, "/api/source", body))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := c.Snapshot().AudioURL; got != "https://x/a.mp3" {
		t.Errorf("Expected audio URL to be set, got %q", got)
	}
}

func TestSetSourceURLMissing(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(h, httptest.NewRequest(http.MethodPost, "/api/source", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestSetSourceFile(t *testing.T) {
	h, c := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "meeting.wav")
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := fw.Write([]byte("RIFF....WAVE")); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/source", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := doRequest(h, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", rec.Code, rec.Body.String())
	}

	snap := c.Snapshot()
	if snap.FileName != "meeting.wav" {
		t.Errorf("Expected file name 'meeting.wav', got %q", snap.FileName)
	}
	if snap.AudioURL != "" {
		t.Errorf("Expected audio URL to be cleared, got %q", snap.AudioURL)
	}
}

func TestSubmitWithoutCredential(t *testing.T) {
	h, c := newTestServer(t)
	c.SetAudioURL("https://x/a.mp3")

	rec := doRequest(h, httptest.NewRequest(http.MethodPost, "/api/submit", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}

func TestSubmitWithoutSource(t *testing.T) {
	h, c := newTestServer(t)
	if err := c.SetCredential("k1"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}

	rec := doRequest(h, httptest.NewRequest(http.MethodPost, "/api/submit", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestSubmitAndFetchJob(t *testing.T) {
	h, c := newTestServer(t)
	if err := c.SetCredential("k1"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}
	c.SetAudioURL("https://x/a.mp3")

	rec := doRequest(h, httptest.NewRequest(http.MethodPost, "/api/submit", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}

	waitForState(t, c, workflow.StateCompleted)

	rec = doRequest(h, httptest.NewRequest(http.MethodGet, "/api/job", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var snap workflow.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("Failed to parse job response: %v", err)
	}
	if snap.State != workflow.StateCompleted {
		t.Errorf("Expected state completed, got %q", snap.State)
	}
	if snap.Job == nil || snap.Job.Text != "hello" {
		t.Errorf("Expected completed job with text, got %+v", snap.Job)
	}
}

func TestReset(t *testing.T) {
	h, c := newTestServer(t)
	if err := c.SetCredential("k1"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}
	c.SetAudioURL("https://x/a.mp3")
	if err := c.Submit(); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitForState(t, c, workflow.StateCompleted)

	rec := doRequest(h, httptest.NewRequest(http.MethodPost, "/api/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var snap workflow.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("Failed to parse reset response: %v", err)
	}
	if snap.State != workflow.StateIdle {
		t.Errorf("Expected state idle after reset, got %q", snap.State)
	}
	if snap.Job != nil {
		t.Errorf("Expected job to be cleared after reset, got %+v", snap.Job)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/credential"},
		{http.MethodGet, "/api/source"},
		{http.MethodGet, "/api/submit"},
		{http.MethodGet, "/api/reset"},
		{http.MethodPost, "/api/job"},
		{http.MethodPost, "/health"},
		{http.MethodPost, "/config"},
		{http.MethodPost, "/stats"},
	}

	for _, tt := range tests {
		rec := doRequest(h, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected status 405, got %d", tt.method, tt.path, rec.Code)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	h, c := newTestServer(t)
	if err := c.SetCredential("k1"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}
	c.SetAudioURL("https://x/a.mp3")
	if err := c.Submit(); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitForState(t, c, workflow.StateCompleted)

	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var stats struct {
		Uptime   string `json:"uptime"`
		Workflow struct {
			State         string `json:"state"`
			Submissions   uint64 `json:"submissions"`
			JobsCompleted uint64 `json:"jobs_completed"`
		} `json:"workflow"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to parse stats response: %v", err)
	}
	if stats.Uptime == "" {
		t.Errorf("Expected uptime to be reported")
	}
	if stats.Workflow.State != string(workflow.StateCompleted) {
		t.Errorf("Expected state completed, got %q", stats.Workflow.State)
	}
	if stats.Workflow.Submissions != 1 {
		t.Errorf("Expected 1 submission, got %d", stats.Workflow.Submissions)
	}
	if stats.Workflow.JobsCompleted != 1 {
		t.Errorf("Expected 1 completed job, got %d", stats.Workflow.JobsCompleted)
	}
}

func TestSetSourceURLBodyTooLarge(t *testing.T) {
	h, _ := newTestServer(t)

	big := `{"audio_url": "https://x/` + strings.Repeat("a", 128<<10) + `"}`
	rec := doRequest(h, httptest.NewRequest(http.MethodPost, "/api/source", strings.NewReader(big)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for oversized body, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}
