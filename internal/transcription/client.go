package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Status is the lifecycle state the service reports for a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether a job in this status will not change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Job represents one transcription request tracked by the service.
type Job struct {
	ID       string `json:"id"`
	AudioURL string `json:"audio_url,omitempty"`
	Status   Status `json:"status"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Config contains transcription API client configuration
type Config struct {
	BaseURL      string
	LanguageCode string
	Timeout      time.Duration
}

// Client issues HTTP requests against the transcription API. It holds no
// job state; the credential is supplied per call.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new transcription API client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.LanguageCode == "" {
		config.LanguageCode = "en_us"
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Upload sends raw audio bytes to the service and returns the URL the
// service assigned to the stored file.
func (c *Client) Upload(ctx context.Context, data []byte, credential string) (string, error) {
	if credential == "" {
		return "", ErrAuthenticationRequired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/upload", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", credential)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req, "upload")
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &UploadError{StatusCode: status, Message: serverMessage(body, status)}
	}

	var resp struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if resp.UploadURL == "" {
		return "", fmt.Errorf("upload response missing upload_url")
	}

	return resp.UploadURL, nil
}

// CreateJob submits a new transcription job for the given audio URL. The
// language code comes from configuration; it is not a per-call choice.
func (c *Client) CreateJob(ctx context.Context, audioURL, credential string) (*Job, error) {
	if credential == "" {
		return nil, ErrAuthenticationRequired
	}

	payload, err := json.Marshal(map[string]string{
		"audio_url":     audioURL,
		"language_code": c.config.LanguageCode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode job request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create job request: %w", err)
	}
	req.Header.Set("Authorization", credential)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req, "create job")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &SubmissionError{StatusCode: status, Message: serverMessage(body, status)}
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job response: %w", err)
	}

	return &job, nil
}

// FetchJob retrieves the current status and result for an existing job.
func (c *Client) FetchJob(ctx context.Context, id, credential string) (*Job, error) {
	if credential == "" {
		return nil, ErrAuthenticationRequired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/transcript/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch request: %w", err)
	}
	req.Header.Set("Authorization", credential)
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req, "fetch job")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &FetchError{StatusCode: status, Message: serverMessage(body, status)}
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job response: %w", err)
	}

	return &job, nil
}

// do performs the request and reads the full response body. Network-level
// failures are wrapped in TransportError so callers can tell them apart
// from error responses the service returned.
func (c *Client) do(req *http.Request, op string) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &TransportError{Op: op, Err: err}
	}

	return body, resp.StatusCode, nil
}

// serverMessage extracts the message from a JSON error body, falling back
// to the raw body and then to the HTTP status text.
func serverMessage(body []byte, status int) string {
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != "" {
		return resp.Error
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}
