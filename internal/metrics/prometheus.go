package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcript gateway
type Metrics struct {
	// Submission workflow metrics
	SubmissionsTotal prometheus.Counter
	UploadsTotal     prometheus.Counter
	UploadFailures   prometheus.Counter
	UploadDuration   prometheus.Histogram

	// Job outcome metrics
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter

	// Polling metrics
	PollTicks    prometheus.Counter
	PollFailures prometheus.Counter
	ActivePolls  prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics against the
// given registerer. Production code passes prometheus.DefaultRegisterer;
// tests pass a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Submission workflow metrics
		SubmissionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_submissions_total",
			Help: "Total number of transcription submissions started",
		}),
		UploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_uploads_total",
			Help: "Total number of successful audio uploads",
		}),
		UploadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_upload_failures_total",
			Help: "Total number of failed audio uploads",
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribe_upload_duration_seconds",
			Help:    "Duration of audio uploads",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Job outcome metrics
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_jobs_completed_total",
			Help: "Total number of jobs that finished with a transcript",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_jobs_failed_total",
			Help: "Total number of jobs that ended in an error",
		}),

		// Polling metrics
		PollTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_poll_ticks_total",
			Help: "Total number of job status poll requests",
		}),
		PollFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_poll_failures_total",
			Help: "Total number of poll requests that failed",
		}),
		ActivePolls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transcribe_active_polls",
			Help: "Number of currently running poll loops",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transcribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcribe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transcribe_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSubmission increments the submissions counter
func (m *Metrics) RecordSubmission() {
	m.SubmissionsTotal.Inc()
}

// RecordUpload records a successful upload and its duration
func (m *Metrics) RecordUpload(durationSeconds float64) {
	m.UploadsTotal.Inc()
	m.UploadDuration.Observe(durationSeconds)
}

// RecordUploadFailure increments the upload failures counter
func (m *Metrics) RecordUploadFailure() {
	m.UploadFailures.Inc()
}

// RecordJobCompleted increments the completed jobs counter
func (m *Metrics) RecordJobCompleted() {
	m.JobsCompleted.Inc()
}

// RecordJobFailed increments the failed jobs counter
func (m *Metrics) RecordJobFailed() {
	m.JobsFailed.Inc()
}

// RecordPollTick increments the poll ticks counter
func (m *Metrics) RecordPollTick() {
	m.PollTicks.Inc()
}

// RecordPollFailure increments the poll failures counter
func (m *Metrics) RecordPollFailure() {
	m.PollFailures.Inc()
}

// PollStarted marks a poll loop as running
func (m *Metrics) PollStarted() {
	m.ActivePolls.Inc()
}

// PollStopped marks a poll loop as finished
func (m *Metrics) PollStopped() {
	m.ActivePolls.Dec()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
