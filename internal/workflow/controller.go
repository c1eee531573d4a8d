package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audioscribe/transcript-gateway/internal/metrics"
	"github.com/audioscribe/transcript-gateway/internal/transcription"
)

// State identifies where the workflow is in the lifecycle of the active job.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// ErrNoSource is returned by Submit when neither an audio URL nor a file
// has been selected.
var ErrNoSource = errors.New("workflow: no audio URL or file selected")

// API is the part of the transcription client the controller drives.
type API interface {
	Upload(ctx context.Context, data []byte, credential string) (string, error)
	CreateJob(ctx context.Context, audioURL, credential string) (*transcription.Job, error)
	FetchJob(ctx context.Context, id, credential string) (*transcription.Job, error)
}

// CredentialStore persists the single API credential across restarts.
type CredentialStore interface {
	Load() (string, error)
	Save(credential string) error
}

// Config contains workflow controller configuration
type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// Statistics represents workflow counters since startup
type Statistics struct {
	Submissions    uint64 `json:"submissions"`
	Uploads        uint64 `json:"uploads"`
	UploadFailures uint64 `json:"upload_failures"`
	JobsCompleted  uint64 `json:"jobs_completed"`
	JobsFailed     uint64 `json:"jobs_failed"`
	PollTicks      uint64 `json:"poll_ticks"`
	PollFailures   uint64 `json:"poll_failures"`
}

// Snapshot is the controller state the presentation layer renders.
type Snapshot struct {
	State    State              `json:"state"`
	Job      *transcription.Job `json:"job,omitempty"`
	Error    string             `json:"error,omitempty"`
	AudioURL string             `json:"audio_url,omitempty"`
	FileName string             `json:"file_name,omitempty"`
}

// Controller owns the single active transcription job and the state machine
// around it. All mutation happens under one mutex; async results carry the
// generation they belong to and are dropped once a reset or a newer
// submission has moved the generation on. In-flight HTTP requests are not
// cancelled on reset, only their results are ignored.
type Controller struct {
	api     API
	store   CredentialStore
	logger  *slog.Logger
	metrics *metrics.Metrics

	pollInterval   time.Duration
	requestTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	credential string
	audioURL   string
	fileName   string
	fileData   []byte
	state      State
	job        *transcription.Job
	errMsg     string
	generation uint64
	pollCancel context.CancelFunc
	stats      Statistics
}

// NewController creates a workflow controller seeded with the credential
// from the store.
func NewController(api API, store CredentialStore, logger *slog.Logger, m *metrics.Metrics, config Config) (*Controller, error) {
	if api == nil {
		return nil, fmt.Errorf("transcription API cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("credential store cannot be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics cannot be nil")
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}

	credential, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load stored credential: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		api:            api,
		store:          store,
		logger:         logger,
		metrics:        m,
		pollInterval:   config.PollInterval,
		requestTimeout: config.RequestTimeout,
		ctx:            ctx,
		cancel:         cancel,
		credential:     credential,
		state:          StateIdle,
	}, nil
}

// SetCredential updates the API credential and persists it. An empty
// credential clears the stored value.
func (c *Controller) SetCredential(credential string) error {
	c.mu.Lock()
	c.credential = credential
	c.mu.Unlock()

	if err := c.store.Save(credential); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}

	if credential == "" {
		c.logger.Info("Credential cleared")
	} else {
		c.logger.Info("Credential updated")
	}
	return nil
}

// HasCredential reports whether a credential is currently set.
func (c *Controller) HasCredential() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credential != ""
}

// SetAudioURL selects a remote audio source, dropping any selected file.
func (c *Controller) SetAudioURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioURL = url
	c.fileName = ""
	c.fileData = nil
}

// SetFile selects a local audio payload, dropping any audio URL.
func (c *Controller) SetFile(name string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fileName = name
	c.fileData = data
	c.audioURL = ""
}

// Submit starts a new transcription run. Any previous run is superseded:
// its poll loop is torn down before anything else happens, and late results
// from it are dropped. With no credential or no source the run fails before
// any request is made.
func (c *Controller) Submit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownPollLocked()
	c.generation++
	c.job = nil
	c.errMsg = ""

	if c.credential == "" {
		c.state = StateError
		c.errMsg = transcription.ErrAuthenticationRequired.Error()
		return transcription.ErrAuthenticationRequired
	}
	if c.audioURL == "" && len(c.fileData) == 0 {
		c.state = StateError
		c.errMsg = ErrNoSource.Error()
		return ErrNoSource
	}

	gen := c.generation
	submissionID := uuid.NewString()
	credential := c.credential
	audioURL := c.audioURL
	fileName := c.fileName
	fileData := c.fileData

	if len(fileData) > 0 {
		c.state = StateUploading
	} else {
		c.state = StateSubmitting
	}

	c.stats.Submissions++
	c.metrics.RecordSubmission()
	c.logger.Info("Submission started",
		slog.String("submission_id", submissionID),
		slog.Bool("from_file", len(fileData) > 0),
		slog.String("file_name", fileName),
		slog.String("audio_url", audioURL),
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(gen, submissionID, credential, audioURL, fileName, fileData)
	}()

	return nil
}

// Reset returns the workflow to idle, clearing the job and any error and
// stopping the poll loop. The credential and the selected source survive.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownPollLocked()
	c.generation++
	c.job = nil
	c.errMsg = ""
	c.state = StateIdle
}

// Snapshot returns a copy of the current workflow state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:    c.state,
		Error:    c.errMsg,
		AudioURL: c.audioURL,
		FileName: c.fileName,
	}
	if c.job != nil {
		job := *c.job
		snap.Job = &job
	}
	return snap
}

// GetStatistics returns current workflow statistics
func (c *Controller) GetStatistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close stops the poll loop and waits for in-flight work to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	c.teardownPollLocked()
	c.generation++
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// run executes one submission: optional upload, job creation, and either a
// terminal transition or the start of the poll loop.
func (c *Controller) run(gen uint64, submissionID, credential, audioURL, fileName string, fileData []byte) {
	if len(fileData) > 0 {
		start := time.Now()
		uploadURL, err := c.upload(fileData, credential)
		if err != nil {
			c.mu.Lock()
			c.stats.UploadFailures++
			c.mu.Unlock()
			c.metrics.RecordUploadFailure()
			c.failSubmission(gen, submissionID, err)
			return
		}
		c.mu.Lock()
		c.stats.Uploads++
		c.mu.Unlock()
		c.metrics.RecordUpload(time.Since(start).Seconds())

		if !c.withGeneration(gen, func() { c.state = StateSubmitting }) {
			return
		}
		c.logger.Info("Upload completed",
			slog.String("submission_id", submissionID),
			slog.String("file_name", fileName),
			slog.Int("size_bytes", len(fileData)),
			slog.Duration("elapsed", time.Since(start)),
		)
		audioURL = uploadURL
	}

	job, err := c.createJob(audioURL, credential)
	if err != nil {
		c.failSubmission(gen, submissionID, err)
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.job = job

	switch job.Status {
	case transcription.StatusCompleted:
		c.state = StateCompleted
		c.stats.JobsCompleted++
		c.mu.Unlock()

		c.metrics.RecordJobCompleted()
		c.logger.Info("Transcription completed synchronously",
			slog.String("submission_id", submissionID),
			slog.String("job_id", job.ID),
		)

	case transcription.StatusError:
		c.state = StateError
		c.errMsg = job.Error
		c.stats.JobsFailed++
		c.mu.Unlock()

		c.metrics.RecordJobFailed()
		c.logger.Warn("Service rejected job",
			slog.String("submission_id", submissionID),
			slog.String("job_id", job.ID),
			slog.String("error", job.Error),
		)

	default:
		pollCtx, pollCancel := context.WithCancel(c.ctx)
		c.pollCancel = pollCancel
		c.state = StatePolling
		c.mu.Unlock()

		c.logger.Info("Polling started",
			slog.String("submission_id", submissionID),
			slog.String("job_id", job.ID),
			slog.Duration("interval", c.pollInterval),
		)

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.pollLoop(pollCtx, gen, submissionID, job.ID, credential)
		}()
	}
}

// pollLoop re-fetches the job at a fixed interval until a terminal status
// or a fetch failure. There is deliberately no backoff and no attempt cap;
// reset or shutdown is what ends a run that never finishes.
func (c *Controller) pollLoop(ctx context.Context, gen uint64, submissionID, jobID, credential string) {
	c.metrics.PollStarted()
	defer c.metrics.PollStopped()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			c.mu.Lock()
			c.stats.PollTicks++
			c.mu.Unlock()
			c.metrics.RecordPollTick()

			job, err := c.fetchJob(jobID, credential)
			if err != nil {
				if ctx.Err() != nil {
					return // torn down while the request was in flight
				}
				c.mu.Lock()
				c.stats.PollFailures++
				c.mu.Unlock()
				c.metrics.RecordPollFailure()
				c.failSubmission(gen, submissionID, err)
				return
			}

			if !job.Status.Terminal() {
				c.logger.Debug("Job still processing",
					slog.String("job_id", jobID),
					slog.String("status", string(job.Status)),
				)
				continue
			}

			applied := c.withGeneration(gen, func() {
				c.job = job
				if job.Status == transcription.StatusCompleted {
					c.state = StateCompleted
					c.stats.JobsCompleted++
				} else {
					c.state = StateError
					c.errMsg = job.Error
					c.stats.JobsFailed++
				}
			})
			if !applied {
				return
			}

			if job.Status == transcription.StatusCompleted {
				c.metrics.RecordJobCompleted()
				c.logger.Info("Transcription completed",
					slog.String("submission_id", submissionID),
					slog.String("job_id", jobID),
					slog.Int("text_length", len(job.Text)),
				)
			} else {
				c.metrics.RecordJobFailed()
				c.logger.Warn("Transcription failed",
					slog.String("submission_id", submissionID),
					slog.String("job_id", jobID),
					slog.String("error", job.Error),
				)
			}
			return
		}
	}
}

// failSubmission moves the workflow to the error state unless the
// submission has been superseded.
func (c *Controller) failSubmission(gen uint64, submissionID string, err error) {
	applied := c.withGeneration(gen, func() {
		c.state = StateError
		c.errMsg = err.Error()
	})
	if !applied {
		return
	}

	c.logger.Error("Submission failed",
		slog.String("submission_id", submissionID),
		slog.String("error", err.Error()),
	)
}

// withGeneration runs fn under the lock only if gen is still current.
func (c *Controller) withGeneration(gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	fn()
	return true
}

// teardownPollLocked cancels the active poll loop, if any. Callers hold c.mu.
func (c *Controller) teardownPollLocked() {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
}

func (c *Controller) upload(data []byte, credential string) (string, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.requestTimeout)
	defer cancel()
	return c.api.Upload(ctx, data, credential)
}

func (c *Controller) createJob(audioURL, credential string) (*transcription.Job, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.requestTimeout)
	defer cancel()
	return c.api.CreateJob(ctx, audioURL, credential)
}

func (c *Controller) fetchJob(id, credential string) (*transcription.Job, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.requestTimeout)
	defer cancel()
	return c.api.FetchJob(ctx, id, credential)
}
