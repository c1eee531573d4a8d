package transcription

import (
	"errors"
	"fmt"
)

// ErrAuthenticationRequired is returned when an operation is attempted
// without a credential. No request is sent in that case.
var ErrAuthenticationRequired = errors.New("transcription: API key required")

// UploadError indicates the service rejected an audio upload.
type UploadError struct {
	StatusCode int
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: HTTP %d: %s", e.StatusCode, e.Message)
}

// SubmissionError indicates the service rejected a job creation request.
type SubmissionError struct {
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("job submission failed: HTTP %d: %s", e.StatusCode, e.Message)
}

// FetchError indicates a job status request failed with a non-2xx response.
type FetchError struct {
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("job fetch failed: HTTP %d: %s", e.StatusCode, e.Message)
}

// TransportError indicates a network-level failure, as opposed to an error
// response from the service.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transcription %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
