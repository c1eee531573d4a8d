// Package transcription implements the HTTP client for the external
// speech-to-text API. It covers the three operations the workflow needs:
// uploading raw audio, creating a transcription job, and fetching job
// status. Failures map to typed errors carrying the HTTP status and the
// server-provided message where one is available.
package transcription
