// Package workflow owns the submission state machine for the single active
// transcription job. It drives the transcription client through upload, job
// creation, and fixed-interval status polling, and exposes the
// state/job/error tuple the presentation layer renders. At most one poll
// loop runs at a time; a new submission or a reset tears down the previous
// one before proceeding.
package workflow
