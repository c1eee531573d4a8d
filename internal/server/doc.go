// Package server implements the HTTP API the browser front end talks to.
// It carries the workflow intents (credential, source selection, submit,
// reset), exposes the current state/job/error snapshot, and provides
// monitoring and management endpoints.
package server
