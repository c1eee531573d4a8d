// Package credstore persists the single API credential between runs.
// It is a small file-backed key store: saved when the credential is set,
// removed when it is cleared, read once at startup to seed the workflow.
package credstore
