package catalog

import "errors"

// Error taxonomy shared across the store, preview, and workflow components.
// Callers classify failures with errors.Is; wrapped context travels via %w.
var (
	// ErrInvalidInput marks a malformed or unreadable source. Not retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIntegrityViolation marks a broken identity or consistency invariant
	// (fingerprint/path collision, stage/ledger disagreement). Fatal; never
	// silently retried.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrStorageExhausted marks resource exhaustion on the canonical or
	// preview store. Retried only after operator intervention.
	ErrStorageExhausted = errors.New("storage exhausted")

	// ErrSourceUnavailable marks canonical bytes missing or unreadable at
	// generation time.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrCodecError marks a decode, resize, or encode failure on an
	// individual artifact.
	ErrCodecError = errors.New("codec error")

	// ErrInvalidTransition marks a workflow transition not permitted by the
	// stage graph. Nothing is mutated; the caller may retry with a valid
	// target stage.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotFound marks a missing photo, artifact, or ledger entry.
	ErrNotFound = errors.New("not found")
)
