// Package dispatch is the boundary to the background task queue. It
// defines the typed work descriptors the catalog accepts (generate-preview,
// bulk-generate, import-directory), their idempotency contract, and an
// in-process worker pool that executes them and feeds completions back to
// submitters.
package dispatch
