// Package database persists the photo catalog in SQLite: photo records
// keyed by content fingerprint, extracted metadata, preview artifact
// records, and the append-only processing action ledger.
//
// The one transactional write path is ApplyTransition, which updates a
// photo's workflow stage and appends the matching ledger entry atomically.
package database
