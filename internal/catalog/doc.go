// Package catalog defines the photo catalog's domain model: photos keyed by
// content fingerprint, workflow stages, preview artifact keys, the
// append-only processing action shape, and the shared error taxonomy.
package catalog
