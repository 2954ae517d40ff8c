// Package scanner ingests photo files and whole directories into the
// catalog: content fingerprinting via the store, record creation, decoded
// dimensions, and metadata extraction.
package scanner
