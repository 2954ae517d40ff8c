// Package contentstore implements the content-addressable canonical store.
// Every ingested original is fingerprinted with SHA-256 over its full byte
// stream and written once to a date-bucketed path; duplicate ingests are
// detected by fingerprint and write nothing.
package contentstore
