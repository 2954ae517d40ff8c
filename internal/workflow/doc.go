// Package workflow implements the editorial stage state machine. Photos
// move INCOMING through REVIEWED, BASIC_EDIT, CURATED, and REFINED to
// FINAL, with REJECTED reachable from every non-terminal stage and
// reversible back to INCOMING. Stage updates and their ledger entries
// commit atomically.
package workflow
