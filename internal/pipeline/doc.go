// Package pipeline runs the per-item scan step: existence check, dedup,
// dimension probe, decode, face detection, persistence, and the scan ledger
// append.
//
// Each stage short-circuits the rest. A missing file yields ErrSkipped and an
// already recorded item yields ErrAlreadyScanned; neither touches the ledger.
// Every other outcome ends with the item appended to the scan ledger, except
// failures classified as transient, which are left for a later scan to retry.
package pipeline
