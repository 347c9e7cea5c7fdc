// Package ledger persists the media catalog, detected faces, and the scan
// ledger in SQLite.
//
// The catalog (media) lists every image the daemon may analyse. The scan
// ledger (face_scan_list) records which media have been processed so a
// SCAN_ALL only visits new work; face holds one row per detected face.
//
// Open applies goose migrations and is called once per process. Connect opens
// an additional scoped connection against an already migrated database; the
// scan worker holds one such connection per worklist generation. Writes retry
// briefly while SQLite reports the database as busy, and a busy error that
// outlives the retries is classified as transient.
package ledger
