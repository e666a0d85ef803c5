// Package ingest runs a scan: it resolves the configured roots, walks them,
// extracts service records and writes them to the store.
//
// A run moves through
//
//	Idle → ResolvingPaths → Walking → Extracting → Writing → Done | Failed
//
// and only configuration errors, a missing installation root or a store
// that cannot be opened end in Failed. Every other problem is confined to
// the file that caused it and becomes a Skipped outcome.
//
// # Concurrency
//
// With one worker the run is a plain loop. With more, an errgroup of
// extraction workers feeds a bounded channel drained by a single writer
// that owns the store. Cancelling the context stops the walk and the
// writer between files; everything written before that stays committed.
package ingest
