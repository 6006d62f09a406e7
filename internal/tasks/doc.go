// Package tasks resolves reading-list entries to target catalog records.
//
// # Components
//
//   - [Searcher] : one title search at a time, through the rate limiter and result cache, with
//     retries of temporary failures, pagination and ranking (including exact-only mode)
//   - [Driver] : a batch over many entries in three stages: known IDs fetched in chunks, cache
//     hits, then title searches one by one
//   - [Service] : owns the shared cache, limiter and driver, runs at most one batch at a time,
//     persists results and the pending set, and applies review actions
//
// # Progress Reporting
//
// Batches report through a [ProgressUpdate] channel. Sends never block; Step strictly increases.
// [Service.StartBatch] turns updates into an [Event] stream that ends with an [EventDone] event.
//
// # Cancellation
//
// Cancelling a batch stops new catalog calls. Everything resolved so far is kept and the
// remaining entries form the pending set; [Service.Resume] picks them up later while keeping any
// reviewed result.
package tasks
