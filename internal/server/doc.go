// Package server exposes the matching service over HTTP for local front ends.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Endpoints
//
//	GET    /health                     liveness and whether a batch is running
//	POST   /api/batches                start a batch from a JSON list of source entries
//	POST   /api/batches/resume         resume with the pending set, keeping reviewed results
//	DELETE /api/batches/current        cancel the running batch
//	GET    /api/batches/stream         WebSocket stream of batch and cache events
//	GET    /api/results                current results, pending set and stats
//	POST   /api/results/{id}/{action}  accept, reject, select or reset one result
//	DELETE /api/cache                  clear the whole cache, or ?title=... entries
//
// # Event Stream
//
// Every connected WebSocket client receives each batch [tasks.Event] as a JSON text message, plus a
// "cache" message whenever the result cache changes. The stream is one-way; client messages are
// read and discarded.
package server
