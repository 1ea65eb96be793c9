// Package api provides the JSON REST API server for docent.
//
// # Architecture
//
// The server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// RequestID runs before Logging so request_id is available in log
// attributes. CORS runs before RateLimit so preflight OPTIONS requests get
// proper CORS headers even when throttled. Health probes bypass the stack
// via a top-level mux, so they stay fast and unthrottled.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /api/health — returns {"status":"ok","version":...}
//   - GET /ready      — pings the database, 503 until it answers
//
// Chat:
//   - POST /api/chat        — one synchronous exchange, returns
//     {"answer","router","documents"}
//   - POST /api/chat/stream — SSE endpoint streaming the answer
//
// Threads (registered only when a thread store is configured):
//   - POST   /api/threads         — create a thread for a user
//   - POST   /api/threads/search  — list a user's threads, newest first
//   - GET    /api/threads/{id}    — fetch one thread with its stored values
//   - DELETE /api/threads/{id}    — delete a thread
//
// There is no login. Callers identify themselves by sending a user id in
// thread request bodies; chat requests carry the conversation inline and
// name a thread id only when the exchange should be persisted.
//
// # Error Handling
//
// REST failures return {"error": <code>, "message": <text>} with a stable
// machine-readable code. Stream failures arrive as SSE error events
// instead, since the SSE headers are already committed by the time the
// pipeline runs.
//
// # SSE Streaming
//
// Chat responses stream via Server-Sent Events with typed events:
//
//   - chunk: incremental answer text
//   - done:  final result with router and documents
//   - error: pipeline or persistence failure
//
// Exactly one terminal event (done or error) ends every stream.
package api
