// Package api provides the JSON HTTP API of a convmem pipeline.
//
// Every response except exports is wrapped in Response{Data, Error, Meta}.
//
// # Endpoints
//
// Dashboard:
//   - GET /dashboard - Counters aggregated over sessions
//
// Sessions:
//   - GET /sessions - List sessions (paginated, most recently active first)
//   - POST /sessions - Create a new session ID
//   - GET /sessions/{id} - Stats, context usage and latest summary
//   - GET /sessions/{id}/stats - Message, summary and token counters
//   - GET /sessions/{id}/context - Live tokens against the threshold
//   - DELETE /sessions/{id} - Delete messages and summaries
//
// Turns:
//   - POST /sessions/{id}/turns - Run a turn, body {"query": "..."}
//
// Messages:
//   - GET /sessions/{id}/messages - Message log, ?filter=unarchived for live messages
//   - GET /sessions/{id}/summaries - Summaries, oldest first
//   - GET /sessions/{id}/export - Transcript, ?format=jsonl (default) or html
//
// Errors map to statuses: empty query 400, unknown session 404, range
// conflict 409, generation failure 502, anything else 500.
package api
