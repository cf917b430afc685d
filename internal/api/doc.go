// Package api defines the wire types of the daemon's HTTP API and a client
// for them used by the CLI.
//
// Session payloads reuse session.Projection directly so the server and the
// client cannot drift; the remaining envelopes live in types.go. JSON keys
// are snake_case throughout. Errors are returned as {"error": "..."} and the
// client maps status codes back onto the services error markers (404 to
// ErrNotFound, 400 and 409 to ErrValidation, 503 to ErrTransient).
package api
