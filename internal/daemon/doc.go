// Package daemon coordinates the long-running devlens process.
//
// It wires configuration, the SQLite session snapshot store, the session
// controller, the calendar watcher, the content source, and the workflow
// manager into a single lifecycle, with flock-based locking to prevent
// multiple instances sharing a state directory. The HTTP API server in
// api_server.go is the only external surface; the CLI talks to it through
// internal/api.
//
// Keep orchestration logic here: pipeline and lifecycle rules live in their
// own packages while the daemon focuses on startup, shutdown, and request
// routing.
package daemon
