// Package session owns the lifecycle of documentation sessions.
//
// A Controller keeps an in-memory table of Records, serializes mutations per
// session id, enforces the one-directional status machine, and fails
// processing sessions whose heartbeat (LastUpdated) has gone quiet. When no
// session record is live it answers active-session queries from calendar
// drafts instead.
//
// Persistence is best effort: records are handed to an optional Persister
// after each mutation and reloaded with Restore on startup.
package session
