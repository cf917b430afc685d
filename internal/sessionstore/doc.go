// Package sessionstore keeps best-effort SQLite snapshots of session records
// so the daemon can restore its table after a restart.
//
// The Store implements session.Persister. Every mutation upserts the full
// record; nothing is transactional across sessions and a failed write is the
// caller's to log. The database is transient state rather than an archive:
// schema changes bump the version in schema.go and users delete the file to
// adopt the new schema.
package sessionstore
