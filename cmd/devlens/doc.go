// Command devlens runs the documentation daemon and talks to it over HTTP.
//
// `devlens serve` starts the daemon in the foreground. Every other command is
// a thin client of the daemon API: sessions, drafts, modes, and status render
// as tables by default and as JSON with --json.
package main
