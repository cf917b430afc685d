// Package calendar turns upcoming meetings into draft sessions and fires the
// one-shot reminder and upload-nudge notifications around them.
//
// A Watcher owns the draft table. Sync pulls events from an EventSource
// (MockSource for fixtures, FileSource for a YAML schedule with hot reload)
// and CheckTriggers may be called any number of times: each draft's
// ReminderSent and NudgeSent flags guarantee at most one delivery.
package calendar
