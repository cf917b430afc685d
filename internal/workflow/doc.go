// Package workflow runs submitted sessions through the documentation
// pipeline in the background.
//
// Each submitted session gets its own goroutine, tracked by the Manager's
// WaitGroup. The runner reports progress through the session controller,
// polls for cancellation between pipeline bands and again before committing
// output, writes documentation.md and segments.json into the session
// artifact directory, and finishes the record as completed or failed. A
// sweep loop reaps zombie sessions on a fixed interval so stale records are
// remediated even when nobody is querying them.
//
// Notifications (documentation ready, session failed) and calendar draft
// status updates are best effort: delivery failures are logged and never
// change the session outcome.
package workflow
