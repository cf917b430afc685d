// Package notifications delivers session and meeting events via pluggable
// notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Events addressed
// to meeting attendees are published once per recipient with ntfy's Email
// header so each attendee receives their own copy.
//
// Workflow and calendar code depend only on the Service interface.
package notifications
