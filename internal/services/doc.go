// Package services defines shared utilities consumed by the session runner
// and the external integrations it talks to.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (transient collaborator errors vs validation problems) without
//     string matching.
//
// Use these helpers when wiring new integrations so error handling and
// observability stay uniform across the pipeline.
package services
