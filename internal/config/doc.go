// Package config loads, normalizes, and validates devlens configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY, GROQ_API_KEY and DEVLENS_NTFY_TOPIC. The Config type
// centralizes every knob the daemon and CLI need so artifact and state
// directories, calendar timing, and external service credentials are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
