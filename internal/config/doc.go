// Package config loads, normalizes, and validates postflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CRON_SECRET, HEYGEN_API_KEY, and OPENAI_API_KEY. The Config type centralizes every knob the
// daemon and CLI need: brand slot pools, platform hour rankings, stuck
// thresholds, and the credentials for each external collaborator.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, lowercase brand and platform keys, and clear validation
// errors.
package config
