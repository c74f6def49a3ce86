// Package config loads, normalizes, and validates quill configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// QUILL_LLM_API_KEY and OLLAMA_HOST. The Config type centralizes every knob the
// CLI and job runner need, so state directories, pacing bounds, and external
// service settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
