// Package config loads, normalizes, and validates Lorekeeper configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, loads a .env file when present, and honours environment fallbacks
// such as OPENAI_API_KEY and DATABASE_URL. The Config type centralizes every knob
// the CLI and API server need so storage locations and service credentials are
// discovered in one pass.
package config
