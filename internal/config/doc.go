// Package config loads, normalizes, and validates winecellar configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a sibling .env file, and honours
// environment fallbacks such as WINECELLAR_OCR_API_KEY. The Config type
// centralizes every knob the CLI and daemon need: data directories, the
// content service endpoint, OCR credentials, retry policies, and scheduling.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
