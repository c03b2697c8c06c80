// Package config loads, normalizes, and validates wepp configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks such as REDCAP_API_TOKEN. The Config type centralizes
// every knob the CLI needs: the workspace location, REDCap credentials, default
// picking windows, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
