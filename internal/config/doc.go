// Package config loads, normalizes, and validates Mirage configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// DEFAULT_LOCATION and ATMOS_CMD. Overrides may also live in a dotenv file
// (~/.config/mirage/.env by default); the process environment wins over it.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, resolved tool commands, and clear validation errors. Every
// load failure is tagged with services.ErrConfiguration.
package config
