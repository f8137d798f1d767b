// Package config loads and validates beamcore configuration.
//
// Configuration is layered: hardcoded defaults, then a YAML file, then
// BEAMCORE_* environment variable overrides. Load returns a validated
// *Config or an error describing every problem found.
//
// Secrets (JWT secret, operator key, MQTT password, InfluxDB token) should
// be supplied through environment variables rather than the YAML file.
package config
