// Package config loads and validates relay-broker configuration from YAML.
//
// ${VAR} references are expanded from the environment before parsing.
// Validation failures are fatal at startup: a missing table handle or a
// malformed TTL must stop the process before it serves events.
package config
