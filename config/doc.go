// Package config loads engine configuration from defaults, an optional
// YAML file, and environment variable overrides, in that precedence
// order. It also builds the zap logger the rest of the module shares.
package config
