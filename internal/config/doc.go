// Package config loads the optional HCL configuration file of the host and
// watches it for changes.
//
// Expressions read the process environment through the env object or the
// getenv function:
//
//	debug     = getenv("CTXBRIDGE_DEBUG") != ""
//	log_level = env.LOG_LEVEL
//
// Command-line flags take precedence over file values; merging happens in
// internal/cli.
package config
