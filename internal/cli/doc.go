// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates subcommands, flags and the optional HCL config file into the
// application's internal configuration; flags win over file values.
package cli
