// Package cmd implements the command-line interface of pstore. It provides a
// hierarchical command structure for running the server and talking to it as
// a client.
//
// The package is organized into several subpackages:
//
//   - serve: Command for starting and configuring the pstore server
//   - client: Commands for the protocol requests (key, reg, set, get, ...) and a load generator
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See pstore -help for a list of all commands.
package cmd
