// Package app wires application dependencies for the CLI.
//
// It loads Config from flags and the TOML config file, builds the log
// backend, stores, relay clients and services, and exposes them through
// Wire. Commands that talk to peers live get a Client from Wire.Dial.
package app
