// Package cli implements the scrollkeeper command line: a cobra command tree
// over the reading service and an interactive REPL that dispatches into the
// same tree.
//
// The store is opened and the secret is requested lazily, on the first
// command that needs them, so "help" works without either.
package cli
