// Package orchestrator wires a named wizard definition, the remote channel
// and a terminal runner into a single entry point.
package orchestrator
