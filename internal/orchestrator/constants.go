// Package orchestrator wires the hook detector to its collaborators and fans
// its events out to presentation sinks.
package orchestrator

// Orchestrator configuration constants
const (
	// Per-subscriber event buffer. A sink that falls this far behind loses events.
	SubscriberBuffer = 32
)
