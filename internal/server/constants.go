// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Per-connection sliding window for inbound WebSocket commands
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Deadline for a single write to one client
	WriteTimeout = 5 * time.Second

	// Outbound messages queued per client; a client this far behind loses messages
	ClientQueue = 64
)
