// Package tui renders a terminal dashboard of hook counts with keyboard
// control of detection.
package tui

import "time"

// Dashboard timing
const (
	RefreshInterval = 250 * time.Millisecond
	FlashDuration   = 2 * time.Second
)

// Chime tone
const (
	ChimeFrequency = 880.0
	ChimeDuration  = 180 * time.Millisecond
	ChimeDecay     = 18.0
	ChimeVolume    = 0.3
)
