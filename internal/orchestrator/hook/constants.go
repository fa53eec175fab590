// Package hook runs the capture-and-match loop that counts hook events per
// player region.
package hook

import "time"

// Loop defaults, used when the corresponding option is left zero.
const (
	DefaultInterval    = 5 * time.Second
	DefaultEventBuffer = 64
)
