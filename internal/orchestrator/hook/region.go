package hook

import (
	"image"

	"github.com/GriffinCanCode/hookwatch/internal/config"
	apperrors "github.com/GriffinCanCode/hookwatch/internal/errors"
)

// Region is a tracked player slot. ID is stable, Label is for display only.
type Region struct {
	ID     string
	Label  string
	Bounds image.Rectangle
}

// RegionsFromConfig converts configured regions to screen rectangles.
func RegionsFromConfig(cfg []config.Region) []Region {
	regions := make([]Region, 0, len(cfg))
	for _, r := range cfg {
		label := r.Label
		if label == "" {
			label = r.ID
		}
		regions = append(regions, Region{
			ID:     r.ID,
			Label:  label,
			Bounds: image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height),
		})
	}
	return regions
}

// State is a region's detection state.
type State int

const (
	// Unmonitored regions have no usable template and never count.
	Unmonitored State = iota
	// Idle regions did not match on the last cycle.
	Idle
	// Matched regions matched their template on the last cycle.
	Matched
)

var stateNames = [...]string{"unmonitored", "idle", "matched"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return apperrors.Newf(apperrors.InvalidArgument, "unknown region state %q", b)
}
