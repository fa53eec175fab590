package server

import (
	"time"

	"github.com/GriffinCanCode/hookwatch/internal/orchestrator"
	"github.com/GriffinCanCode/hookwatch/internal/orchestrator/hook"
)

// Message is the envelope every WebSocket message shares.
type Message struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id,omitempty"`
}

type RegionView struct {
	ID           string     `json:"id"`
	Label        string     `json:"label"`
	State        hook.State `json:"state"`
	Count        int        `json:"count"`
	Score        float64    `json:"score"`
	HashDistance int        `json:"hash_distance"`
	Error        string     `json:"error,omitempty"`
}

type StatusMessage struct {
	Type         string       `json:"type"`
	Running      bool         `json:"running"`
	RunID        string       `json:"run_id,omitempty"`
	StartEnabled bool         `json:"start_enabled"`
	StopEnabled  bool         `json:"stop_enabled"`
	LastCycle    *time.Time   `json:"last_cycle,omitempty"`
	Regions      []RegionView `json:"regions"`
}

type ControlResponse struct {
	Changed bool          `json:"changed"`
	Status  StatusMessage `json:"status"`
}

type CountMessage struct {
	Type     string `json:"type"`
	RunID    string `json:"run_id,omitempty"`
	RegionID string `json:"region_id"`
	Label    string `json:"label"`
	Count    int    `json:"count"`
}

type StateMessage struct {
	Type    string `json:"type"`
	RunID   string `json:"run_id,omitempty"`
	Running bool   `json:"running"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func statusMessage(st orchestrator.Status) StatusMessage {
	msg := StatusMessage{
		Type:         "status",
		Running:      st.Running,
		RunID:        st.RunID,
		StartEnabled: !st.Running,
		StopEnabled:  st.Running,
		Regions:      make([]RegionView, 0, len(st.Regions)),
	}
	if !st.LastCycle.IsZero() {
		t := st.LastCycle
		msg.LastCycle = &t
	}
	for _, r := range st.Regions {
		msg.Regions = append(msg.Regions, regionView(r))
	}
	return msg
}

func regionView(r hook.RegionResult) RegionView {
	return RegionView{
		ID:           r.ID,
		Label:        r.Label,
		State:        r.State,
		Count:        r.Count,
		Score:        r.Score,
		HashDistance: r.HashDistance,
		Error:        r.Err,
	}
}

// eventMessage converts a detector event to its wire form.
func eventMessage(evt orchestrator.Event) (any, bool) {
	switch evt.Kind {
	case hook.EventCount:
		return CountMessage{Type: "count", RunID: evt.RunID, RegionID: evt.RegionID, Label: evt.Label, Count: evt.Count}, true
	case hook.EventState:
		return StateMessage{Type: "state", RunID: evt.RunID, Running: evt.Running}, true
	default:
		return nil, false
	}
}
