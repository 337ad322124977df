package service

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"plant-monitor/internal/dashboard"
	"plant-monitor/internal/fleet"
	"plant-monitor/internal/status"
)

var (
	jsonFast = jsoniter.ConfigFastest
)

// Message types pushed to dashboard clients.
const (
	TypeDashboard = "dashboard"
	TypeMachine   = "machine"
	TypeRemoved   = "machine_removed"
	TypePlant     = "plant"
)

// Envelope is every realtime message: a type tag plus one payload.
type Envelope struct {
	Type      string             `json:"type"`
	Dashboard *dashboard.View    `json:"dashboard,omitempty"`
	Machine   *dashboard.Machine `json:"machine,omitempty"`
	MachineID string             `json:"machine_id,omitempty"`
	Plant     *dashboard.Plant   `json:"plant,omitempty"`
}

// StatusEvent is published when a machine changes severity or leaves the plant.
type StatusEvent struct {
	Type      string           `json:"type"`
	MachineID string           `json:"machine_id"`
	Previous  *status.Severity `json:"previous"`
	Current   *status.Severity `json:"current"`
	Plant     status.Severity  `json:"plant"`
	At        time.Time        `json:"at"`
}

func newStatusEvent(c fleet.Change) StatusEvent {
	ev := StatusEvent{
		Type:      "machine_status",
		MachineID: c.ID(),
		Plant:     c.Plant,
		At:        c.At,
	}
	if c.Previous.Known() {
		prev := c.Previous.Severity()
		ev.Previous = &prev
	}
	if !c.Removed {
		cur := c.Machine.Severity()
		ev.Current = &cur
	}
	return ev
}
