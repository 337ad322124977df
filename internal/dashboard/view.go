package dashboard

import (
	"time"

	"plant-monitor/internal/fleet"
	"plant-monitor/internal/status"
)

// Machine is the list and card projection of one machine. It is the shape the
// machines endpoint has always served, extended with display hints.
type Machine struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     status.Severity `json:"status"`
	Color      string          `json:"color"`
	Icon       string          `json:"icon"`
	Label      string          `json:"label"`
	Metrics    status.Metrics  `json:"metrics"`
	Faults     []status.Fault  `json:"faults"`
	ObservedAt *time.Time      `json:"observed_at,omitempty"`
}

// Detail adds the reasons behind the severity.
type Detail struct {
	Machine
	Breaches []status.Breach `json:"breaches"`
}

// Counts is keyed by severity name so every level appears in JSON.
type Counts map[string]int

// Plant is the plant banner projection.
type Plant struct {
	Status      status.Severity `json:"status"`
	Color       string          `json:"color"`
	Label       string          `json:"label"`
	Counts      Counts          `json:"counts"`
	Total       int             `json:"total"`
	Stale       bool            `json:"stale"`
	LastRefresh *time.Time      `json:"last_refresh,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

// View is the whole dashboard: the banner plus every machine sorted by id.
type View struct {
	Plant    Plant     `json:"plant"`
	Machines []Machine `json:"machines"`
}

func FromMachine(h status.MachineHealth) Machine {
	sev := h.Severity()
	faults := h.Faults()
	if faults == nil {
		faults = []status.Fault{}
	}
	m := Machine{
		ID:      h.ID(),
		Name:    h.Name(),
		Status:  sev,
		Color:   sev.Color(),
		Icon:    sev.Icon(),
		Label:   sev.Label(),
		Metrics: h.Metrics(),
		Faults:  faults,
	}
	if at := h.ObservedAt(); !at.IsZero() {
		m.ObservedAt = &at
	}
	return m
}

func FromDetail(h status.MachineHealth) Detail {
	breaches := h.Breaches()
	if breaches == nil {
		breaches = []status.Breach{}
	}
	return Detail{Machine: FromMachine(h), Breaches: breaches}
}

func FromPlant(d fleet.Dashboard) Plant {
	counts := make(Counts, len(d.Counts))
	for s, n := range d.Counts {
		counts[s.String()] = n
	}
	p := Plant{
		Status:    d.Plant,
		Color:     d.Plant.Color(),
		Label:     d.Plant.Label(),
		Counts:    counts,
		Total:     len(d.Machines),
		Stale:     d.Stale,
		LastError: d.LastError,
	}
	if !d.LastRefresh.IsZero() {
		at := d.LastRefresh
		p.LastRefresh = &at
	}
	return p
}

func FromDashboard(d fleet.Dashboard) View {
	machines := make([]Machine, 0, len(d.Machines))
	for _, h := range d.Machines {
		machines = append(machines, FromMachine(h))
	}
	return View{Plant: FromPlant(d), Machines: machines}
}
