package service

import (
	"go.uber.org/zap"

	"plant-monitor/internal/dashboard"
	"plant-monitor/internal/fleet"
	"plant-monitor/internal/realtime"
)

// RealtimeService pushes working set changes to websocket clients.
type RealtimeService struct {
	fleet  *fleet.Fleet
	hub    *realtime.Hub
	logger *zap.SugaredLogger
}

func NewRealtimeService(f *fleet.Fleet, hub *realtime.Hub, logger *zap.SugaredLogger) *RealtimeService {
	return &RealtimeService{fleet: f, hub: hub, logger: logger}
}

// Start subscribes the service to the working set.
func (r *RealtimeService) Start() {
	r.fleet.OnChange(r.handleChange)
	r.fleet.OnFreshness(r.handleFreshness)
}

// Snapshot builds the full dashboard message sent to a new client.
func (r *RealtimeService) Snapshot() ([]byte, error) {
	view := dashboard.FromDashboard(r.fleet.View())
	return jsonFast.Marshal(Envelope{Type: TypeDashboard, Dashboard: &view})
}

func (r *RealtimeService) handleChange(c fleet.Change) {
	var machineMsg Envelope
	if c.Removed {
		machineMsg = Envelope{Type: TypeRemoved, MachineID: c.ID()}
	} else {
		m := dashboard.FromMachine(c.Machine)
		machineMsg = Envelope{Type: TypeMachine, MachineID: c.ID(), Machine: &m}
	}
	if b, err := jsonFast.Marshal(machineMsg); err != nil {
		r.logger.Errorw("failed to encode machine update", "machine_id", c.ID(), "error", err)
	} else {
		r.hub.BroadcastTo(c.ID(), b)
	}

	// The banner only moves when the plant severity or the membership changes.
	if c.Plant == c.PreviousPlant && !c.SeverityChanged() {
		return
	}
	r.broadcastPlant()
}

// handleFreshness pushes the banner when the stale flag or the last error moves.
func (r *RealtimeService) handleFreshness(fr fleet.Freshness) {
	r.logger.Debugw("dashboard freshness changed", "stale", fr.Stale, "last_error", fr.LastError)
	r.broadcastPlant()
}

func (r *RealtimeService) broadcastPlant() {
	plant := dashboard.FromPlant(r.fleet.View())
	b, err := jsonFast.Marshal(Envelope{Type: TypePlant, Plant: &plant})
	if err != nil {
		r.logger.Errorw("failed to encode plant update", "error", err)
		return
	}
	r.hub.BroadcastAll(b)
}
