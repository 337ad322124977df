package model

import (
	"encoding/json"
	"strings"
	"time"
)

// FaultRecord is a fault as telemetry reports it. Both the API shape {code, label}
// and the dashboard shape {id, message} are accepted.
type FaultRecord struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

func (f *FaultRecord) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	f.Code = firstString(raw, "code", "id", "fault_code")
	f.Label = firstString(raw, "label", "message", "description")
	return nil
}

// MachineRecord is one machine's raw telemetry before normalization.
// Metric values are kept untyped so the adapter can tell "absent" from "not a number".
type MachineRecord struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Status     string         `json:"status,omitempty"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	Faults     []FaultRecord  `json:"faults,omitempty"`
	ObservedAt time.Time      `json:"observed_at,omitzero"`
	Data       map[string]any `json:"data,omitempty"`
}

// KafkaWrapper is the envelope some producers put around a record.
type KafkaWrapper struct {
	Payload string `json:"payload"`
}

// Metric keys and their accepted aliases, in lookup order.
var (
	MoldTemperatureKeys   = []string{"mold_temp_c", "moldTemperature", "mold_temperature"}
	InjectionPressureKeys = []string{"injection_pressure_bar", "injectionPressure", "injection_pressure"}
	EfficiencyKeys        = []string{"efficiency_pct", "efficiency"}
)

// KnownFields lists the top-level keys that map onto MachineRecord fields.
var KnownFields = map[string]bool{
	"id":          true,
	"machine_id":  true,
	"device_id":   true,
	"name":        true,
	"status":      true,
	"metrics":     true,
	"faults":      true,
	"observed_at": true,
	"timestamp":   true,
	"data":        true,
}

// UnmarshalJSON handles the id aliases and collects unknown fields into Data,
// where flat-shaped metrics end up.
func (r *MachineRecord) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*r = MachineRecord{Data: make(map[string]any)}
	r.ID = strings.TrimSpace(firstString(raw, "id", "machine_id", "device_id"))
	r.Name = firstString(raw, "name")
	r.Status = firstString(raw, "status")

	if m, ok := raw["metrics"].(map[string]any); ok {
		r.Metrics = m
	}
	if faults, ok := raw["faults"]; ok && faults != nil {
		encoded, err := json.Marshal(faults)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(encoded, &r.Faults); err != nil {
			return err
		}
	}
	for _, key := range []string{"observed_at", "timestamp"} {
		if ts, ok := raw[key].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				r.ObservedAt = t
				break
			}
		}
	}
	if d, ok := raw["data"].(map[string]any); ok {
		for k, v := range d {
			r.Data[k] = v
		}
	}
	for k, v := range raw {
		if !KnownFields[k] {
			r.Data[k] = v
		}
	}
	return nil
}

// MetricValue looks a metric up under any of its keys, first in Metrics and then in
// the flat Data. present is false when no key is found or the value is null.
func (r MachineRecord) MetricValue(keys []string) (value any, key string, present bool) {
	for _, source := range []map[string]any{r.Metrics, r.Data} {
		for _, k := range keys {
			if v, ok := source[k]; ok && v != nil {
				return v, k, true
			}
		}
	}
	return nil, "", false
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			// numeric fault ids such as 101
			return formatNumber(v)
		}
	}
	return ""
}
