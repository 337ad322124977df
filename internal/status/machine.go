package status

import "time"

// Fault is a condition reported by telemetry. Its presence is the whole signal;
// it carries no severity of its own.
type Fault struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Metrics is a point-in-time reading. A nil field was not reported and is not evaluated.
type Metrics struct {
	MoldTemperature   *float64 `json:"mold_temp_c,omitempty"`
	InjectionPressure *float64 `json:"injection_pressure_bar,omitempty"`
	Efficiency        *float64 `json:"efficiency_pct,omitempty"`
}

// Float returns a pointer to v, for building Metrics literals.
func Float(v float64) *float64 {
	return &v
}

// NewMetrics builds a Metrics value with all three fields reported.
func NewMetrics(moldTemperature, injectionPressure, efficiency float64) Metrics {
	return Metrics{
		MoldTemperature:   Float(moldTemperature),
		InjectionPressure: Float(injectionPressure),
		Efficiency:        Float(efficiency),
	}
}

// clone detaches m from any pointers the caller still holds.
func (m Metrics) clone() Metrics {
	out := Metrics{}
	if m.MoldTemperature != nil {
		out.MoldTemperature = Float(*m.MoldTemperature)
	}
	if m.InjectionPressure != nil {
		out.InjectionPressure = Float(*m.InjectionPressure)
	}
	if m.Efficiency != nil {
		out.Efficiency = Float(*m.Efficiency)
	}
	return out
}

// MachineHealth is one machine's coherent snapshot: identity, metrics, faults and the
// severity classified from exactly those metrics and faults. Values are immutable; a
// refresh builds a new MachineHealth instead of editing fields.
type MachineHealth struct {
	id         string
	name       string
	metrics    Metrics
	faults     []Fault
	assessment Assessment
	observedAt time.Time
}

// NewMachineHealth classifies metrics and faults with c and freezes the result.
// An empty name falls back to the id.
func NewMachineHealth(c Classifier, id, name string, metrics Metrics, faults []Fault, observedAt time.Time) MachineHealth {
	if name == "" {
		name = id
	}
	m := metrics.clone()
	f := append([]Fault(nil), faults...)
	return MachineHealth{
		id:         id,
		name:       name,
		metrics:    m,
		faults:     f,
		assessment: c.Evaluate(m, f),
		observedAt: observedAt,
	}
}

func (h MachineHealth) ID() string   { return h.id }
func (h MachineHealth) Name() string { return h.name }

// Metrics returns a copy of the snapshot's metrics.
func (h MachineHealth) Metrics() Metrics { return h.metrics.clone() }

// Faults returns a copy of the active faults.
func (h MachineHealth) Faults() []Fault { return append([]Fault(nil), h.faults...) }

func (h MachineHealth) Severity() Severity { return h.assessment.Severity }

// Breaches lists the thresholds that contributed to the severity.
func (h MachineHealth) Breaches() []Breach { return append([]Breach(nil), h.assessment.Breaches...) }

func (h MachineHealth) ObservedAt() time.Time { return h.observedAt }

// Known reports whether h holds a snapshot; the zero MachineHealth does not.
func (h MachineHealth) Known() bool { return h.id != "" }
