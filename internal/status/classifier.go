package status

import (
	"errors"
	"fmt"
)

// Metric names used in breaches, logs and metrics labels.
const (
	MetricMoldTemperature   = "mold_temp_c"
	MetricInjectionPressure = "injection_pressure_bar"
	MetricEfficiency        = "efficiency_pct"
)

// Band says how far past its limit a metric is.
type Band string

const (
	BandMild Band = "mild"
	BandHard Band = "hard"
)

// Thresholds holds the limits for each metric. Temperature and pressure are upper limits:
// above Target is a mild breach, above Ceiling a hard one. Efficiency is a lower limit:
// below Target is mild, below Floor is hard.
type Thresholds struct {
	TempTarget       float64
	TempCeiling      float64
	PressureTarget   float64
	PressureCeiling  float64
	EfficiencyTarget float64
	EfficiencyFloor  float64
}

// DefaultThresholds matches the limits the plant dashboard was designed around.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TempTarget:       25,
		TempCeiling:      27,
		PressureTarget:   130,
		PressureCeiling:  150,
		EfficiencyTarget: 90,
		EfficiencyFloor:  75,
	}
}

// Validate rejects limits whose bands overlap or invert.
func (t Thresholds) Validate() error {
	var errs []error
	if t.TempTarget > t.TempCeiling {
		errs = append(errs, fmt.Errorf("temperature target %.2f above ceiling %.2f", t.TempTarget, t.TempCeiling))
	}
	if t.PressureTarget > t.PressureCeiling {
		errs = append(errs, fmt.Errorf("pressure target %.2f above ceiling %.2f", t.PressureTarget, t.PressureCeiling))
	}
	if t.EfficiencyFloor > t.EfficiencyTarget {
		errs = append(errs, fmt.Errorf("efficiency floor %.2f above target %.2f", t.EfficiencyFloor, t.EfficiencyTarget))
	}
	if t.EfficiencyTarget < 0 || t.EfficiencyTarget > 100 || t.EfficiencyFloor < 0 || t.EfficiencyFloor > 100 {
		errs = append(errs, errors.New("efficiency limits must be within 0-100"))
	}
	return errors.Join(errs...)
}

// Breach is one metric outside its limit.
type Breach struct {
	Metric string  `json:"metric"`
	Band   Band    `json:"band"`
	Value  float64 `json:"value"`
	Limit  float64 `json:"limit"`
}

// Assessment is the classifier's full answer: the severity and what drove it.
type Assessment struct {
	Severity Severity `json:"severity"`
	Breaches []Breach `json:"breaches,omitempty"`
	Faults   int      `json:"faults"`
}

// Classifier maps a metrics snapshot and fault set to a Severity.
// It holds no state beyond its limits and is safe to share.
type Classifier struct {
	Thresholds Thresholds
}

func NewClassifier(t Thresholds) Classifier {
	return Classifier{Thresholds: t}
}

// Classify returns the severity for one snapshot.
func (c Classifier) Classify(metrics Metrics, faults []Fault) Severity {
	return c.Evaluate(metrics, faults).Severity
}

// Evaluate applies every rule independently and keeps the most severe outcome:
//   - any fault: at least Warning
//   - any hard breach, or two or more breaches: Critical
//   - exactly one mild breach: Warning
//
// Unreported metrics are skipped.
func (c Classifier) Evaluate(metrics Metrics, faults []Fault) Assessment {
	t := c.Thresholds
	var breaches []Breach

	if v := metrics.MoldTemperature; v != nil {
		if b, ok := above(MetricMoldTemperature, *v, t.TempTarget, t.TempCeiling); ok {
			breaches = append(breaches, b)
		}
	}
	if v := metrics.InjectionPressure; v != nil {
		if b, ok := above(MetricInjectionPressure, *v, t.PressureTarget, t.PressureCeiling); ok {
			breaches = append(breaches, b)
		}
	}
	if v := metrics.Efficiency; v != nil {
		if b, ok := below(MetricEfficiency, *v, t.EfficiencyTarget, t.EfficiencyFloor); ok {
			breaches = append(breaches, b)
		}
	}

	severity := Operational
	if len(faults) > 0 {
		severity = Max(severity, Warning)
	}
	switch {
	case len(breaches) >= 2:
		severity = Max(severity, Critical)
	case len(breaches) == 1:
		if breaches[0].Band == BandHard {
			severity = Max(severity, Critical)
		} else {
			severity = Max(severity, Warning)
		}
	}

	return Assessment{
		Severity: severity,
		Breaches: breaches,
		Faults:   len(faults),
	}
}

func above(metric string, value, target, ceiling float64) (Breach, bool) {
	switch {
	case value > ceiling:
		return Breach{Metric: metric, Band: BandHard, Value: value, Limit: ceiling}, true
	case value > target:
		return Breach{Metric: metric, Band: BandMild, Value: value, Limit: target}, true
	}
	return Breach{}, false
}

func below(metric string, value, target, floor float64) (Breach, bool) {
	switch {
	case value < floor:
		return Breach{Metric: metric, Band: BandHard, Value: value, Limit: floor}, true
	case value < target:
		return Breach{Metric: metric, Band: BandMild, Value: value, Limit: target}, true
	}
	return Breach{}, false
}
