package telemetry

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"plant-monitor/internal/metrics"
	"plant-monitor/internal/model"
	"plant-monitor/internal/status"
)

// Rejection reasons, used as the metrics label.
const (
	ReasonDecode          = "decode"
	ReasonMissingID       = "missing_id"
	ReasonBadMetric       = "bad_metric"
	ReasonEfficiencyRange = "efficiency_range"
	ReasonFaultCode       = "fault_code"
	ReasonDuplicateID     = "duplicate_id"
)

// Reject is one record that did not make it into the working set.
type Reject struct {
	ID     string
	Reason string
	Err    error
}

func (r Reject) Error() string {
	if r.ID == "" {
		return fmt.Sprintf("%s: %v", r.Reason, r.Err)
	}
	return fmt.Sprintf("machine %s: %s: %v", r.ID, r.Reason, r.Err)
}

func (r Reject) Unwrap() error { return r.Err }

// Normalizer turns raw records into classified MachineHealth values.
type Normalizer struct {
	classifier status.Classifier
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics
}

func NewNormalizer(c status.Classifier, logger *zap.SugaredLogger, m *metrics.Metrics) *Normalizer {
	return &Normalizer{classifier: c, logger: logger, metrics: m}
}

// Normalize validates a batch. Every invalid record is rejected on its own and the
// rest of the batch is still returned. A repeated id rejects every later occurrence.
func (n *Normalizer) Normalize(records []model.MachineRecord) ([]status.MachineHealth, []Reject) {
	out := make([]status.MachineHealth, 0, len(records))
	var rejects []Reject
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		h, err := n.NormalizeOne(rec)
		if err != nil {
			var rej Reject
			errors.As(err, &rej)
			rejects = append(rejects, rej)
			continue
		}
		if seen[h.ID()] {
			rejects = append(rejects, n.reject(rec.ID, ReasonDuplicateID,
				fmt.Errorf("%w: id repeated in batch", model.ErrMalformed)))
			continue
		}
		seen[h.ID()] = true
		out = append(out, h)
	}
	return out, rejects
}

// NormalizeOne validates a single record. A non-nil error is always a Reject
// wrapping model.ErrMalformed, and has already been logged and counted.
func (n *Normalizer) NormalizeOne(rec model.MachineRecord) (status.MachineHealth, error) {
	if rec.ID == "" {
		return status.MachineHealth{}, n.reject("", ReasonMissingID,
			fmt.Errorf("%w: record has no id", model.ErrMalformed))
	}

	var m status.Metrics
	for _, field := range []struct {
		keys []string
		dst  **float64
	}{
		{model.MoldTemperatureKeys, &m.MoldTemperature},
		{model.InjectionPressureKeys, &m.InjectionPressure},
		{model.EfficiencyKeys, &m.Efficiency},
	} {
		raw, key, ok := rec.MetricValue(field.keys)
		if !ok {
			continue
		}
		v, err := model.ParseNumber(raw)
		if err != nil {
			return status.MachineHealth{}, n.reject(rec.ID, ReasonBadMetric, fmt.Errorf("%s: %w", key, err))
		}
		*field.dst = status.Float(v)
	}
	if e := m.Efficiency; e != nil && (*e < 0 || *e > 100) {
		return status.MachineHealth{}, n.reject(rec.ID, ReasonEfficiencyRange,
			fmt.Errorf("%w: efficiency %.2f outside 0-100", model.ErrMalformed, *e))
	}

	faults := make([]status.Fault, 0, len(rec.Faults))
	codes := make(map[string]bool, len(rec.Faults))
	for i, fr := range rec.Faults {
		code := strings.TrimSpace(fr.Code)
		if code == "" {
			return status.MachineHealth{}, n.reject(rec.ID, ReasonFaultCode,
				fmt.Errorf("%w: fault %d has no code", model.ErrMalformed, i))
		}
		if codes[code] {
			continue
		}
		codes[code] = true
		faults = append(faults, status.Fault{Code: code, Label: fr.Label})
	}

	h := status.NewMachineHealth(n.classifier, rec.ID, rec.Name, m, faults, rec.ObservedAt)
	n.checkReported(rec, h)
	return h, nil
}

// RejectDecode records a record that could not be decoded at all.
func (n *Normalizer) RejectDecode(err error) Reject {
	return n.reject("", ReasonDecode, err)
}

func (n *Normalizer) reject(id, reason string, err error) Reject {
	r := Reject{ID: id, Reason: reason, Err: err}
	if n.logger != nil {
		n.logger.Warnw("rejected telemetry record", "machine_id", id, "reason", reason, "error", err)
	}
	n.metrics.RecordRejected(reason)
	return r
}

// checkReported compares a producer-supplied status with the computed one.
// The reported value never overrides classification.
func (n *Normalizer) checkReported(rec model.MachineRecord, h status.MachineHealth) {
	if rec.Status == "" || n.logger == nil {
		return
	}
	reported, err := status.ParseSeverity(rec.Status)
	if err != nil || reported != h.Severity() {
		n.logger.Debugw("reported status differs from classification",
			"machine_id", h.ID(), "reported", rec.Status, "computed", h.Severity())
	}
}
