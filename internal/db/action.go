package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"plant-monitor/internal/model"
	"plant-monitor/internal/status"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// StatusRow is one journal entry.
type StatusRow struct {
	MachineID string
	Name      string
	Severity  *status.Severity // nil when the machine was removed
	Previous  *status.Severity
	Plant     status.Severity
	Metrics   map[string]any
	Faults    []status.Fault
	Breaches  []status.Breach
	Removed   bool
}

const createStatusTable = `
	CREATE SCHEMA IF NOT EXISTS monitoring;
	CREATE TABLE IF NOT EXISTS monitoring.machine_status (
		id          BIGSERIAL PRIMARY KEY,
		machine_id  TEXT NOT NULL,
		name        TEXT,
		severity    TEXT,
		previous    TEXT,
		plant       TEXT NOT NULL,
		removed     BOOLEAN NOT NULL DEFAULT FALSE,
		attributes  JSONB NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS machine_status_machine_created_idx
		ON monitoring.machine_status (machine_id, created_at DESC);
`

// EnsureSchema creates the journal table when it does not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, createStatusTable); err != nil {
		return fmt.Errorf("ensure monitoring.machine_status: %w", err)
	}
	return nil
}

// InsertMachineStatus writes one journal row.
func InsertMachineStatus(ctx context.Context, db Execer, row StatusRow, logger *zap.SugaredLogger) error {
	attributes, err := model.ValidateJSON(map[string]any{
		"metrics":  row.Metrics,
		"faults":   faultsToAny(row.Faults),
		"breaches": breachesToAny(row.Breaches),
	})
	if err != nil {
		logger.Errorw("failed to marshal status attributes", "error", err, "machine_id", row.MachineID)
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO monitoring.machine_status
			(machine_id, name, severity, previous, plant, removed, attributes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
	`, row.MachineID, row.Name, severityText(row.Severity), severityText(row.Previous),
		row.Plant.String(), row.Removed, string(attributes))

	if err != nil {
		logger.Errorw("failed to insert machine_status", "error", err, "machine_id", row.MachineID)
	}
	return err
}

func severityText(s *status.Severity) *string {
	if s == nil {
		return nil
	}
	text := s.String()
	return &text
}

func faultsToAny(faults []status.Fault) []any {
	out := make([]any, 0, len(faults))
	for _, f := range faults {
		out = append(out, map[string]any{"code": f.Code, "label": f.Label})
	}
	return out
}

func breachesToAny(breaches []status.Breach) []any {
	out := make([]any, 0, len(breaches))
	for _, b := range breaches {
		out = append(out, map[string]any{
			"metric": b.Metric,
			"band":   string(b.Band),
			"value":  b.Value,
			"limit":  b.Limit,
		})
	}
	return out
}

// metricsToAny keeps only reported metrics.
func metricsToAny(m status.Metrics) map[string]any {
	out := map[string]any{}
	if m.MoldTemperature != nil {
		out[status.MetricMoldTemperature] = *m.MoldTemperature
	}
	if m.InjectionPressure != nil {
		out[status.MetricInjectionPressure] = *m.InjectionPressure
	}
	if m.Efficiency != nil {
		out[status.MetricEfficiency] = *m.Efficiency
	}
	return out
}
