package dashboard

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plant-monitor/internal/fleet"
	"plant-monitor/internal/status"
)

func TestFromDashboard_JSON(t *testing.T) {
	c := status.NewClassifier(status.DefaultThresholds())
	at := time.Date(2026, 6, 24, 8, 0, 0, 0, time.UTC)
	a := status.NewMachineHealth(c, "hypet500", "HyPET500", status.NewMetrics(28, 145, 72),
		[]status.Fault{{Code: "101", Label: "High temperature"}}, at)
	b := status.NewMachineHealth(c, "hypet300", "", status.Metrics{Efficiency: status.Float(94)}, nil, time.Time{})

	machines := []status.MachineHealth{b, a}
	v := FromDashboard(fleet.Dashboard{
		Plant:       status.Aggregate(machines),
		Counts:      status.Count(machines),
		Machines:    machines,
		LastRefresh: at,
	})

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"plant": {"status":"critical","color":"`+status.Critical.Color()+`","label":"`+status.Critical.Label()+`",
			"counts":{"operational":1,"warning":0,"critical":1},"total":2,"stale":false,
			"last_refresh":"2026-06-24T08:00:00Z"},
		"machines": [
			{"id":"hypet300","name":"hypet300","status":"operational","color":"`+status.Operational.Color()+`",
			 "icon":"`+status.Operational.Icon()+`","label":"`+status.Operational.Label()+`",
			 "metrics":{"efficiency_pct":94},"faults":[]},
			{"id":"hypet500","name":"HyPET500","status":"critical","color":"`+status.Critical.Color()+`",
			 "icon":"`+status.Critical.Icon()+`","label":"`+status.Critical.Label()+`",
			 "metrics":{"mold_temp_c":28,"injection_pressure_bar":145,"efficiency_pct":72},
			 "faults":[{"code":"101","label":"High temperature"}],"observed_at":"2026-06-24T08:00:00Z"}
		]
	}`, string(out))
}

func TestFromDetail_Breaches(t *testing.T) {
	c := status.NewClassifier(status.DefaultThresholds())
	h := status.NewMachineHealth(c, "b", "", status.NewMetrics(24, 120, 88), nil, time.Time{})

	d := FromDetail(h)
	require.Len(t, d.Breaches, 1)
	assert.Equal(t, status.MetricEfficiency, d.Breaches[0].Metric)
	assert.Equal(t, status.BandMild, d.Breaches[0].Band)
	assert.Equal(t, status.Warning, d.Status)
}
