// Package assistant answers operator questions with a deterministic placeholder.
// No model is called; the answer only restates what the working set knows.
package assistant

import (
	"errors"
	"fmt"
	"strings"

	"plant-monitor/internal/fleet"
	"plant-monitor/internal/status"
)

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("question is required")

type Request struct {
	Question  string `json:"question"`
	MachineID string `json:"machine_id,omitempty"`
}

type Response struct {
	Answer    string          `json:"answer"`
	MachineID string          `json:"machine_id,omitempty"`
	Severity  *status.Severity `json:"severity,omitempty"`
}

// Assistant reads the working set and never changes it.
type Assistant struct {
	fleet *fleet.Fleet
}

func New(f *fleet.Fleet) *Assistant {
	return &Assistant{fleet: f}
}

// Ask builds the placeholder answer. An unknown machine id is an error so the
// caller can answer 404.
func (a *Assistant) Ask(req Request) (Response, error) {
	q := strings.TrimSpace(req.Question)
	if q == "" {
		return Response{}, ErrEmptyQuestion
	}

	answer := fmt.Sprintf("This is a placeholder answer to your question: '%s'.", q)
	if req.MachineID == "" {
		return Response{Answer: answer}, nil
	}

	h, err := a.fleet.Get(req.MachineID)
	if err != nil {
		return Response{}, err
	}
	sev := h.Severity()
	return Response{
		Answer:    answer + " " + Context(h),
		MachineID: h.ID(),
		Severity:  &sev,
	}, nil
}

// Context summarizes one machine in a sentence or two.
func Context(h status.MachineHealth) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is %s", h.Name(), h.Severity())

	var reasons []string
	for _, br := range h.Breaches() {
		cmp := "above"
		if br.Metric == status.MetricEfficiency {
			cmp = "below"
		}
		reasons = append(reasons, fmt.Sprintf("%s %.1f is %s the %s limit %.1f", br.Metric, br.Value, cmp, br.Band, br.Limit))
	}
	if faults := h.Faults(); len(faults) > 0 {
		codes := make([]string, 0, len(faults))
		for _, f := range faults {
			codes = append(codes, f.Code)
		}
		reasons = append(reasons, fmt.Sprintf("active faults %s", strings.Join(codes, ", ")))
	}

	if len(reasons) == 0 {
		b.WriteString(" with all reported metrics within limits.")
		return b.String()
	}
	b.WriteString(": ")
	b.WriteString(strings.Join(reasons, "; "))
	b.WriteString(".")
	return b.String()
}
