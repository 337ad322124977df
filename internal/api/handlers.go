package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"plant-monitor/internal/assistant"
	"plant-monitor/internal/dashboard"
	"plant-monitor/internal/fleet"
	"plant-monitor/internal/status"
)

const maxRequestBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

// machineSummary is the machines list entry, field for field what the dashboard
// frontend fetched before it had a richer view.
type machineSummary struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Status  status.Severity `json:"status"`
	Metrics status.Metrics  `json:"metrics"`
	Faults  []status.Fault  `json:"faults"`
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listMachines(w http.ResponseWriter, r *http.Request) {
	view := s.fleet.View()
	out := make([]machineSummary, 0, len(view.Machines))
	for _, h := range view.Machines {
		faults := h.Faults()
		if faults == nil {
			faults = []status.Fault{}
		}
		out = append(out, machineSummary{
			ID:      h.ID(),
			Name:    h.Name(),
			Status:  h.Severity(),
			Metrics: h.Metrics(),
			Faults:  faults,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.FromDashboard(s.fleet.View()))
}

func (s *Server) getPlant(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.FromPlant(s.fleet.View()))
}

func (s *Server) getMachine(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h, err := s.fleet.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard.FromDetail(h))
}

func (s *Server) askAI(w http.ResponseWriter, r *http.Request) {
	var req assistant.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.assistant.Ask(req)
	switch {
	case errors.Is(err, fleet.ErrUnknownMachine):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
