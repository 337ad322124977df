package api

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// Intent kinds a client may request.
const (
	IntentDetail    = "detail"
	IntentAssistant = "assistant"
)

type intentRequest struct {
	Kind      string `json:"kind"`
	MachineID string `json:"machine_id"`
}

// Intent tells the client where to navigate. Creating one changes nothing on
// the server; the id only lets the client correlate the answer.
type Intent struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	MachineID string `json:"machine_id"`
	Route     string `json:"route"`
}

func (s *Server) createIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var route string
	switch req.Kind {
	case IntentDetail:
		route = "/machines/" + url.PathEscape(req.MachineID)
	case IntentAssistant:
		route = "/assistant?machine_id=" + url.QueryEscape(req.MachineID)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown intent kind %q", req.Kind))
		return
	}

	if _, err := s.fleet.Get(req.MachineID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	writeJSON(w, http.StatusOK, Intent{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		MachineID: req.MachineID,
		Route:     route,
	})
}
