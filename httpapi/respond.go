package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/ticketgraph/engine/engine"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeEngineError maps the engine's sentinel error taxonomy onto HTTP
// status codes: a ticket that is no longer open is 403, a not-found error
// (unknown ticket or user) is 404, an event that is not valid for its
// node is 400, anything else (including a process id the catalog cannot
// resolve) is a 500 — the original
// handlers collapse nearly every failure to INTERNAL_SERVER_ERROR, and
// this mapping only carves out the cases the engine itself distinguishes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsForbidden(err):
		writeError(w, http.StatusForbidden, "ticket is closed")
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "ticket not found")
	case engine.IsInvalidTicket(err), engine.IsInvalidEvent(err):
		writeError(w, http.StatusBadRequest, "event not valid for this ticket")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
