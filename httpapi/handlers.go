package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ticketgraph/engine/engine"
	"github.com/ticketgraph/engine/orchestrator"
)

// createTicketRequest is the wire shape of POST /tickets.
type createTicketRequest struct {
	ProcessID string                 `json:"process_id"`
	OwnerID   int64                  `json:"owner_id"`
	OwnerName string                 `json:"owner_name"`
	IsPublic  bool                   `json:"is_public"`
	Data      map[string]interface{} `json:"data"`
}

type createTicketResponse struct {
	TicketID int64 `json:"ticket_id"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProcessID == "" || req.OwnerID == 0 {
		writeError(w, http.StatusBadRequest, "process_id and owner_id are required")
		return
	}

	id, err := s.orchestrator.Create(r.Context(), orchestrator.CreateTicketRequest{
		ProcessID: req.ProcessID,
		OwnerID:   req.OwnerID,
		OwnerName: req.OwnerName,
		IsPublic:  req.IsPublic,
		Data:      req.Data,
	})
	if err != nil {
		s.logger.ErrorWithContext(r.Context(), "create ticket failed", map[string]interface{}{
			"operation": "httpapi.create_ticket", "process_id": req.ProcessID, "error": err.Error(),
		})
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createTicketResponse{TicketID: id})
}

// updateTicketRequest is the wire shape of PUT /tickets.
type updateTicketRequest struct {
	TicketID int64                  `json:"ticket_id"`
	UserID   int64                  `json:"user_id"`
	Status   bool                   `json:"status"` // approve (true) or reject (false)
	Node     int                    `json:"node"`
	Data     map[string]interface{} `json:"data"`
}

func (s *Server) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	var req updateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TicketID == 0 || req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "ticket_id and user_id are required")
		return
	}

	err := s.orchestrator.Update(r.Context(), orchestrator.UpdateTicketRequest{
		TicketID:  req.TicketID,
		UserID:    req.UserID,
		NodeIndex: req.Node,
		Approved:  req.Status,
		Data:      req.Data,
	})
	if err != nil {
		s.logger.ErrorWithContext(r.Context(), "update ticket failed", map[string]interface{}{
			"operation": "httpapi.update_ticket", "ticket_id": req.TicketID, "error": err.Error(),
		})
		writeEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// currentTicket mirrors one row of a user's non-owned active tickets.
type currentTicket struct {
	Type      string `json:"type"`
	TicketID  int64  `json:"ticket_id"`
	Active    bool   `json:"active"`
	Node      int    `json:"node_number"`
	ProcessID string `json:"process_id"`
	OwnerName string `json:"owner_name"`
}

// ownTicket mirrors one row of a user's owned tickets.
type ownTicket struct {
	ID        int64  `json:"id"`
	ProcessID string `json:"process_id"`
	IsPublic  bool   `json:"is_public"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Status    string `json:"status"`
}

type userTicketsResponse struct {
	CurrentTickets []currentTicket `json:"current_tickets"`
	OwnTickets     []ownTicket     `json:"own_tickets"`
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	userIDParam := r.URL.Query().Get("user_id")
	userID, err := strconv.ParseInt(userIDParam, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "user_id query parameter must be an integer")
		return
	}

	active, err := s.store.ActiveTicketsForUser(r.Context(), userID)
	if err != nil {
		s.logger.ErrorWithContext(r.Context(), "list active tickets failed", map[string]interface{}{
			"operation": "httpapi.list_tickets", "user_id": userID, "error": err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "failed to read active tickets")
		return
	}
	owned, err := s.store.OwnedTickets(r.Context(), userID)
	if err != nil {
		s.logger.ErrorWithContext(r.Context(), "list owned tickets failed", map[string]interface{}{
			"operation": "httpapi.list_tickets", "user_id": userID, "error": err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "failed to read owned tickets")
		return
	}

	resp := userTicketsResponse{
		CurrentTickets: make([]currentTicket, 0, len(active)),
		OwnTickets:     make([]ownTicket, 0, len(owned)),
	}
	for _, a := range active {
		if a.Kind == "own" {
			continue
		}
		resp.CurrentTickets = append(resp.CurrentTickets, currentTicket{
			Type:      a.Kind,
			TicketID:  a.TicketID,
			Active:    a.Active,
			Node:      a.NodeIndex,
			ProcessID: ticketProcessID(owned, a.TicketID),
		})
	}
	for _, t := range owned {
		resp.OwnTickets = append(resp.OwnTickets, ownTicket{
			ID:        t.ID,
			ProcessID: t.ProcessID,
			IsPublic:  t.IsPublic,
			CreatedAt: t.CreatedAt.Format(rfc3339Milli),
			UpdatedAt: t.UpdatedAt.Format(rfc3339Milli),
			Status:    string(t.Status),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// ticketProcessID looks up a ticket's process id among the caller's own
// tickets; the original query resolves this with a join since the active
// row alone doesn't carry it. A ticket the caller does not own is not
// found here and gets an empty process id.
func ticketProcessID(owned []engine.Ticket, ticketID int64) string {
	for _, t := range owned {
		if t.ID == ticketID {
			return t.ProcessID
		}
	}
	return ""
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

// createRoleRequest is the wire shape of POST /roles.
type createRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role == "" {
		writeError(w, http.StatusBadRequest, "role is required")
		return
	}

	if _, err := s.store.CreateRole(r.Context(), req.Role); err != nil {
		s.logger.ErrorWithContext(r.Context(), "create role failed", map[string]interface{}{
			"operation": "httpapi.create_role", "role": req.Role, "error": err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "failed to create role")
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.store.AllRoles(r.Context())
	if err != nil {
		s.logger.ErrorWithContext(r.Context(), "list roles failed", map[string]interface{}{
			"operation": "httpapi.list_roles", "error": err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "failed to read roles")
		return
	}

	names := make([]string, 0, len(roles))
	for _, rd := range roles {
		names = append(names, rd.Role)
	}
	writeJSON(w, http.StatusOK, names)
}
