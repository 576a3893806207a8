package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"retroboard/internal/retro"
	"retroboard/internal/roster"
	"retroboard/internal/store"
	"retroboard/internal/transport"
	"retroboard/internal/util"
)

// TransportFactory builds one sync transport per WebSocket client.
type TransportFactory func() (transport.Transport, error)

type HTTPServer struct {
	service      *Service
	corsOrigin   string
	newTransport TransportFactory
}

func NewHTTPServer(service *Service, corsOrigin string, newTransport TransportFactory) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, newTransport: newTransport}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"store": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 4 || parts[0] != "api" || parts[1] != "teams" || parts[3] != "sessions" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	teamID := parts[2]

	actor, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user identity", nil)
		return
	}

	// POST /api/teams/{teamId}/sessions
	if len(parts) == 4 && r.Method == http.MethodPost {
		var input CreateSessionInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.CreateSession(r.Context(), teamID, actor, input)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, maskForViewer(doc, actor.ID))
		return
	}

	if len(parts) < 5 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	sessionID := parts[4]
	rest := parts[5:]
	s.handleSession(w, r, actor, teamID, sessionID, rest)
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, actor roster.Identity, teamID, sessionID string, rest []string) {
	ctx := r.Context()

	// GET /api/teams/{t}/sessions/{id}
	if len(rest) == 0 && r.Method == http.MethodGet {
		doc, err := s.service.Document(ctx, teamID, sessionID, actor.ID)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}
	if len(rest) == 0 {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	respond := func(doc retro.Document, err error) {
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, maskForViewer(doc, actor.ID))
	}

	switch rest[0] {
	case "ws":
		s.handleWebSocket(w, r, actor, teamID, sessionID)
		return

	case "phase":
		if r.Method != http.MethodPost {
			break
		}
		var body struct {
			Phase   string `json:"phase"`
			Advance bool   `json:"advance"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Advance {
			respond(s.service.AdvancePhase(ctx, teamID, sessionID, actor))
			return
		}
		respond(s.service.SetPhase(ctx, teamID, sessionID, actor, retro.Phase(body.Phase)))
		return

	case "icebreaker":
		if r.Method != http.MethodPost {
			break
		}
		var body struct {
			Question string `json:"question"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		respond(s.service.SetIcebreaker(ctx, teamID, sessionID, actor, body.Question))
		return

	case "happiness", "roti":
		if r.Method != http.MethodPost {
			break
		}
		var body struct {
			Value int `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if rest[0] == "happiness" {
			respond(s.service.CastHappiness(ctx, teamID, sessionID, actor, body.Value))
		} else {
			respond(s.service.CastRoti(ctx, teamID, sessionID, actor, body.Value))
		}
		return

	case "tickets":
		s.handleTickets(w, r, actor, teamID, sessionID, rest[1:], respond)
		return

	case "groups":
		s.handleGroups(w, r, actor, teamID, sessionID, rest[1:], respond)
		return

	case "columns":
		if len(rest) == 2 && r.Method == http.MethodPut {
			var body struct {
				Title string `json:"title"`
				Icon  string `json:"icon"`
				Color string `json:"color"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			respond(s.service.UpdateColumn(ctx, teamID, sessionID, actor, rest[1], body.Title, body.Icon, body.Color))
			return
		}

	case "actions":
		s.handleActions(w, r, actor, teamID, sessionID, rest[1:], respond)
		return

	case "discussion":
		if r.Method == http.MethodGet {
			doc, err := s.service.Document(ctx, teamID, sessionID, actor.ID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"focusId": doc.DiscussionFocusID,
				"items":   doc.DiscussionOrder(),
			})
			return
		}

	case "focus":
		if r.Method != http.MethodPost {
			break
		}
		var body struct {
			ItemID string `json:"itemId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		respond(s.service.SetDiscussionFocus(ctx, teamID, sessionID, actor, body.ItemID))
		return

	case "timer":
		if len(rest) == 2 && r.Method == http.MethodPost {
			switch rest[1] {
			case "start":
				respond(s.service.StartTimer(ctx, teamID, sessionID, actor))
				return
			case "stop":
				respond(s.service.StopTimer(ctx, teamID, sessionID, actor))
				return
			case "ack":
				respond(s.service.AcknowledgeTimer(ctx, teamID, sessionID, actor))
				return
			}
		}

	case "settings":
		if r.Method != http.MethodPut {
			break
		}
		var input SettingsInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		respond(s.service.UpdateSettings(ctx, teamID, sessionID, actor, input))
		return

	case "finish":
		if r.Method != http.MethodPost {
			break
		}
		var body struct {
			Finished bool `json:"finished"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		respond(s.service.SetFinished(ctx, teamID, sessionID, actor, body.Finished))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTickets(w http.ResponseWriter, r *http.Request, actor roster.Identity, teamID, sessionID string, rest []string, respond func(retro.Document, error)) {
	ctx := r.Context()

	// POST .../tickets
	if len(rest) == 0 && r.Method == http.MethodPost {
		var body struct {
			ColumnID string `json:"columnId"`
			Text     string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		respond(s.service.AddTicket(ctx, teamID, sessionID, actor, body.ColumnID, body.Text))
		return
	}

	if len(rest) >= 1 {
		ticketID := rest[0]
		switch {
		// PUT .../tickets/{tid}
		case len(rest) == 1 && r.Method == http.MethodPut:
			var body struct {
				Text string `json:"text"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			respond(s.service.UpdateTicket(ctx, teamID, sessionID, actor, ticketID, body.Text))
			return

		// DELETE .../tickets/{tid}
		case len(rest) == 1 && r.Method == http.MethodDelete:
			respond(s.service.DeleteTicket(ctx, teamID, sessionID, actor, ticketID))
			return

		// POST .../tickets/{tid}/reactions
		case len(rest) == 2 && rest[1] == "reactions" && r.Method == http.MethodPost:
			var body struct {
				Emoji string `json:"emoji"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			respond(s.service.ToggleReaction(ctx, teamID, sessionID, actor, ticketID, body.Emoji))
			return

		// POST .../tickets/{tid}/votes
		case len(rest) == 2 && rest[1] == "votes" && r.Method == http.MethodPost:
			var body struct {
				Delta int `json:"delta"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			respond(s.service.VoteTicket(ctx, teamID, sessionID, actor, ticketID, body.Delta))
			return

		// DELETE .../tickets/{tid}/group
		case len(rest) == 2 && rest[1] == "group" && r.Method == http.MethodDelete:
			respond(s.service.RemoveTicketFromGroup(ctx, teamID, sessionID, actor, ticketID))
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleGroups(w http.ResponseWriter, r *http.Request, actor roster.Identity, teamID, sessionID string, rest []string, respond func(retro.Document, error)) {
	ctx := r.Context()

	// POST .../groups merges two tickets.
	if len(rest) == 0 && r.Method == http.MethodPost {
		var body struct {
			TargetTicketID  string `json:"targetTicketId"`
			DraggedTicketID string `json:"draggedTicketId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		respond(s.service.MergeTickets(ctx, teamID, sessionID, actor, body.TargetTicketID, body.DraggedTicketID))
		return
	}

	if len(rest) >= 1 {
		groupID := rest[0]
		switch {
		// PUT .../groups/{gid}
		case len(rest) == 1 && r.Method == http.MethodPut:
			var body struct {
				Title string `json:"title"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			respond(s.service.SetGroupTitle(ctx, teamID, sessionID, actor, groupID, body.Title))
			return

		// POST .../groups/{gid}/tickets
		case len(rest) == 2 && rest[1] == "tickets" && r.Method == http.MethodPost:
			var body struct {
				TicketID string `json:"ticketId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			respond(s.service.AddTicketToGroup(ctx, teamID, sessionID, actor, groupID, body.TicketID))
			return

		// POST .../groups/{gid}/votes
		case len(rest) == 2 && rest[1] == "votes" && r.Method == http.MethodPost:
			var body struct {
				Delta int `json:"delta"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			respond(s.service.VoteGroup(ctx, teamID, sessionID, actor, groupID, body.Delta))
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleActions(w http.ResponseWriter, r *http.Request, actor roster.Identity, teamID, sessionID string, rest []string, respond func(retro.Document, error)) {
	ctx := r.Context()

	// POST .../actions
	if len(rest) == 0 && r.Method == http.MethodPost {
		var body struct {
			Text       string `json:"text"`
			AssigneeID string `json:"assigneeId"`
			Type       string `json:"type"`
			LinkedID   string `json:"linkedId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		respond(s.service.AddAction(ctx, teamID, sessionID, actor, body.Text, body.AssigneeID, body.Type, body.LinkedID))
		return
	}

	if len(rest) >= 1 {
		actionID := rest[0]
		switch {
		// PUT .../actions/{aid}
		case len(rest) == 1 && r.Method == http.MethodPut:
			var body struct {
				Done       bool   `json:"done"`
				AssigneeID string `json:"assigneeId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			respond(s.service.UpdateAction(ctx, teamID, sessionID, actor, actionID, body.Done, body.AssigneeID))
			return

		// DELETE .../actions/{aid}
		case len(rest) == 1 && r.Method == http.MethodDelete:
			respond(s.service.DeleteAction(ctx, teamID, sessionID, actor, actionID))
			return

		// POST .../actions/{aid}/vote
		case len(rest) == 2 && rest[1] == "vote" && r.Method == http.MethodPost:
			var body struct {
				Direction string `json:"direction"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			respond(s.service.VoteProposal(ctx, teamID, sessionID, actor, actionID, body.Direction))
			return

		// POST .../actions/{aid}/accept
		case len(rest) == 2 && rest[1] == "accept" && r.Method == http.MethodPost:
			respond(s.service.AcceptProposal(ctx, teamID, sessionID, actor, actionID))
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// identityFrom resolves the identity collaborator's headers. Authentication
// itself is out of scope here; an upstream gateway fills these in.
func identityFrom(r *http.Request) (roster.Identity, bool) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		return roster.Identity{}, false
	}
	role := strings.TrimSpace(r.Header.Get("X-User-Role"))
	if role != roster.RoleFacilitator {
		role = roster.RoleParticipant
	}
	return roster.Identity{
		ID:    id,
		Name:  strings.TrimSpace(r.Header.Get("X-User-Name")),
		Color: strings.TrimSpace(r.Header.Get("X-User-Color")),
		Role:  role,
	}, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-User-ID, X-User-Name, X-User-Role, X-User-Color")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMapped(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, retro.ErrTicketNotFound),
		errors.Is(err, retro.ErrGroupNotFound),
		errors.Is(err, retro.ErrColumnNotFound),
		errors.Is(err, retro.ErrActionNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, ErrForbidden), errors.Is(err, retro.ErrNotAuthor):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, retro.ErrEmptyText),
		errors.Is(err, retro.ErrInvalidRating),
		errors.Is(err, retro.ErrInvalidDirection),
		errors.Is(err, retro.ErrInvalidPhase):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, retro.ErrVoteBudget),
		errors.Is(err, retro.ErrDuplicateVote),
		errors.Is(err, retro.ErrWrongPhase),
		errors.Is(err, retro.ErrSessionClosed),
		errors.Is(err, retro.ErrNotAcknowledged),
		errors.Is(err, retro.ErrNotProposal):
		return http.StatusConflict, "CONFLICT", err.Error(), nil
	case errors.Is(err, transport.ErrConnectionFailed):
		return http.StatusServiceUnavailable, "SYNC_UNAVAILABLE", "Sync transport unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
