package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antoniostano/codeforge/internal/chathistory"
	"github.com/antoniostano/codeforge/internal/generation"
)

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	owner, ok := s.coord.OwnerOf(c.AppID)
	if !ok {
		respondError(w, http.StatusNotFound, "nothing_to_cancel", "nothing to cancel")
		return
	}
	if owner != c.UserID {
		respondError(w, http.StatusForbidden, "not_owner", "not your task")
		return
	}

	outcome := s.coord.CancelGeneration(r.Context(), c.AppID, c.UserID)
	s.log.WithField("app_id", c.AppID).
		WithField("user_id", c.UserID).
		WithField("outcome", outcome.String()).
		WithField("reason", strings.TrimSpace(req.Reason)).
		Info("cancel requested")

	switch outcome {
	case generation.CancelCancelled:
		respondJSON(w, http.StatusOK, map[string]any{"cancelled": true, "app_id": c.AppID})
	case generation.CancelNotOwner:
		respondError(w, http.StatusForbidden, "not_owner", "not your task")
	default:
		// Finished between the owner check and the cancel.
		respondError(w, http.StatusNotFound, "nothing_to_cancel", "nothing to cancel")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	resp := map[string]any{
		"app_id": c.AppID,
		"active": false,
	}
	if owner, ok := s.coord.OwnerOf(c.AppID); ok {
		resp["active"] = true
		resp["owner_user_id"] = owner
	}
	respondJSON(w, http.StatusOK, resp)
}

type historyPage struct {
	Items      []chathistory.Message `json:"items"`
	NextBefore string                `json:"next_before,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	q := r.URL.Query()

	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = n
	}
	size, err := chathistory.PageSize(limit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}

	var before time.Time
	if raw := strings.TrimSpace(q.Get("before")); raw != "" {
		before, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_cursor", "before must be an RFC3339 timestamp")
			return
		}
	}

	items, err := s.history.ListByApp(r.Context(), c.AppID, size, before)
	if err != nil {
		s.log.WithError(err).WithField("app_id", c.AppID).Error("list history failed")
		respondError(w, http.StatusInternalServerError, "history_unavailable", "could not load history")
		return
	}
	page := historyPage{Items: items}
	if page.Items == nil {
		page.Items = []chathistory.Message{}
	}
	if len(items) == size {
		page.NextBefore = items[len(items)-1].CreatedAt.Format(time.RFC3339Nano)
	}
	respondJSON(w, http.StatusOK, page)
}
