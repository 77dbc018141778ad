package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/barterhub/barterhub/internal/domain/audit"
)

func (s *Server) queryAudit(w http.ResponseWriter, r *http.Request) {
	var filter audit.QueryFilter
	if v := r.URL.Query().Get("entityType"); v != "" {
		et := audit.EntityType(v)
		filter.EntityType = &et
	}
	if v := r.URL.Query().Get("entityId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid entityId")
			return
		}
		filter.EntityID = &id
	}
	if v := r.URL.Query().Get("action"); v != "" {
		a := audit.Action(v)
		filter.Action = &a
	}
	if v := r.URL.Query().Get("actor"); v != "" {
		filter.Actor = &v
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid since")
			return
		}
		filter.StartTime = &t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid until")
			return
		}
		filter.EndTime = &t
	}

	var cursor *audit.Cursor
	if v := r.URL.Query().Get("cursor"); v != "" {
		c, err := decodeCursor(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid cursor")
			return
		}
		cursor = c
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}

	records, next, err := s.auditSvc.Query(r.Context(), filter, cursor, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	resp := map[string]interface{}{"records": records}
	if next != nil {
		resp["next_cursor"] = encodeCursor(next)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) getTradeAudit(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "tradeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid tradeId")
		return
	}
	records, err := s.auditSvc.History(r.Context(), audit.EntityTypeTrade, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}
