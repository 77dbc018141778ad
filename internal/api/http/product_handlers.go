package httpapi

import (
	"net/http"
	"time"
)

type productCreateRequest struct {
	Title string `json:"title"`
}

type productReserveRequest struct {
	TTL string `json:"ttl,omitempty"`
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "X-Actor header required")
		return
	}
	var req productCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	p, err := s.productSvc.CreateProduct(r.Context(), actor, req.Title)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "X-Actor header required")
		return
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	products, err := s.productSvc.ListByOwner(r.Context(), actor, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"products": products})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "productId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid productId")
		return
	}
	p, err := s.productSvc.GetProduct(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) getAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "productId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid productId")
		return
	}
	av, err := s.productSvc.GetAvailability(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, av)
}

func (s *Server) reserveProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "productId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid productId")
		return
	}
	actor, err := actorFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "X-Actor header required")
		return
	}
	ttl := s.reservationTTL
	var req productReserveRequest
	if err := decodeBody(r, &req); err == nil && req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid ttl")
			return
		}
		ttl = d
	}
	until := time.Now().UTC().Add(ttl)
	if err := s.productSvc.Reserve(r.Context(), id, until, actor, actor.String()); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"reserved_until": until})
}

func (s *Server) releaseProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "productId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid productId")
		return
	}
	actor, err := actorFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "X-Actor header required")
		return
	}
	if err := s.productSvc.Release(r.Context(), id, actor.String()); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "released"})
}
