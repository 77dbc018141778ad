package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appAudit "github.com/barterhub/barterhub/internal/application/audit"
	appMatching "github.com/barterhub/barterhub/internal/application/matching"
	appNotification "github.com/barterhub/barterhub/internal/application/notification"
	appProduct "github.com/barterhub/barterhub/internal/application/product"
	appTrade "github.com/barterhub/barterhub/internal/application/trade"
	"github.com/barterhub/barterhub/internal/domain/audit"
	"github.com/barterhub/barterhub/internal/domain/product"
	"github.com/barterhub/barterhub/internal/domain/trade"
	"github.com/barterhub/barterhub/internal/infrastructure/metrics"
	"github.com/barterhub/barterhub/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	tradeSvc        *appTrade.Service
	productSvc      *appProduct.Service
	matchingSvc     *appMatching.Service
	notificationSvc *appNotification.Service
	auditSvc        *appAudit.Service
	sseHub          *sse.Hub
	reservationTTL  time.Duration
}

func NewServer(
	tradeSvc *appTrade.Service,
	productSvc *appProduct.Service,
	matchingSvc *appMatching.Service,
	notificationSvc *appNotification.Service,
	auditSvc *appAudit.Service,
	sseHub *sse.Hub,
	reservationTTL time.Duration,
) *Server {
	return &Server{
		tradeSvc:        tradeSvc,
		productSvc:      productSvc,
		matchingSvc:     matchingSvc,
		notificationSvc: notificationSvc,
		auditSvc:        auditSvc,
		sseHub:          sseHub,
		reservationTTL:  reservationTTL,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/trades", func(r chi.Router) {
			r.Post("/", s.proposeTrade)
			r.Get("/", s.listTrades)
			r.Get("/{tradeId}", s.getTrade)
			r.Post("/{tradeId}/respond", s.respondTrade)
			r.Post("/{tradeId}/complete", s.completeTrade)
			r.Post("/{tradeId}/cancel", s.cancelTrade)
			r.Post("/{tradeId}/option-change", s.requestOptionChange)
			r.Post("/{tradeId}/option-change/resolve", s.resolveOptionChange)
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", s.createProduct)
			r.Get("/", s.listProducts)
			r.Get("/{productId}", s.getProduct)
			r.Get("/{productId}/availability", s.getAvailability)
			r.Post("/{productId}/reserve", s.reserveProduct)
			r.Post("/{productId}/release", s.releaseProduct)
		})

		r.Route("/matching", func(r chi.Router) {
			r.Get("/cycles", s.listCycles)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.listNotifications)
			r.Get("/sse", s.sseEndpoint)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/audit", s.queryAudit)
			r.Get("/audit/{tradeId}", s.getTradeAudit)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
	})

	return r
}

// instrument records request counts and latency per route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
			route := chi.RouteContext(r.Context()).RoutePattern()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(v)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		}))
		defer timer.ObserveDuration()
		next.ServeHTTP(ww, r)
	})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps service sentinels onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trade.ErrNotFound), errors.Is(err, product.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, trade.ErrNotParticipant):
		respondError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, trade.ErrInvalidTarget):
		respondError(w, http.StatusUnprocessableEntity, "INVALID_TARGET", err.Error())
	case errors.Is(err, trade.ErrInvalidTransition),
		errors.Is(err, trade.ErrAlreadyCompleted),
		errors.Is(err, trade.ErrOptionChangePending),
		errors.Is(err, trade.ErrNoOptionChange),
		errors.Is(err, trade.ErrProductNoLongerAvailable),
		errors.Is(err, trade.ErrSettlementConflict),
		errors.Is(err, product.ErrVersionConflict),
		errors.Is(err, product.ErrNotAvailable):
		respondError(w, http.StatusConflict, "CONFLICT", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// actorFromRequest resolves the calling user from the X-Actor header.
func actorFromRequest(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.Header.Get("X-Actor"))
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func encodeCursor(c *audit.Cursor) string {
	if c == nil {
		return ""
	}
	raw, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(raw)
}

func decodeCursor(s string) (*audit.Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var c audit.Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
