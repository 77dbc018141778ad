package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	appTrade "github.com/barterhub/barterhub/internal/application/trade"
	"github.com/barterhub/barterhub/internal/domain/trade"
)

type tradeProposeRequest struct {
	TargetProductID   uuid.UUID   `json:"target_product_id"`
	OfferedProductIDs []uuid.UUID `json:"offered_product_ids,omitempty"`
	CashOfferCents    *int64      `json:"cash_offer_cents,omitempty"`
	TradeOption       string      `json:"trade_option"`
	DeliveryAddress   *string     `json:"delivery_address,omitempty"`
	Message           string      `json:"message,omitempty"`
}

type tradeRespondRequest struct {
	Action            string      `json:"action"`
	OfferedProductIDs []uuid.UUID `json:"offered_product_ids,omitempty"`
	CashOfferCents    *int64      `json:"cash_offer_cents,omitempty"`
	Message           *string     `json:"message,omitempty"`
}

type optionChangeRequest struct {
	TradeOption     string  `json:"trade_option"`
	DeliveryAddress *string `json:"delivery_address,omitempty"`
}

type optionChangeResolveRequest struct {
	Approve bool `json:"approve"`
}

type tradeResponse struct {
	Trade *trade.Trade      `json:"trade"`
	Items []trade.TradeItem `json:"items,omitempty"`
}

func (s *Server) proposeTrade(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "X-Actor header required")
		return
	}
	var req tradeProposeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	option := trade.Option(req.TradeOption)
	if option == "" {
		option = trade.OptionMeetup
	}
	if option != trade.OptionMeetup && option != trade.OptionDelivery {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "trade_option must be meetup or delivery")
		return
	}
	t, err := s.tradeSvc.Propose(r.Context(), appTrade.ProposeInput{
		BuyerID:           actor,
		TargetProductID:   req.TargetProductID,
		OfferedProductIDs: req.OfferedProductIDs,
		CashOfferCents:    req.CashOfferCents,
		Option:            option,
		DeliveryAddress:   req.DeliveryAddress,
		Message:           req.Message,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, tradeResponse{Trade: t})
}

func (s *Server) listTrades(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "X-Actor header required")
		return
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	trades, err := s.tradeSvc.ListForUser(r.Context(), actor, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

func (s *Server) getTrade(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "tradeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid tradeId")
		return
	}
	t, items, err := s.tradeSvc.GetTrade(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tradeResponse{Trade: t, Items: items})
}

func (s *Server) respondTrade(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := s.tradeCall(w, r)
	if !ok {
		return
	}
	var req tradeRespondRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	action := appTrade.ResponseAction(req.Action)
	var counter *appTrade.CounterInput
	switch action {
	case appTrade.ActionAccept, appTrade.ActionDecline:
	case appTrade.ActionCounter:
		counter = &appTrade.CounterInput{
			OfferedProductIDs: req.OfferedProductIDs,
			CashOfferCents:    req.CashOfferCents,
		}
		if req.Message != nil {
			counter.Message = *req.Message
		}
	default:
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "action must be accept, decline or counter")
		return
	}
	t, err := s.tradeSvc.Respond(r.Context(), id, actor, action, counter)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tradeResponse{Trade: t})
}

func (s *Server) completeTrade(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := s.tradeCall(w, r)
	if !ok {
		return
	}
	t, err := s.tradeSvc.Complete(r.Context(), id, actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tradeResponse{Trade: t})
}

func (s *Server) cancelTrade(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := s.tradeCall(w, r)
	if !ok {
		return
	}
	t, err := s.tradeSvc.Cancel(r.Context(), id, actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tradeResponse{Trade: t})
}

func (s *Server) requestOptionChange(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := s.tradeCall(w, r)
	if !ok {
		return
	}
	var req optionChangeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	option := trade.Option(req.TradeOption)
	if option != trade.OptionMeetup && option != trade.OptionDelivery {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "trade_option must be meetup or delivery")
		return
	}
	t, err := s.tradeSvc.RequestOptionChange(r.Context(), id, actor, option, req.DeliveryAddress)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tradeResponse{Trade: t})
}

func (s *Server) resolveOptionChange(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := s.tradeCall(w, r)
	if !ok {
		return
	}
	var req optionChangeResolveRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	t, err := s.tradeSvc.ResolveOptionChange(r.Context(), id, actor, req.Approve)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tradeResponse{Trade: t})
}

func (s *Server) listCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := s.matchingSvc.DetectCycles(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cycles": cycles})
}

// tradeCall parses the shared tradeId and X-Actor parts of trade mutations.
func (s *Server) tradeCall(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	id, err := parseUUIDParam(r, "tradeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid tradeId")
		return uuid.Nil, uuid.Nil, false
	}
	actor, err := actorFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "X-Actor header required")
		return uuid.Nil, uuid.Nil, false
	}
	return id, actor, true
}
