package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAudit "github.com/barterhub/barterhub/internal/application/audit"
	appNotification "github.com/barterhub/barterhub/internal/application/notification"
	appProduct "github.com/barterhub/barterhub/internal/application/product"
	"github.com/barterhub/barterhub/internal/domain/audit"
	"github.com/barterhub/barterhub/internal/domain/notification"
	"github.com/barterhub/barterhub/internal/domain/product"
	"github.com/barterhub/barterhub/internal/domain/trade"
)

// ResponseAction is what a participant does with an open proposal.
type ResponseAction string

const (
	ActionAccept  ResponseAction = "accept"
	ActionDecline ResponseAction = "decline"
	ActionCounter ResponseAction = "counter"
)

// ProposeInput carries a new trade proposal.
type ProposeInput struct {
	BuyerID           uuid.UUID
	TargetProductID   uuid.UUID
	OfferedProductIDs []uuid.UUID
	CashOfferCents    *int64
	Option            trade.Option
	DeliveryAddress   *string
	Message           string
}

// CounterInput carries the revised offer attached to a counter. A nil
// OfferedProductIDs keeps the current item set; a non-nil slice replaces it.
type CounterInput struct {
	OfferedProductIDs []uuid.UUID
	CashOfferCents    *int64
	Message           string
}

// Service handles the trade lifecycle from proposal to settlement.
type Service struct {
	tradeRepo       trade.Repository
	settler         trade.Settler
	productSvc      *appProduct.Service
	auditSvc        *appAudit.Service
	notificationSvc *appNotification.Service
	reservationTTL  time.Duration
	logger          zerolog.Logger
}

// NewService creates a trade service.
func NewService(
	tradeRepo trade.Repository,
	settler trade.Settler,
	productSvc *appProduct.Service,
	auditSvc *appAudit.Service,
	notificationSvc *appNotification.Service,
	reservationTTL time.Duration,
	logger zerolog.Logger,
) *Service {
	return &Service{
		tradeRepo:       tradeRepo,
		settler:         settler,
		productSvc:      productSvc,
		auditSvc:        auditSvc,
		notificationSvc: notificationSvc,
		reservationTTL:  reservationTTL,
		logger:          logger.With().Str("service", "trade").Logger(),
	}
}

// Propose opens a pending trade against an available target product.
func (s *Service) Propose(ctx context.Context, in ProposeInput) (*trade.Trade, error) {
	target, err := s.productSvc.GetProduct(ctx, in.TargetProductID)
	if err != nil {
		return nil, err
	}
	if !target.IsAvailable() {
		return nil, trade.ErrInvalidTarget
	}
	if target.OwnerID == in.BuyerID {
		return nil, fmt.Errorf("cannot trade for your own product")
	}
	if len(in.OfferedProductIDs) == 0 && in.CashOfferCents == nil {
		return nil, fmt.Errorf("an offer needs items or cash")
	}
	if in.Option == trade.OptionDelivery && in.DeliveryAddress == nil {
		return nil, fmt.Errorf("delivery option requires an address")
	}

	items := make([]trade.TradeItem, 0, len(in.OfferedProductIDs))
	for _, pid := range in.OfferedProductIDs {
		offered, err := s.productSvc.GetProduct(ctx, pid)
		if err != nil {
			return nil, err
		}
		if offered.OwnerID != in.BuyerID {
			return nil, fmt.Errorf("offered product %s is not owned by the proposer", pid)
		}
		if !offered.IsAvailable() {
			return nil, product.ErrNotAvailable
		}
		items = append(items, trade.TradeItem{ProductID: pid, OfferedBy: trade.PartyBuyer})
	}

	t := trade.NewTrade(in.BuyerID, target.OwnerID, in.TargetProductID, in.CashOfferCents, in.Option, in.DeliveryAddress, in.Message)
	if err := s.tradeRepo.Create(ctx, t, items); err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, &audit.Entry{
		EntityType: audit.EntityTypeTrade,
		EntityID:   t.TradeID,
		Action:     audit.ActionPropose,
		Actor:      in.BuyerID.String(),
		ToStatus:   string(trade.StatusPending),
		Detail:     in,
	})
	s.notificationSvc.NotifyParties(ctx, t.TradeID, []uuid.UUID{t.SellerID},
		notification.TypeTradeProposed, "you received a trade offer", t)

	s.logger.Info().
		Str("trade_id", t.TradeID.String()).
		Str("buyer_id", t.BuyerID.String()).
		Str("seller_id", t.SellerID.String()).
		Msg("trade proposed")
	return t, nil
}

// Respond lets the party holding the open proposal accept, decline, or
// counter it. The seller answers a pending proposal; the buyer answers a
// countered one.
func (s *Service) Respond(ctx context.Context, tradeID, actorID uuid.UUID, action ResponseAction, counter *CounterInput) (*trade.Trade, error) {
	t, err := s.tradeRepo.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(actorID) {
		return nil, trade.ErrNotParticipant
	}

	var responder uuid.UUID
	switch t.Status {
	case trade.StatusPending:
		responder = t.SellerID
	case trade.StatusCountered:
		responder = t.BuyerID
	default:
		return nil, trade.ErrInvalidTransition
	}
	if actorID != responder {
		return nil, trade.ErrNotParticipant
	}

	from := t.Status
	switch action {
	case ActionAccept:
		return s.accept(ctx, t, actorID, from)
	case ActionDecline:
		if err := t.Decline(); err != nil {
			return nil, err
		}
		if err := s.tradeRepo.Update(ctx, t); err != nil {
			return nil, err
		}
		s.recordTransition(ctx, t, audit.ActionDecline, actorID, from)
		s.notificationSvc.NotifyParties(ctx, t.TradeID, []uuid.UUID{t.Counterparty(actorID)},
			notification.TypeTradeDeclined, "your trade offer was declined", t)
		return t, nil
	case ActionCounter:
		if counter == nil {
			return nil, fmt.Errorf("counter offer required")
		}
		if err := t.Counter(); err != nil {
			return nil, err
		}
		if counter.OfferedProductIDs != nil {
			items := make([]trade.TradeItem, 0, len(counter.OfferedProductIDs))
			for _, pid := range counter.OfferedProductIDs {
				offered, err := s.productSvc.GetProduct(ctx, pid)
				if err != nil {
					return nil, err
				}
				if offered.OwnerID != t.BuyerID {
					return nil, fmt.Errorf("offered product %s is not owned by the buyer", pid)
				}
				if !offered.IsAvailable() {
					return nil, product.ErrNotAvailable
				}
				items = append(items, trade.TradeItem{TradeID: t.TradeID, ProductID: pid, OfferedBy: trade.PartyBuyer})
			}
			if err := s.tradeRepo.ReplaceItems(ctx, t.TradeID, items); err != nil {
				return nil, err
			}
		}
		t.CashOfferCents = counter.CashOfferCents
		t.Message = counter.Message
		if err := s.tradeRepo.Update(ctx, t); err != nil {
			return nil, err
		}
		s.recordTransition(ctx, t, audit.ActionCounter, actorID, from)
		s.notificationSvc.NotifyParties(ctx, t.TradeID, []uuid.UUID{t.Counterparty(actorID)},
			notification.TypeTradeCountered, "you received a counter offer", t)
		return t, nil
	default:
		return nil, fmt.Errorf("unknown response action %q", action)
	}
}

// accept re-validates the target product, reserves every involved product,
// and moves the trade straight to active.
func (s *Service) accept(ctx context.Context, t *trade.Trade, actorID uuid.UUID, from trade.Status) (*trade.Trade, error) {
	if err := t.Accept(); err != nil {
		return nil, err
	}

	target, err := s.productSvc.GetProduct(ctx, t.TargetProductID)
	if err != nil {
		return nil, err
	}
	if !target.IsAvailable() {
		s.autoDecline(ctx, t, actorID)
		return nil, trade.ErrProductNoLongerAvailable
	}

	until := time.Now().UTC().Add(s.reservationTTL)
	actor := actorID.String()
	reserved := []uuid.UUID{}
	release := func() {
		for _, pid := range reserved {
			if err := s.productSvc.Release(ctx, pid, actor); err != nil {
				s.logger.Error().Err(err).
					Str("product_id", pid.String()).
					Msg("failed to release reservation after aborted accept")
			}
		}
	}

	involved := []uuid.UUID{t.TargetProductID}
	items, err := s.tradeRepo.ListItems(ctx, t.TradeID)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		involved = append(involved, it.ProductID)
	}
	for _, pid := range involved {
		if err := s.productSvc.Reserve(ctx, pid, until, t.TradeID, actor); err != nil {
			release()
			if err == product.ErrNotAvailable || err == product.ErrVersionConflict {
				s.autoDecline(ctx, t, actorID)
				return nil, trade.ErrProductNoLongerAvailable
			}
			return nil, err
		}
		reserved = append(reserved, pid)
	}

	if err := t.Activate(); err != nil {
		release()
		return nil, err
	}
	if err := s.tradeRepo.Update(ctx, t); err != nil {
		release()
		return nil, err
	}

	s.recordTransition(ctx, t, audit.ActionAccept, actorID, from)
	s.notificationSvc.NotifyParties(ctx, t.TradeID, []uuid.UUID{t.BuyerID, t.SellerID},
		notification.TypeTradeAccepted, "trade accepted, arrange the handoff", t)
	s.logger.Info().
		Str("trade_id", t.TradeID.String()).
		Int("reserved_products", len(reserved)).
		Msg("trade activated")
	return t, nil
}

// Complete records one party's confirmation of the physical handoff. When
// the second confirmation lands the trade settles in the same call.
func (s *Service) Complete(ctx context.Context, tradeID, actorID uuid.UUID) (*trade.Trade, error) {
	t, err := s.tradeRepo.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	p, ok := t.PartyOf(actorID)
	if !ok {
		return nil, trade.ErrNotParticipant
	}

	now := time.Now().UTC()
	from := t.Status
	updated, err := s.tradeRepo.SetCompleted(ctx, tradeID, p, now)
	if err != nil {
		return nil, err
	}

	s.recordTransition(ctx, updated, audit.ActionConfirm, actorID, from)

	if updated.BuyerCompleted && updated.SellerCompleted {
		if err := s.settler.Settle(ctx, tradeID, trade.StatusCompleted); err != nil {
			// Both flags are committed; the scheduler's recovery pass picks
			// the trade up and retries settlement.
			s.logger.Error().Err(err).
				Str("trade_id", tradeID.String()).
				Msg("settlement failed after second confirmation")
			return nil, err
		}
		settled, err := s.tradeRepo.GetByID(ctx, tradeID)
		if err != nil {
			return nil, err
		}
		s.recordTransition(ctx, settled, audit.ActionSettle, actorID, from)
		s.notificationSvc.NotifyParties(ctx, tradeID, []uuid.UUID{t.BuyerID, t.SellerID},
			notification.TypeTradeCompleted, "trade completed", settled)
		return settled, nil
	}

	s.notificationSvc.NotifyParties(ctx, tradeID, []uuid.UUID{t.Counterparty(actorID)},
		notification.TypeTradeConfirmed, "your counterparty confirmed the handoff", updated)
	return updated, nil
}

// Cancel terminates a trade before settlement and releases any holds.
func (s *Service) Cancel(ctx context.Context, tradeID, actorID uuid.UUID) (*trade.Trade, error) {
	t, err := s.tradeRepo.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(actorID) {
		return nil, trade.ErrNotParticipant
	}

	from := t.Status
	wasActive := t.Status == trade.StatusActive
	if err := t.Cancel(); err != nil {
		return nil, err
	}
	if err := s.tradeRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	if wasActive {
		s.releaseInvolved(ctx, t, actorID.String())
	}

	s.recordTransition(ctx, t, audit.ActionCancel, actorID, from)
	s.notificationSvc.NotifyParties(ctx, t.TradeID, []uuid.UUID{t.Counterparty(actorID)},
		notification.TypeTradeCancelled, "the trade was cancelled", t)
	return t, nil
}

// RequestOptionChange opens a logistics change request on an active trade.
func (s *Service) RequestOptionChange(ctx context.Context, tradeID, actorID uuid.UUID, option trade.Option, deliveryAddress *string) (*trade.Trade, error) {
	t, err := s.tradeRepo.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if option == trade.OptionDelivery && deliveryAddress == nil {
		return nil, fmt.Errorf("delivery option requires an address")
	}
	if err := t.RequestOptionChange(actorID, option, deliveryAddress); err != nil {
		return nil, err
	}
	if err := s.tradeRepo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.recordTransition(ctx, t, audit.ActionOptionChange, actorID, t.Status)
	s.notificationSvc.NotifyParties(ctx, t.TradeID, []uuid.UUID{t.Counterparty(actorID)},
		notification.TypeOptionChangeRequest, "your counterparty wants to change the handoff option", t)
	return t, nil
}

// ResolveOptionChange approves or rejects a pending option change.
func (s *Service) ResolveOptionChange(ctx context.Context, tradeID, actorID uuid.UUID, approve bool) (*trade.Trade, error) {
	t, err := s.tradeRepo.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if approve {
		err = t.ApproveOptionChange(actorID)
	} else {
		err = t.RejectOptionChange(actorID)
	}
	if err != nil {
		return nil, err
	}
	if err := s.tradeRepo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.recordTransition(ctx, t, audit.ActionOptionChange, actorID, t.Status)
	s.notificationSvc.NotifyParties(ctx, t.TradeID, []uuid.UUID{t.Counterparty(actorID)},
		notification.TypeOptionChangeResolved, "the handoff option request was resolved", t)
	return t, nil
}

// GetTrade returns one trade with its offered items.
func (s *Service) GetTrade(ctx context.Context, tradeID uuid.UUID) (*trade.Trade, []trade.TradeItem, error) {
	t, err := s.tradeRepo.GetByID(ctx, tradeID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.tradeRepo.ListItems(ctx, tradeID)
	if err != nil {
		return nil, nil, err
	}
	return t, items, nil
}

// ListForUser returns a user's trades, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*trade.Trade, error) {
	return s.tradeRepo.ListByParticipant(ctx, userID, limit, offset)
}

// autoDecline persists a decline when an accept fails because a product
// left the available state. The trade cannot stay open against goods that
// are gone.
func (s *Service) autoDecline(ctx context.Context, t *trade.Trade, actorID uuid.UUID) {
	from := t.Status
	if err := t.Decline(); err != nil {
		s.logger.Error().Err(err).
			Str("trade_id", t.TradeID.String()).
			Msg("failed to decline trade after unavailable product")
		return
	}
	if err := s.tradeRepo.Update(ctx, t); err != nil {
		s.logger.Error().Err(err).
			Str("trade_id", t.TradeID.String()).
			Msg("failed to persist auto-decline")
		return
	}
	s.recordTransition(ctx, t, audit.ActionDecline, actorID, from)
	s.notificationSvc.NotifyParties(ctx, t.TradeID, []uuid.UUID{t.BuyerID, t.SellerID},
		notification.TypeTradeDeclined, "trade declined, a product is no longer available", t)
}

func (s *Service) releaseInvolved(ctx context.Context, t *trade.Trade, actor string) {
	involved := []uuid.UUID{t.TargetProductID}
	items, err := s.tradeRepo.ListItems(ctx, t.TradeID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("trade_id", t.TradeID.String()).
			Msg("failed to list items for release")
	} else {
		for _, it := range items {
			involved = append(involved, it.ProductID)
		}
	}
	for _, pid := range involved {
		if err := s.productSvc.Release(ctx, pid, actor); err != nil {
			s.logger.Error().Err(err).
				Str("product_id", pid.String()).
				Str("trade_id", t.TradeID.String()).
				Msg("failed to release product hold")
		}
	}
}

func (s *Service) recordTransition(ctx context.Context, t *trade.Trade, action audit.Action, actorID uuid.UUID, from trade.Status) {
	s.auditSvc.Log(ctx, &audit.Entry{
		EntityType: audit.EntityTypeTrade,
		EntityID:   t.TradeID,
		Action:     action,
		Actor:      actorID.String(),
		FromStatus: string(from),
		ToStatus:   string(t.Status),
		Detail:     t,
	})
}
