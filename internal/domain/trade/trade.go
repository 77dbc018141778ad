package trade

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents trade lifecycle status.
type Status string

const (
	StatusPending              Status = "pending"
	StatusAccepted             Status = "accepted"
	StatusDeclined             Status = "declined"
	StatusCountered            Status = "countered"
	StatusActive               Status = "active"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusCompleted            Status = "completed"
	StatusAutoCompleted        Status = "auto_completed"
	StatusCancelled            Status = "cancelled"
)

// Option represents the agreed logistics option for the handoff.
type Option string

const (
	OptionMeetup   Option = "meetup"
	OptionDelivery Option = "delivery"
)

// Party identifies which side of the trade an actor is on.
type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

var (
	ErrNotFound                 = errors.New("trade not found")
	ErrInvalidTransition        = errors.New("invalid trade status transition")
	ErrInvalidTarget            = errors.New("target product is not available")
	ErrProductNoLongerAvailable = errors.New("target product is no longer available")
	ErrSettlementConflict       = errors.New("settlement conflict: a product was committed elsewhere")
	ErrNotParticipant           = errors.New("actor is not a participant of this trade")
	ErrAlreadyCompleted         = errors.New("participant already confirmed completion")
	ErrOptionChangePending      = errors.New("an option change request is already pending")
	ErrNoOptionChange           = errors.New("no option change request is pending")
)

// Trade represents one barter or purchase negotiation between a buyer and a
// seller over a target product.
type Trade struct {
	ID                        int64      `json:"id"`
	TradeID                   uuid.UUID  `json:"tradeId"`
	BuyerID                   uuid.UUID  `json:"buyerId"`
	SellerID                  uuid.UUID  `json:"sellerId"`
	TargetProductID           uuid.UUID  `json:"targetProductId"`
	CashOfferCents            *int64     `json:"cashOfferCents,omitempty"`
	Status                    Status     `json:"status"`
	Message                   string     `json:"message,omitempty"`
	BuyerCompleted            bool       `json:"buyerCompleted"`
	SellerCompleted           bool       `json:"sellerCompleted"`
	FirstCompletionAt         *time.Time `json:"firstCompletionAt,omitempty"`
	AwaitingConfirmationSince *time.Time `json:"awaitingConfirmationSince,omitempty"`
	AutoCompletedAt           *time.Time `json:"autoCompletedAt,omitempty"`
	CompletedAt               *time.Time `json:"completedAt,omitempty"`
	TradeOption               Option     `json:"tradeOption"`
	DeliveryAddress           *string    `json:"deliveryAddress,omitempty"`
	OptionChangeRequested     *Option    `json:"optionChangeRequested,omitempty"`
	OptionChangeAddress       *string    `json:"optionChangeAddress,omitempty"`
	OptionChangeRequestedBy   *uuid.UUID `json:"optionChangeRequestedBy,omitempty"`
	CreatedAt                 time.Time  `json:"createdAt"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
}

// TradeItem is a product offered by either side as part of a trade.
// Immutable once created.
type TradeItem struct {
	ID        int64     `json:"id"`
	TradeID   uuid.UUID `json:"tradeId"`
	ProductID uuid.UUID `json:"productId"`
	OfferedBy Party     `json:"offeredBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewTrade creates a trade proposal in the pending state.
func NewTrade(buyerID, sellerID, targetProductID uuid.UUID, cash *int64, option Option, deliveryAddress *string, message string) *Trade {
	now := time.Now().UTC()
	return &Trade{
		TradeID:         uuid.New(),
		BuyerID:         buyerID,
		SellerID:        sellerID,
		TargetProductID: targetProductID,
		CashOfferCents:  cash,
		Status:          StatusPending,
		Message:         message,
		TradeOption:     option,
		DeliveryAddress: deliveryAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CanTransitionTo validates trade status transitions.
func (t *Trade) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending:              {StatusAccepted, StatusDeclined, StatusCountered, StatusCancelled},
		StatusAccepted:             {StatusActive, StatusDeclined, StatusCancelled},
		StatusCountered:            {StatusPending, StatusAccepted, StatusDeclined, StatusCancelled},
		StatusActive:               {StatusAwaitingConfirmation, StatusCompleted, StatusAutoCompleted, StatusCancelled},
		StatusAwaitingConfirmation: {StatusCompleted, StatusAutoCompleted},
		StatusDeclined:             {},
		StatusCompleted:            {},
		StatusAutoCompleted:        {},
		StatusCancelled:            {},
	}
	allowed := transitions[t.Status]
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the trade has reached a final status.
func (t *Trade) IsTerminal() bool {
	switch t.Status {
	case StatusDeclined, StatusCompleted, StatusAutoCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsParticipant reports whether the actor is buyer or seller on this trade.
func (t *Trade) IsParticipant(actorID uuid.UUID) bool {
	return actorID == t.BuyerID || actorID == t.SellerID
}

// PartyOf returns which side the actor is on.
func (t *Trade) PartyOf(actorID uuid.UUID) (Party, bool) {
	switch actorID {
	case t.BuyerID:
		return PartyBuyer, true
	case t.SellerID:
		return PartySeller, true
	}
	return "", false
}

// Counterparty returns the other participant's id.
func (t *Trade) Counterparty(actorID uuid.UUID) uuid.UUID {
	if actorID == t.BuyerID {
		return t.SellerID
	}
	return t.BuyerID
}

// Accept moves a proposal to accepted. The caller must re-check the target
// product's availability before activating.
func (t *Trade) Accept() error {
	if !t.CanTransitionTo(StatusAccepted) {
		return ErrInvalidTransition
	}
	t.Status = StatusAccepted
	return nil
}

// Activate moves an accepted trade to active.
func (t *Trade) Activate() error {
	if !t.CanTransitionTo(StatusActive) {
		return ErrInvalidTransition
	}
	t.Status = StatusActive
	return nil
}

// Decline rejects the current proposal.
func (t *Trade) Decline() error {
	if !t.CanTransitionTo(StatusDeclined) {
		return ErrInvalidTransition
	}
	t.Status = StatusDeclined
	return nil
}

// Counter replaces the offer and hands the proposal to the other side.
// From pending the seller counters; from countered the buyer re-proposes.
func (t *Trade) Counter() error {
	switch t.Status {
	case StatusPending:
		t.Status = StatusCountered
	case StatusCountered:
		t.Status = StatusPending
	default:
		return ErrInvalidTransition
	}
	return nil
}

// Cancel terminates the trade. Not permitted once both sides have confirmed
// or the trade already reached a terminal status.
func (t *Trade) Cancel() error {
	if t.BuyerCompleted && t.SellerCompleted {
		return ErrInvalidTransition
	}
	if !t.CanTransitionTo(StatusCancelled) {
		return ErrInvalidTransition
	}
	t.Status = StatusCancelled
	return nil
}

// MarkCompleted records one participant's confirmation of the handoff.
// Returns true when both sides have now confirmed, in which case the caller
// must settle the trade in the same logical step.
func (t *Trade) MarkCompleted(p Party, now time.Time) (bool, error) {
	if t.Status != StatusActive && t.Status != StatusAwaitingConfirmation {
		return false, ErrInvalidTransition
	}
	switch p {
	case PartyBuyer:
		if t.BuyerCompleted {
			return false, ErrAlreadyCompleted
		}
		t.BuyerCompleted = true
	case PartySeller:
		if t.SellerCompleted {
			return false, ErrAlreadyCompleted
		}
		t.SellerCompleted = true
	default:
		return false, ErrNotParticipant
	}
	if t.FirstCompletionAt == nil {
		ts := now
		t.FirstCompletionAt = &ts
	}
	return t.BuyerCompleted && t.SellerCompleted, nil
}

// RequestOptionChange opens a pending logistics-option change on an active
// trade. The counterparty must approve it before it takes effect.
func (t *Trade) RequestOptionChange(actorID uuid.UUID, option Option, deliveryAddress *string) error {
	if t.Status != StatusActive {
		return ErrInvalidTransition
	}
	if !t.IsParticipant(actorID) {
		return ErrNotParticipant
	}
	if t.OptionChangeRequested != nil {
		return ErrOptionChangePending
	}
	opt := option
	actor := actorID
	t.OptionChangeRequested = &opt
	t.OptionChangeAddress = deliveryAddress
	t.OptionChangeRequestedBy = &actor
	return nil
}

// ApproveOptionChange applies the pending option change. Only the
// counterparty of the requester may approve.
func (t *Trade) ApproveOptionChange(actorID uuid.UUID) error {
	if err := t.checkOptionChangeResolver(actorID); err != nil {
		return err
	}
	t.TradeOption = *t.OptionChangeRequested
	t.DeliveryAddress = t.OptionChangeAddress
	t.clearOptionChange()
	return nil
}

// RejectOptionChange discards the pending option change.
func (t *Trade) RejectOptionChange(actorID uuid.UUID) error {
	if err := t.checkOptionChangeResolver(actorID); err != nil {
		return err
	}
	t.clearOptionChange()
	return nil
}

func (t *Trade) checkOptionChangeResolver(actorID uuid.UUID) error {
	if !t.IsParticipant(actorID) {
		return ErrNotParticipant
	}
	if t.OptionChangeRequested == nil || t.OptionChangeRequestedBy == nil {
		return ErrNoOptionChange
	}
	if *t.OptionChangeRequestedBy == actorID {
		return ErrNotParticipant
	}
	return nil
}

func (t *Trade) clearOptionChange() {
	t.OptionChangeRequested = nil
	t.OptionChangeAddress = nil
	t.OptionChangeRequestedBy = nil
}
