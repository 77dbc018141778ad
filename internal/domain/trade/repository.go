package trade

import (
	"context"
	"time"

	"github.com/google/uuid"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository,Settler

// Repository defines the interface for trade persistence.
type Repository interface {
	// Create persists a trade together with its offered items in one
	// transaction.
	Create(ctx context.Context, t *Trade, items []TradeItem) error
	GetByID(ctx context.Context, tradeID uuid.UUID) (*Trade, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Trade, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Trade, error)
	ListItems(ctx context.Context, tradeID uuid.UUID) ([]TradeItem, error)

	// ReplaceItems swaps the trade's offered item set in one transaction,
	// used when a counter offer revises the goods on the table.
	ReplaceItems(ctx context.Context, tradeID uuid.UUID, items []TradeItem) error

	Update(ctx context.Context, t *Trade) error

	// SetCompleted atomically flips one party's completion flag, guarded by
	// the trade being active or awaiting confirmation and the flag being
	// unset. Returns the updated trade, or ErrAlreadyCompleted /
	// ErrInvalidTransition when the guard fails.
	SetCompleted(ctx context.Context, tradeID uuid.UUID, p Party, now time.Time) (*Trade, error)

	// MarkAwaitingConfirmation moves an active trade with exactly one
	// completion flag set to awaiting_confirmation. Returns false when the
	// trade no longer qualifies.
	MarkAwaitingConfirmation(ctx context.Context, tradeID uuid.UUID, since time.Time) (bool, error)

	// ListStageOneCandidates returns active trades whose first confirmation
	// is older than the cutoff and which are not yet awaiting confirmation.
	ListStageOneCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*Trade, error)

	// ListStageTwoCandidates returns active or awaiting_confirmation trades
	// with exactly one completion flag whose first confirmation is older
	// than the cutoff.
	ListStageTwoCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*Trade, error)

	// ListUnsettledConfirmed returns trades where both parties have
	// confirmed but settlement has not landed yet, so the scheduler can
	// re-drive it.
	ListUnsettledConfirmed(ctx context.Context, limit int) ([]*Trade, error)
}

// Settler commits a trade: it validates and transfers ownership of every
// involved product and moves the trade to its final completed status in one
// transaction.
type Settler interface {
	// Settle finalizes the trade identified by tradeID. The final status is
	// StatusCompleted or StatusAutoCompleted depending on who confirmed.
	// Returns ErrSettlementConflict when a concurrent change invalidates
	// the transfer; the caller may retry on a later pass.
	Settle(ctx context.Context, tradeID uuid.UUID, final Status) error
}
