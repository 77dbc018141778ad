package product

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines product ledger persistence. Conditional updates return
// false when the version check lost a race; callers map that to a conflict.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, productID uuid.UUID) (*Product, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Product, error)

	// Reserve sets a temporary hold expiring at the given time, recording
	// who holds it, under the version-checked discipline.
	Reserve(ctx context.Context, productID uuid.UUID, expectedVersion int, until time.Time, holder uuid.UUID) (bool, error)

	// ReleaseReservation clears the hold. Returns false on zero rows affected.
	ReleaseReservation(ctx context.Context, productID uuid.UUID, expectedVersion int) (bool, error)

	// ReleaseExpiredReservations clears every hold that expired before now
	// and returns the number of products released.
	ReleaseExpiredReservations(ctx context.Context, now time.Time) (int64, error)
}
