package product

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents product availability status.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusTraded      Status = "traded"
	StatusLocked      Status = "locked"
)

var (
	ErrNotFound        = errors.New("product not found")
	ErrVersionConflict = errors.New("product version conflict")
	ErrNotAvailable    = errors.New("product not available")
)

// Product represents one tradeable item in the ledger. Every mutation of
// status or reservation goes through a version-checked conditional update;
// a zero-row result is a lost race, never a partial write.
type Product struct {
	ID            int64      `json:"id"`
	ProductID     uuid.UUID  `json:"productId"`
	OwnerID       uuid.UUID  `json:"ownerId"`
	Title         string     `json:"title"`
	Status        Status     `json:"status"`
	Version       int        `json:"version"`
	ReservedUntil *time.Time `json:"reservedUntil,omitempty"`
	ReservedBy    *uuid.UUID `json:"reservedBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// NewProduct creates a product in the available state at version 1.
func NewProduct(ownerID uuid.UUID, title string) *Product {
	now := time.Now().UTC()
	return &Product{
		ProductID: uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		Status:    StatusAvailable,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAvailable reports whether the product can be targeted by a new trade.
func (p *Product) IsAvailable() bool {
	return p.Status == StatusAvailable
}

// IsReserved reports whether a temporary hold is in effect at the given time.
func (p *Product) IsReserved(now time.Time) bool {
	return p.ReservedUntil != nil && p.ReservedUntil.After(now)
}

// IsHeldBy reports whether the product's current hold belongs to the given
// holder (a trade id or a checkout actor).
func (p *Product) IsHeldBy(holder uuid.UUID) bool {
	return p.ReservedBy != nil && *p.ReservedBy == holder
}

// IsTerminal reports whether the product has left circulation.
func (p *Product) IsTerminal() bool {
	return p.Status == StatusTraded || p.Status == StatusUnavailable
}

// Availability is the read contract exposed to catalog and listing code.
type Availability struct {
	Status        Status     `json:"status"`
	Version       int        `json:"version"`
	ReservedUntil *time.Time `json:"reservedUntil,omitempty"`
}

// Availability returns the concurrency-relevant view of the product.
func (p *Product) Availability() Availability {
	return Availability{
		Status:        p.Status,
		Version:       p.Version,
		ReservedUntil: p.ReservedUntil,
	}
}
