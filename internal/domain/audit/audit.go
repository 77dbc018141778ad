package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityType represents the type of entity being audited
type EntityType string

const (
	EntityTypeTrade   EntityType = "TRADE"
	EntityTypeProduct EntityType = "PRODUCT"
)

// Action represents the type of action being audited
type Action string

const (
	ActionPropose      Action = "PROPOSE"
	ActionAccept       Action = "ACCEPT"
	ActionDecline      Action = "DECLINE"
	ActionCounter      Action = "COUNTER"
	ActionCancel       Action = "CANCEL"
	ActionConfirm      Action = "CONFIRM"
	ActionSettle       Action = "SETTLE"
	ActionAutoComplete Action = "AUTO_COMPLETE"
	ActionEscalate     Action = "ESCALATE"
	ActionOptionChange Action = "OPTION_CHANGE"
	ActionReserve      Action = "RESERVE"
	ActionRelease      Action = "RELEASE"
)

// TransitionRecord is an append-only record of a trade or product state
// change. FromStatus/ToStatus carry the lifecycle edge; Detail holds the
// operation payload for dispute resolution.
type TransitionRecord struct {
	ID         int64           `json:"id"`
	RecordID   uuid.UUID       `json:"recordId"`
	EntityType EntityType      `json:"entityType"`
	EntityID   uuid.UUID       `json:"entityId"`
	Action     Action          `json:"action"`
	Actor      string          `json:"actor"`
	FromStatus string          `json:"fromStatus,omitempty"`
	ToStatus   string          `json:"toStatus,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	Signature  []byte          `json:"signature,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Entry is the input for creating a transition record.
type Entry struct {
	EntityType EntityType
	EntityID   uuid.UUID
	Action     Action
	Actor      string
	FromStatus string
	ToStatus   string
	Detail     interface{}
}

// QueryFilter represents filters for querying transition records
type QueryFilter struct {
	EntityType *EntityType
	EntityID   *uuid.UUID
	Action     *Action
	Actor      *string
	StartTime  *time.Time
	EndTime    *time.Time
}

// Cursor is a pagination cursor over (created_at, id).
type Cursor struct {
	CreatedAt time.Time `json:"ts"`
	ID        int64     `json:"id"`
}

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

// Repository defines the interface for transition record persistence
type Repository interface {
	Create(ctx context.Context, rec *TransitionRecord) error
	GetByID(ctx context.Context, recordID uuid.UUID) (*TransitionRecord, error)

	// Query retrieves records matching the filter with cursor pagination.
	Query(ctx context.Context, filter QueryFilter, cursor *Cursor, limit int) ([]*TransitionRecord, *Cursor, error)

	// GetByEntityID retrieves the full history of one entity, oldest first.
	GetByEntityID(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]*TransitionRecord, error)

	Count(ctx context.Context, filter QueryFilter) (int64, error)
}

// NewTransitionRecord creates a TransitionRecord from an Entry.
func NewTransitionRecord(entry *Entry) (*TransitionRecord, error) {
	rec := &TransitionRecord{
		RecordID:   uuid.New(),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Actor:      entry.Actor,
		FromStatus: entry.FromStatus,
		ToStatus:   entry.ToStatus,
		CreatedAt:  time.Now().UTC(),
	}
	if entry.Detail != nil {
		data, err := json.Marshal(entry.Detail)
		if err != nil {
			return nil, err
		}
		rec.Detail = data
	}
	return rec, nil
}
