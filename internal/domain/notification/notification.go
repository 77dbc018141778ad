package notification

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the delivery status of a notification
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
	StatusExpired Status = "EXPIRED"
)

// Type identifies the trade event a notification reports.
type Type string

const (
	TypeTradeProposed        Type = "TRADE_PROPOSED"
	TypeTradeAccepted        Type = "TRADE_ACCEPTED"
	TypeTradeDeclined        Type = "TRADE_DECLINED"
	TypeTradeCountered       Type = "TRADE_COUNTERED"
	TypeTradeCancelled       Type = "TRADE_CANCELLED"
	TypeTradeConfirmed       Type = "TRADE_CONFIRMED"
	TypeTradeCompleted       Type = "TRADE_COMPLETED"
	TypeTradeAutoCompleted   Type = "TRADE_AUTO_COMPLETED"
	TypeConfirmationReminder Type = "CONFIRMATION_REMINDER"
	TypeOptionChangeRequest  Type = "OPTION_CHANGE_REQUEST"
	TypeOptionChangeResolved Type = "OPTION_CHANGE_RESOLVED"
	TypeCycleProposal        Type = "CYCLE_PROPOSAL"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrExpired           = errors.New("notification has expired")
	ErrClientNotFound    = errors.New("SSE client not found")
	ErrChannelFull       = errors.New("SSE message channel full")
	ErrCannotRetry       = errors.New("cannot retry notification")
)

// Notification represents a trade event to be delivered to a user.
type Notification struct {
	ID             int64           `json:"id"`
	NotificationID uuid.UUID       `json:"notificationId"`
	TradeID        uuid.UUID       `json:"tradeId"`
	UserID         uuid.UUID       `json:"userId"`
	Type           Type            `json:"type"`
	Message        string          `json:"message"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         Status          `json:"status"`
	RetryCount     int             `json:"retryCount"`
	MaxRetries     int             `json:"maxRetries"`
	LastError      *string         `json:"lastError,omitempty"`
	ExpiresAt      *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	SentAt         *time.Time      `json:"sentAt,omitempty"`
	FailedAt       *time.Time      `json:"failedAt,omitempty"`
}

// NewNotification creates a pending notification for one user.
func NewNotification(tradeID, userID uuid.UUID, typ Type, message string, payload json.RawMessage) *Notification {
	return &Notification{
		NotificationID: uuid.New(),
		TradeID:        tradeID,
		UserID:         userID,
		Type:           typ,
		Message:        message,
		Payload:        payload,
		Status:         StatusPending,
		MaxRetries:     3,
		CreatedAt:      time.Now().UTC(),
	}
}

// SetExpiry sets the expiration time
func (n *Notification) SetExpiry(expiresAt time.Time) {
	n.ExpiresAt = &expiresAt
}

// IsExpired checks if the notification has expired
func (n *Notification) IsExpired() bool {
	if n.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*n.ExpiresAt)
}

// CanTransitionTo checks if a transition to the target status is valid
func (n *Notification) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {StatusSent, StatusFailed, StatusExpired},
		StatusSent:    {},
		StatusFailed:  {StatusPending}, // Retry
		StatusExpired: {},
	}

	allowed, ok := transitions[n.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// MarkSent marks the notification as sent
func (n *Notification) MarkSent() error {
	if n.IsExpired() {
		n.Status = StatusExpired
		return ErrExpired
	}
	if !n.CanTransitionTo(StatusSent) {
		return ErrInvalidTransition
	}
	n.Status = StatusSent
	now := time.Now().UTC()
	n.SentAt = &now
	return nil
}

// MarkFailed marks the notification as failed
func (n *Notification) MarkFailed(errMsg string) error {
	if n.IsExpired() {
		n.Status = StatusExpired
		return ErrExpired
	}
	if !n.CanTransitionTo(StatusFailed) {
		return ErrInvalidTransition
	}
	n.Status = StatusFailed
	now := time.Now().UTC()
	n.FailedAt = &now
	n.LastError = &errMsg
	n.RetryCount++
	return nil
}

// MarkExpired marks the notification as expired
func (n *Notification) MarkExpired() error {
	if !n.CanTransitionTo(StatusExpired) {
		return ErrInvalidTransition
	}
	n.Status = StatusExpired
	return nil
}

// CanRetry checks if the notification can be retried
func (n *Notification) CanRetry() bool {
	return n.Status == StatusFailed && n.RetryCount < n.MaxRetries && !n.IsExpired()
}

// ResetForRetry resets the notification for retry
func (n *Notification) ResetForRetry() error {
	if !n.CanRetry() {
		return ErrCannotRetry
	}
	n.Status = StatusPending
	n.FailedAt = nil
	return nil
}

// IsTerminal returns true if the notification is in a terminal state
func (n *Notification) IsTerminal() bool {
	return n.Status == StatusSent ||
		n.Status == StatusExpired ||
		(n.Status == StatusFailed && !n.CanRetry())
}

// SSEClient represents an active SSE connection
type SSEClient struct {
	ClientID    string
	UserID      uuid.UUID
	ConnectedAt time.Time
	LastEventAt *time.Time
	MessageChan chan *SSEMessage
}

// NewSSEClient creates a new SSE client
func NewSSEClient(clientID string, userID uuid.UUID) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, 100),
	}
}

// Close closes the client's message channel
func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage represents a message to be sent via SSE
type SSEMessage struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Retry     *int            `json:"retry,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSSEMessage creates a new SSE message
func NewSSEMessage(event string, data json.RawMessage) *SSEMessage {
	return &SSEMessage{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Filter represents filters for querying notifications
type Filter struct {
	TradeID *uuid.UUID
	UserID  *uuid.UUID
	Type    *Type
	Status  *Status
	Since   *time.Time
	Until   *time.Time
}
