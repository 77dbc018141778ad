package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository,SSEHub

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for notification persistence
type Repository interface {
	Create(ctx context.Context, notification *Notification) error
	GetByID(ctx context.Context, notificationID uuid.UUID) (*Notification, error)
	GetByTradeID(ctx context.Context, tradeID uuid.UUID) ([]*Notification, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Notification, error)
	Update(ctx context.Context, notification *Notification) error

	// Retry support
	ListPendingNotifications(ctx context.Context, limit int) ([]*Notification, error)
	ListRetryableNotifications(ctx context.Context, limit int) ([]*Notification, error)

	// Expiration
	ExpireNotifications(ctx context.Context) (int64, error)
}

// SSEHub defines the interface for managing SSE connections
type SSEHub interface {
	Register(client *SSEClient)
	Unregister(clientID string)
	GetClient(clientID string) *SSEClient
	GetClientCount() int

	BroadcastToAll(message *SSEMessage)
	BroadcastToUser(userID uuid.UUID, message *SSEMessage)
	SendToClient(clientID string, message *SSEMessage) error

	Start(ctx context.Context)
	Stop()
}
