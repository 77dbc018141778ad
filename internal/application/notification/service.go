package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barterhub/barterhub/internal/domain/notification"
)

// Service persists trade notifications and pushes them to connected SSE
// clients. Delivery to disconnected users is retried by the dispatch loop.
type Service struct {
	repo   notification.Repository
	hub    notification.SSEHub
	logger zerolog.Logger
}

// NewService creates a notification service.
func NewService(repo notification.Repository, hub notification.SSEHub, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		hub:    hub,
		logger: logger.With().Str("service", "notification").Logger(),
	}
}

// Notify records a notification for one user and attempts immediate SSE
// delivery. Persistence failure is returned; push failure is not, the
// dispatch loop will retry.
func (s *Service) Notify(ctx context.Context, tradeID, userID uuid.UUID, typ notification.Type, message string, payload interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal notification payload: %w", err)
		}
		raw = data
	}

	n := notification.NewNotification(tradeID, userID, typ, message, raw)
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}

	s.deliver(ctx, n)
	return nil
}

// NotifyParties records the same event for both participants.
func (s *Service) NotifyParties(ctx context.Context, tradeID uuid.UUID, userIDs []uuid.UUID, typ notification.Type, message string, payload interface{}) {
	for _, uid := range userIDs {
		if err := s.Notify(ctx, tradeID, uid, typ, message, payload); err != nil {
			s.logger.Error().Err(err).
				Str("trade_id", tradeID.String()).
				Str("user_id", uid.String()).
				Str("type", string(typ)).
				Msg("failed to notify participant")
		}
	}
}

// ListForUser returns a user's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*notification.Notification, error) {
	return s.repo.List(ctx, notification.Filter{UserID: &userID}, limit, offset)
}

// ProcessPending delivers pending notifications. Called by the dispatch loop.
func (s *Service) ProcessPending(ctx context.Context, batchSize int) (int, error) {
	pending, err := s.repo.ListPendingNotifications(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, n := range pending {
		if s.deliver(ctx, n) {
			delivered++
		}
	}
	return delivered, nil
}

// RetryFailed re-queues failed notifications that still have retry budget.
func (s *Service) RetryFailed(ctx context.Context, batchSize int) (int, error) {
	retryable, err := s.repo.ListRetryableNotifications(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, n := range retryable {
		if err := n.ResetForRetry(); err != nil {
			continue
		}
		if err := s.repo.Update(ctx, n); err != nil {
			s.logger.Error().Err(err).
				Str("notification_id", n.NotificationID.String()).
				Msg("failed to reset notification for retry")
			continue
		}
		requeued++
	}
	return requeued, nil
}

// ExpireStale marks overdue notifications expired.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	return s.repo.ExpireNotifications(ctx)
}

// deliver pushes one notification over SSE and records the outcome. Returns
// true when the push went out.
func (s *Service) deliver(ctx context.Context, n *notification.Notification) bool {
	data, err := json.Marshal(n)
	if err != nil {
		s.fail(ctx, n, err)
		return false
	}
	msg := notification.NewSSEMessage(string(n.Type), data)
	s.hub.BroadcastToUser(n.UserID, msg)

	if err := n.MarkSent(); err != nil {
		s.fail(ctx, n, err)
		return false
	}
	if err := s.repo.Update(ctx, n); err != nil {
		s.logger.Error().Err(err).
			Str("notification_id", n.NotificationID.String()).
			Msg("failed to record notification delivery")
		return false
	}
	return true
}

func (s *Service) fail(ctx context.Context, n *notification.Notification, cause error) {
	if err := n.MarkFailed(cause.Error()); err != nil {
		return
	}
	if err := s.repo.Update(ctx, n); err != nil {
		s.logger.Error().Err(err).
			Str("notification_id", n.NotificationID.String()).
			Msg("failed to record notification failure")
	}
}
