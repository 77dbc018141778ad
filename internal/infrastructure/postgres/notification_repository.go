package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barterhub/barterhub/internal/domain/notification"
)

// NotificationRepository implements notification.Repository.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

const notificationColumns = `id, notification_id, trade_id, user_id, type, message, payload, status,
	retry_count, max_retries, last_error, expires_at, created_at, sent_at, failed_at`

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications
		(notification_id, trade_id, user_id, type, message, payload, status, retry_count, max_retries, last_error, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, n.NotificationID, n.TradeID, n.UserID, n.Type, n.Message, n.Payload, n.Status, n.RetryCount, n.MaxRetries, n.LastError, n.ExpiresAt, n.CreatedAt).Scan(&n.ID)
}

func (r *NotificationRepository) GetByID(ctx context.Context, notificationID uuid.UUID) (*notification.Notification, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+` FROM notifications WHERE notification_id=$1
	`, notificationID)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

func (r *NotificationRepository) GetByTradeID(ctx context.Context, tradeID uuid.UUID) ([]*notification.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE trade_id=$1 ORDER BY created_at DESC
	`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *NotificationRepository) List(ctx context.Context, filter notification.Filter, limit, offset int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	args := []interface{}{}
	idx := 1
	if filter.TradeID != nil {
		query += addWhere(query) + " trade_id=$" + itoa(idx)
		args = append(args, *filter.TradeID)
		idx++
	}
	if filter.UserID != nil {
		query += addWhere(query) + " user_id=$" + itoa(idx)
		args = append(args, *filter.UserID)
		idx++
	}
	if filter.Type != nil {
		query += addWhere(query) + " type=$" + itoa(idx)
		args = append(args, *filter.Type)
		idx++
	}
	if filter.Status != nil {
		query += addWhere(query) + " status=$" + itoa(idx)
		args = append(args, *filter.Status)
		idx++
	}
	if filter.Since != nil {
		query += addWhere(query) + " created_at >= $" + itoa(idx)
		args = append(args, *filter.Since)
		idx++
	}
	if filter.Until != nil {
		query += addWhere(query) + " created_at <= $" + itoa(idx)
		args = append(args, *filter.Until)
		idx++
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *NotificationRepository) Update(ctx context.Context, n *notification.Notification) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET status=$1, retry_count=$2, last_error=$3, sent_at=$4, failed_at=$5
		WHERE notification_id=$6
	`, n.Status, n.RetryCount, n.LastError, n.SentAt, n.FailedAt, n.NotificationID)
	return err
}

func (r *NotificationRepository) ListPendingNotifications(ctx context.Context, limit int) ([]*notification.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status=$1 AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at LIMIT $2
	`, notification.StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *NotificationRepository) ListRetryableNotifications(ctx context.Context, limit int) ([]*notification.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status=$1 AND retry_count < max_retries AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY failed_at LIMIT $2
	`, notification.StatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *NotificationRepository) ExpireNotifications(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET status=$1
		WHERE status IN ($2,$3) AND expires_at IS NOT NULL AND expires_at <= NOW()
	`, notification.StatusExpired, notification.StatusPending, notification.StatusFailed)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var n notification.Notification
	if err := row.Scan(&n.ID, &n.NotificationID, &n.TradeID, &n.UserID, &n.Type, &n.Message, &n.Payload, &n.Status,
		&n.RetryCount, &n.MaxRetries, &n.LastError, &n.ExpiresAt, &n.CreatedAt, &n.SentAt, &n.FailedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNotifications(rows pgx.Rows) ([]*notification.Notification, error) {
	var notifications []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
