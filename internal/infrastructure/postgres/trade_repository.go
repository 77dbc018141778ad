package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barterhub/barterhub/internal/domain/trade"
)

// TradeRepository implements trade.Repository.
type TradeRepository struct {
	pool *pgxpool.Pool
}

func NewTradeRepository(pool *pgxpool.Pool) *TradeRepository {
	return &TradeRepository{pool: pool}
}

const tradeColumns = `id, trade_id, buyer_id, seller_id, target_product_id, cash_offer_cents, status, message,
	buyer_completed, seller_completed, first_completion_at, awaiting_confirmation_since, auto_completed_at, completed_at,
	trade_option, delivery_address, option_change_requested, option_change_address, option_change_requested_by,
	created_at, updated_at`

func (r *TradeRepository) Create(ctx context.Context, t *trade.Trade, items []trade.TradeItem) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO trades (trade_id, buyer_id, seller_id, target_product_id, cash_offer_cents, status, message, trade_option, delivery_address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, t.TradeID, t.BuyerID, t.SellerID, t.TargetProductID, t.CashOfferCents, t.Status, t.Message, t.TradeOption, t.DeliveryAddress, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
	if err != nil {
		return err
	}

	for i := range items {
		items[i].TradeID = t.TradeID
		err = tx.QueryRow(ctx, `
			INSERT INTO trade_items (trade_id, product_id, offered_by, created_at)
			VALUES ($1,$2,$3,NOW())
			RETURNING id, created_at
		`, items[i].TradeID, items[i].ProductID, items[i].OfferedBy).Scan(&items[i].ID, &items[i].CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *TradeRepository) GetByID(ctx context.Context, tradeID uuid.UUID) (*trade.Trade, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+tradeColumns+` FROM trades WHERE trade_id=$1
	`, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, trade.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *TradeRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*trade.Trade, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE buyer_id=$1 OR seller_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (r *TradeRepository) ListByStatus(ctx context.Context, status trade.Status, limit, offset int) ([]*trade.Trade, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE status=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (r *TradeRepository) ListItems(ctx context.Context, tradeID uuid.UUID) ([]trade.TradeItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, trade_id, product_id, offered_by, created_at
		FROM trade_items WHERE trade_id=$1 ORDER BY id
	`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []trade.TradeItem
	for rows.Next() {
		var it trade.TradeItem
		if err := rows.Scan(&it.ID, &it.TradeID, &it.ProductID, &it.OfferedBy, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *TradeRepository) ReplaceItems(ctx context.Context, tradeID uuid.UUID, items []trade.TradeItem) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM trade_items WHERE trade_id=$1`, tradeID); err != nil {
		return err
	}
	for i := range items {
		items[i].TradeID = tradeID
		err = tx.QueryRow(ctx, `
			INSERT INTO trade_items (trade_id, product_id, offered_by, created_at)
			VALUES ($1,$2,$3,NOW())
			RETURNING id, created_at
		`, items[i].TradeID, items[i].ProductID, items[i].OfferedBy).Scan(&items[i].ID, &items[i].CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *TradeRepository) Update(ctx context.Context, t *trade.Trade) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE trades SET
			cash_offer_cents=$1, status=$2, message=$3,
			buyer_completed=$4, seller_completed=$5, first_completion_at=$6,
			awaiting_confirmation_since=$7, auto_completed_at=$8, completed_at=$9,
			trade_option=$10, delivery_address=$11,
			option_change_requested=$12, option_change_address=$13, option_change_requested_by=$14,
			updated_at=NOW()
		WHERE trade_id=$15
	`, t.CashOfferCents, t.Status, t.Message,
		t.BuyerCompleted, t.SellerCompleted, t.FirstCompletionAt,
		t.AwaitingConfirmationSince, t.AutoCompletedAt, t.CompletedAt,
		t.TradeOption, t.DeliveryAddress,
		t.OptionChangeRequested, t.OptionChangeAddress, t.OptionChangeRequestedBy,
		t.TradeID)
	return err
}

// SetCompleted flips one party's completion flag in a single guarded update.
// Concurrent confirmations from both parties each see their own flag flip;
// whoever observes both flags set is responsible for settling.
func (r *TradeRepository) SetCompleted(ctx context.Context, tradeID uuid.UUID, p trade.Party, now time.Time) (*trade.Trade, error) {
	flag := "buyer_completed"
	if p == trade.PartySeller {
		flag = "seller_completed"
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE trades SET `+flag+`=TRUE,
			first_completion_at=COALESCE(first_completion_at, $2),
			updated_at=NOW()
		WHERE trade_id=$1 AND status IN ($3,$4) AND `+flag+`=FALSE
		RETURNING `+tradeColumns+`
	`, tradeID, now, trade.StatusActive, trade.StatusAwaitingConfirmation)

	t, err := scanTrade(row)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// Guard failed: load the row and let the domain rule say why.
	current, getErr := r.GetByID(ctx, tradeID)
	if getErr != nil {
		return nil, getErr
	}
	if _, markErr := current.MarkCompleted(p, now); markErr != nil {
		return nil, markErr
	}
	// The in-memory check passed, so the row changed between the update and
	// the re-read. Treat it as a duplicate confirmation.
	return nil, trade.ErrAlreadyCompleted
}

func (r *TradeRepository) MarkAwaitingConfirmation(ctx context.Context, tradeID uuid.UUID, since time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE trades SET status=$1, awaiting_confirmation_since=$2, updated_at=NOW()
		WHERE trade_id=$3 AND status=$4
			AND (buyer_completed OR seller_completed)
			AND NOT (buyer_completed AND seller_completed)
	`, trade.StatusAwaitingConfirmation, since, tradeID, trade.StatusActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TradeRepository) ListStageOneCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*trade.Trade, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE status=$1
			AND (buyer_completed OR seller_completed)
			AND NOT (buyer_completed AND seller_completed)
			AND first_completion_at IS NOT NULL AND first_completion_at <= $2
		ORDER BY first_completion_at LIMIT $3
	`, trade.StatusActive, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (r *TradeRepository) ListStageTwoCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*trade.Trade, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE status IN ($1, $2)
			AND (buyer_completed <> seller_completed)
			AND first_completion_at IS NOT NULL AND first_completion_at <= $3
		ORDER BY first_completion_at LIMIT $4
	`, trade.StatusActive, trade.StatusAwaitingConfirmation, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (r *TradeRepository) ListUnsettledConfirmed(ctx context.Context, limit int) ([]*trade.Trade, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE status IN ($1, $2)
			AND buyer_completed AND seller_completed
		ORDER BY first_completion_at LIMIT $3
	`, trade.StatusActive, trade.StatusAwaitingConfirmation, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrade(row pgx.Row) (*trade.Trade, error) {
	var t trade.Trade
	if err := row.Scan(
		&t.ID, &t.TradeID, &t.BuyerID, &t.SellerID, &t.TargetProductID, &t.CashOfferCents, &t.Status, &t.Message,
		&t.BuyerCompleted, &t.SellerCompleted, &t.FirstCompletionAt, &t.AwaitingConfirmationSince, &t.AutoCompletedAt, &t.CompletedAt,
		&t.TradeOption, &t.DeliveryAddress, &t.OptionChangeRequested, &t.OptionChangeAddress, &t.OptionChangeRequestedBy,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTrades(rows pgx.Rows) ([]*trade.Trade, error) {
	var trades []*trade.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
