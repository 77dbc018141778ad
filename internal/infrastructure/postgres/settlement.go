package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/barterhub/barterhub/internal/domain/product"
	"github.com/barterhub/barterhub/internal/domain/trade"
	"github.com/barterhub/barterhub/internal/infrastructure/metrics"
)

// Settlement implements trade.Settler. It commits a trade inside a single
// transaction: every involved product is row-locked in ascending id order to
// keep concurrent settlements deadlock-free, re-validated, version-checked,
// and transferred to its new owner before the trade row is finalized.
type Settlement struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewSettlement(pool *pgxpool.Pool, logger zerolog.Logger) *Settlement {
	return &Settlement{
		pool:   pool,
		logger: logger.With().Str("component", "settlement").Logger(),
	}
}

type lockedProduct struct {
	id         int64
	productID  uuid.UUID
	ownerID    uuid.UUID
	status     product.Status
	version    int
	reservedBy *uuid.UUID
}

func (s *Settlement) Settle(ctx context.Context, tradeID uuid.UUID, final trade.Status) error {
	if final != trade.StatusCompleted && final != trade.StatusAutoCompleted {
		return trade.ErrInvalidTransition
	}

	timer := prometheus.NewTimer(metrics.SettlementDuration)
	defer timer.ObserveDuration()

	err := s.settle(ctx, tradeID, final)
	switch {
	case err == nil:
		metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	case errors.Is(err, trade.ErrSettlementConflict):
		metrics.SettlementsTotal.WithLabelValues("conflict").Inc()
	default:
		metrics.SettlementsTotal.WithLabelValues("error").Inc()
	}
	return err
}

func (s *Settlement) settle(ctx context.Context, tradeID uuid.UUID, final trade.Status) error {

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the trade row and re-check its state.
	row := tx.QueryRow(ctx, `
		SELECT `+tradeColumns+` FROM trades WHERE trade_id=$1 FOR UPDATE
	`, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return trade.ErrNotFound
		}
		return fmt.Errorf("trade lock failed: %w", err)
	}
	if t.Status == trade.StatusCompleted || t.Status == trade.StatusAutoCompleted {
		// Already settled, nothing to do.
		return nil
	}
	if t.Status != trade.StatusActive && t.Status != trade.StatusAwaitingConfirmation {
		return trade.ErrInvalidTransition
	}

	// 2. Collect every involved product: the target plus all offered items.
	involved := []uuid.UUID{t.TargetProductID}
	itemOwner := map[uuid.UUID]uuid.UUID{}
	rows, err := tx.Query(ctx, `
		SELECT product_id, offered_by FROM trade_items WHERE trade_id=$1
	`, tradeID)
	if err != nil {
		return fmt.Errorf("items query failed: %w", err)
	}
	for rows.Next() {
		var pid uuid.UUID
		var offeredBy trade.Party
		if err := rows.Scan(&pid, &offeredBy); err != nil {
			rows.Close()
			return err
		}
		involved = append(involved, pid)
		if offeredBy == trade.PartyBuyer {
			itemOwner[pid] = t.SellerID
		} else {
			itemOwner[pid] = t.BuyerID
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	// The target product changes hands to the buyer.
	itemOwner[t.TargetProductID] = t.BuyerID

	// A pure sale (cash only, nothing offered in kind) retires the target
	// from circulation instead of marking it traded.
	targetStatus := product.StatusTraded
	if len(involved) == 1 {
		targetStatus = product.StatusUnavailable
	}

	// 3. Lock product rows in ascending internal id order so two settlements
	// sharing products always acquire locks in the same sequence.
	locked, err := lockProducts(ctx, tx, involved)
	if err != nil {
		return err
	}

	// 4. Re-validate and transfer under the version check. A hold that
	// belongs to another trade means the product was claimed out from under
	// us, same as a version mismatch.
	for _, lp := range locked {
		if lp.status == product.StatusTraded || lp.status == product.StatusUnavailable {
			return trade.ErrSettlementConflict
		}
		if lp.status == product.StatusLocked && (lp.reservedBy == nil || *lp.reservedBy != tradeID) {
			return trade.ErrSettlementConflict
		}
		newStatus := product.StatusTraded
		if lp.productID == t.TargetProductID {
			newStatus = targetStatus
		}
		tag, err := tx.Exec(ctx, `
			UPDATE products SET status=$1, owner_id=$2, reserved_until=NULL, reserved_by=NULL, version=version+1, updated_at=NOW()
			WHERE product_id=$3 AND version=$4
		`, newStatus, itemOwner[lp.productID], lp.productID, lp.version)
		if err != nil {
			return fmt.Errorf("product transfer failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return trade.ErrSettlementConflict
		}
	}

	// 5. Finalize the trade row.
	now := time.Now().UTC()
	completedAt := &now
	var autoCompletedAt *time.Time
	if final == trade.StatusAutoCompleted {
		autoCompletedAt = &now
	}
	tag, err := tx.Exec(ctx, `
		UPDATE trades SET status=$1, completed_at=$2, auto_completed_at=$3, updated_at=NOW()
		WHERE trade_id=$4 AND status=$5
	`, final, completedAt, autoCompletedAt, tradeID, t.Status)
	if err != nil {
		return fmt.Errorf("trade finalize failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return trade.ErrSettlementConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("settlement commit failed: %w", err)
	}

	s.logger.Info().
		Str("trade_id", tradeID.String()).
		Str("final_status", string(final)).
		Int("products", len(locked)).
		Msg("trade settled")
	return nil
}

func lockProducts(ctx context.Context, tx pgx.Tx, productIDs []uuid.UUID) ([]lockedProduct, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, product_id, owner_id, status, version, reserved_by FROM products
		WHERE product_id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("product lock failed: %w", err)
	}
	defer rows.Close()

	var locked []lockedProduct
	for rows.Next() {
		var lp lockedProduct
		if err := rows.Scan(&lp.id, &lp.productID, &lp.ownerID, &lp.status, &lp.version, &lp.reservedBy); err != nil {
			return nil, err
		}
		locked = append(locked, lp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(locked) != len(productIDs) {
		return nil, trade.ErrSettlementConflict
	}
	return locked, nil
}
