package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barterhub/barterhub/internal/domain/audit"
)

// AuditRepository implements audit.Repository.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

const auditColumns = `id, record_id, entity_type, entity_id, action, actor, from_status, to_status, detail, signature, created_at`

func (r *AuditRepository) Create(ctx context.Context, rec *audit.TransitionRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO trade_transitions
		(record_id, entity_type, entity_id, action, actor, from_status, to_status, detail, signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, rec.RecordID, rec.EntityType, rec.EntityID, rec.Action, rec.Actor, rec.FromStatus, rec.ToStatus, rec.Detail, rec.Signature, rec.CreatedAt)
	return err
}

func (r *AuditRepository) GetByID(ctx context.Context, recordID uuid.UUID) (*audit.TransitionRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+auditColumns+` FROM trade_transitions WHERE record_id=$1
	`, recordID)
	rec, err := scanTransition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *AuditRepository) Query(ctx context.Context, filter audit.QueryFilter, cursor *audit.Cursor, limit int) ([]*audit.TransitionRecord, *audit.Cursor, error) {
	query := `SELECT ` + auditColumns + ` FROM trade_transitions`
	args := []interface{}{}
	idx := 1
	if filter.EntityType != nil {
		query += addWhere(query) + " entity_type=$" + itoa(idx)
		args = append(args, *filter.EntityType)
		idx++
	}
	if filter.EntityID != nil {
		query += addWhere(query) + " entity_id=$" + itoa(idx)
		args = append(args, *filter.EntityID)
		idx++
	}
	if filter.Action != nil {
		query += addWhere(query) + " action=$" + itoa(idx)
		args = append(args, *filter.Action)
		idx++
	}
	if filter.Actor != nil {
		query += addWhere(query) + " actor=$" + itoa(idx)
		args = append(args, *filter.Actor)
		idx++
	}
	if filter.StartTime != nil {
		query += addWhere(query) + " created_at >= $" + itoa(idx)
		args = append(args, *filter.StartTime)
		idx++
	}
	if filter.EndTime != nil {
		query += addWhere(query) + " created_at <= $" + itoa(idx)
		args = append(args, *filter.EndTime)
		idx++
	}
	if cursor != nil {
		query += addWhere(query) + " (created_at, id) < ($" + itoa(idx) + ", $" + itoa(idx+1) + ")"
		args = append(args, cursor.CreatedAt, cursor.ID)
		idx += 2
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT $" + itoa(idx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var records []*audit.TransitionRecord
	for rows.Next() {
		rec, err := scanTransition(rows)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *audit.Cursor
	if len(records) == limit {
		last := records[len(records)-1]
		nextCursor = &audit.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return records, nextCursor, nil
}

func (r *AuditRepository) GetByEntityID(ctx context.Context, entityType audit.EntityType, entityID uuid.UUID) ([]*audit.TransitionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+auditColumns+` FROM trade_transitions
		WHERE entity_type=$1 AND entity_id=$2
		ORDER BY created_at, id
	`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*audit.TransitionRecord
	for rows.Next() {
		rec, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *AuditRepository) Count(ctx context.Context, filter audit.QueryFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM trade_transitions`
	args := []interface{}{}
	idx := 1
	if filter.EntityType != nil {
		query += addWhere(query) + " entity_type=$" + itoa(idx)
		args = append(args, *filter.EntityType)
		idx++
	}
	if filter.EntityID != nil {
		query += addWhere(query) + " entity_id=$" + itoa(idx)
		args = append(args, *filter.EntityID)
		idx++
	}
	if filter.Action != nil {
		query += addWhere(query) + " action=$" + itoa(idx)
		args = append(args, *filter.Action)
		idx++
	}
	if filter.Actor != nil {
		query += addWhere(query) + " actor=$" + itoa(idx)
		args = append(args, *filter.Actor)
		idx++
	}
	if filter.StartTime != nil {
		query += addWhere(query) + " created_at >= $" + itoa(idx)
		args = append(args, *filter.StartTime)
		idx++
	}
	if filter.EndTime != nil {
		query += addWhere(query) + " created_at <= $" + itoa(idx)
		args = append(args, *filter.EndTime)
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanTransition(row pgx.Row) (*audit.TransitionRecord, error) {
	var rec audit.TransitionRecord
	if err := row.Scan(&rec.ID, &rec.RecordID, &rec.EntityType, &rec.EntityID, &rec.Action, &rec.Actor, &rec.FromStatus, &rec.ToStatus, &rec.Detail, &rec.Signature, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func addWhere(query string) string {
	if strings.Contains(query, "WHERE") {
		return " AND"
	}
	return " WHERE"
}
