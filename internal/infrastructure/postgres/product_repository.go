package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barterhub/barterhub/internal/domain/product"
)

// ProductRepository implements product.Repository.
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, product_id, owner_id, title, status, version, reserved_until, reserved_by, created_at, updated_at`

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO products (product_id, owner_id, title, status, version, reserved_until, reserved_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, p.ProductID, p.OwnerID, p.Title, p.Status, p.Version, p.ReservedUntil, p.ReservedBy, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
}

func (r *ProductRepository) GetByID(ctx context.Context, productID uuid.UUID) (*product.Product, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+productColumns+` FROM products WHERE product_id=$1
	`, productID)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *ProductRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*product.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE owner_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

// Reserve performs the compare-and-set hold: the version guard is what keeps
// two writers from locking the same product, and reserved_by records who the
// hold belongs to so settlement can refuse foreign holds.
func (r *ProductRepository) Reserve(ctx context.Context, productID uuid.UUID, expectedVersion int, until time.Time, holder uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET status=$1, reserved_until=$2, reserved_by=$3, version=version+1, updated_at=NOW()
		WHERE product_id=$4 AND version=$5 AND status=$6
	`, product.StatusLocked, until, holder, productID, expectedVersion, product.StatusAvailable)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ProductRepository) ReleaseReservation(ctx context.Context, productID uuid.UUID, expectedVersion int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET status=$1, reserved_until=NULL, reserved_by=NULL, version=version+1, updated_at=NOW()
		WHERE product_id=$2 AND version=$3 AND status=$4
	`, product.StatusAvailable, productID, expectedVersion, product.StatusLocked)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ProductRepository) ReleaseExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET status=$1, reserved_until=NULL, reserved_by=NULL, version=version+1, updated_at=NOW()
		WHERE status=$2 AND reserved_until IS NOT NULL AND reserved_until < $3
	`, product.StatusAvailable, product.StatusLocked, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanProduct(row pgx.Row) (*product.Product, error) {
	var p product.Product
	if err := row.Scan(&p.ID, &p.ProductID, &p.OwnerID, &p.Title, &p.Status, &p.Version, &p.ReservedUntil, &p.ReservedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProducts(rows pgx.Rows) ([]*product.Product, error) {
	var products []*product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
