package product

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAudit "github.com/barterhub/barterhub/internal/application/audit"
	"github.com/barterhub/barterhub/internal/domain/audit"
	"github.com/barterhub/barterhub/internal/domain/product"
)

// Service handles product ledger operations.
type Service struct {
	repo     product.Repository
	auditSvc *appAudit.Service
	logger   zerolog.Logger
}

// NewService creates a product service.
func NewService(repo product.Repository, auditSvc *appAudit.Service, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		auditSvc: auditSvc,
		logger:   logger.With().Str("service", "product").Logger(),
	}
}

// CreateProduct lists a new product as available.
func (s *Service) CreateProduct(ctx context.Context, ownerID uuid.UUID, title string) (*product.Product, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	p := product.NewProduct(ownerID, title)
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("product_id", p.ProductID.String()).
		Str("owner_id", ownerID.String()).
		Msg("product created")
	return p, nil
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, productID uuid.UUID) (*product.Product, error) {
	return s.repo.GetByID(ctx, productID)
}

// GetAvailability returns the concurrency-relevant view of a product.
func (s *Service) GetAvailability(ctx context.Context, productID uuid.UUID) (*product.Availability, error) {
	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	av := p.Availability()
	return &av, nil
}

// ListByOwner returns a user's products, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*product.Product, error) {
	return s.repo.ListByOwner(ctx, ownerID, limit, offset)
}

// Reserve places a temporary hold on a product on behalf of a holder (a
// trade id, or the checkout actor for holds outside trades). The hold loses
// to any concurrent writer under the version check.
func (s *Service) Reserve(ctx context.Context, productID uuid.UUID, until time.Time, holder uuid.UUID, actor string) error {
	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if !p.IsAvailable() {
		return product.ErrNotAvailable
	}
	ok, err := s.repo.Reserve(ctx, productID, p.Version, until, holder)
	if err != nil {
		return err
	}
	if !ok {
		return product.ErrVersionConflict
	}
	s.auditSvc.Log(ctx, &audit.Entry{
		EntityType: audit.EntityTypeProduct,
		EntityID:   productID,
		Action:     audit.ActionReserve,
		Actor:      actor,
		FromStatus: string(product.StatusAvailable),
		ToStatus:   string(product.StatusLocked),
	})
	return nil
}

// Release clears a hold, returning the product to circulation.
func (s *Service) Release(ctx context.Context, productID uuid.UUID, actor string) error {
	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if p.Status != product.StatusLocked {
		return nil
	}
	ok, err := s.repo.ReleaseReservation(ctx, productID, p.Version)
	if err != nil {
		return err
	}
	if !ok {
		return product.ErrVersionConflict
	}
	s.auditSvc.Log(ctx, &audit.Entry{
		EntityType: audit.EntityTypeProduct,
		EntityID:   productID,
		Action:     audit.ActionRelease,
		Actor:      actor,
		FromStatus: string(product.StatusLocked),
		ToStatus:   string(product.StatusAvailable),
	})
	return nil
}
