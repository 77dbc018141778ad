package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barterhub/barterhub/internal/domain/audit"
)

// Service handles transition record operations
type Service struct {
	repo    audit.Repository
	logger  zerolog.Logger
	signKey []byte
}

// NewService creates a new audit service
func NewService(repo audit.Repository, logger zerolog.Logger, signKey []byte) *Service {
	return &Service{
		repo:    repo,
		signKey: signKey,
		logger:  logger.With().Str("service", "audit").Logger(),
	}
}

// Log creates a new transition record asynchronously
func (s *Service) Log(ctx context.Context, entry *audit.Entry) {
	go func() {
		if err := s.LogSync(context.Background(), entry); err != nil {
			s.logger.Error().Err(err).
				Str("entityType", string(entry.EntityType)).
				Str("entityId", entry.EntityID.String()).
				Str("action", string(entry.Action)).
				Msg("failed to create transition record")
		}
	}()
}

// LogSync creates a new transition record synchronously
func (s *Service) LogSync(ctx context.Context, entry *audit.Entry) error {
	rec, err := audit.NewTransitionRecord(entry)
	if err != nil {
		return fmt.Errorf("failed to create transition record: %w", err)
	}

	if len(s.signKey) > 0 {
		sig, err := audit.SignRecord(rec, s.signKey)
		if err != nil {
			return fmt.Errorf("failed to sign transition record: %w", err)
		}
		rec.Signature = sig
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("failed to save transition record: %w", err)
	}

	s.logger.Debug().
		Str("recordId", rec.RecordID.String()).
		Str("entityType", string(rec.EntityType)).
		Str("entityId", rec.EntityID.String()).
		Str("action", string(rec.Action)).
		Str("actor", rec.Actor).
		Msg("transition record created")

	return nil
}

// History returns the full transition history of one entity, oldest first.
func (s *Service) History(ctx context.Context, entityType audit.EntityType, entityID uuid.UUID) ([]*audit.TransitionRecord, error) {
	return s.repo.GetByEntityID(ctx, entityType, entityID)
}

// Query returns transition records matching the filter with cursor pagination.
func (s *Service) Query(ctx context.Context, filter audit.QueryFilter, cursor *audit.Cursor, limit int) ([]*audit.TransitionRecord, *audit.Cursor, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.Query(ctx, filter, cursor, limit)
}

// Verify re-computes the HMAC of a stored record against the signing key.
func (s *Service) Verify(ctx context.Context, rec *audit.TransitionRecord) (bool, error) {
	return audit.VerifyRecordSignature(rec, s.signKey)
}
