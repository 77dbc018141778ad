package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAudit "github.com/barterhub/barterhub/internal/application/audit"
	appNotification "github.com/barterhub/barterhub/internal/application/notification"
	"github.com/barterhub/barterhub/internal/domain/audit"
	"github.com/barterhub/barterhub/internal/domain/notification"
	"github.com/barterhub/barterhub/internal/domain/product"
	"github.com/barterhub/barterhub/internal/domain/trade"
	"github.com/barterhub/barterhub/internal/infrastructure/metrics"
)

// Clock abstracts time for deterministic scheduler tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Config carries the scheduler timing knobs.
type Config struct {
	// EscalateAfter is how long after the first confirmation a one-sided
	// trade moves to awaiting_confirmation.
	EscalateAfter time.Duration
	// AutoCompleteAfter is how long after the first confirmation an
	// awaiting_confirmation trade is force-settled.
	AutoCompleteAfter time.Duration
	// BatchSize bounds how many trades one pass touches per stage.
	BatchSize int
}

// Scheduler drives the two-stage confirmation timeout and sweeps expired
// product reservations. Every pass is idempotent: a trade already moved by a
// concurrent pass simply falls out of the candidate query.
type Scheduler struct {
	tradeRepo       trade.Repository
	productRepo     product.Repository
	settler         trade.Settler
	auditSvc        *appAudit.Service
	notificationSvc *appNotification.Service
	clock           Clock
	cfg             Config
	logger          zerolog.Logger
}

// New creates a scheduler.
func New(
	tradeRepo trade.Repository,
	productRepo product.Repository,
	settler trade.Settler,
	auditSvc *appAudit.Service,
	notificationSvc *appNotification.Service,
	clock Clock,
	cfg Config,
	logger zerolog.Logger,
) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Scheduler{
		tradeRepo:       tradeRepo,
		productRepo:     productRepo,
		settler:         settler,
		auditSvc:        auditSvc,
		notificationSvc: notificationSvc,
		clock:           clock,
		cfg:             cfg,
		logger:          logger.With().Str("service", "scheduler").Logger(),
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info().Dur("interval", interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one full pass: settlement recovery, escalation, auto-completion,
// reservation cleanup. A failure on one trade never stops the rest of the
// pass.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()
	s.settleRecoveryPass(ctx)
	s.escalatePass(ctx, now)
	s.autoCompletePass(ctx, now)
	s.reservationCleanupPass(ctx, now)
}

// settleRecoveryPass re-drives settlement for trades where both parties have
// confirmed but the settlement transaction did not land, because it hit a
// conflict or the process died between the flag flip and the settle.
func (s *Scheduler) settleRecoveryPass(ctx context.Context) {
	metrics.SchedulerPassesTotal.WithLabelValues("settle_recovery").Inc()
	candidates, err := s.tradeRepo.ListUnsettledConfirmed(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("unsettled confirmed query failed")
		return
	}
	for _, t := range candidates {
		if err := s.settler.Settle(ctx, t.TradeID, trade.StatusCompleted); err != nil {
			metrics.SchedulerTransitionsTotal.WithLabelValues("settle_recovery", "error").Inc()
			s.logger.Error().Err(err).
				Str("trade_id", t.TradeID.String()).
				Msg("settlement recovery failed")
			continue
		}
		metrics.SchedulerTransitionsTotal.WithLabelValues("settle_recovery", "settled").Inc()

		s.auditSvc.Log(ctx, &audit.Entry{
			EntityType: audit.EntityTypeTrade,
			EntityID:   t.TradeID,
			Action:     audit.ActionSettle,
			Actor:      "scheduler",
			FromStatus: string(t.Status),
			ToStatus:   string(trade.StatusCompleted),
		})
		s.notificationSvc.NotifyParties(ctx, t.TradeID, []uuid.UUID{t.BuyerID, t.SellerID},
			notification.TypeTradeCompleted, "trade completed", t)

		s.logger.Info().
			Str("trade_id", t.TradeID.String()).
			Msg("stuck settlement recovered")
	}
}

func (s *Scheduler) escalatePass(ctx context.Context, now time.Time) {
	metrics.SchedulerPassesTotal.WithLabelValues("escalate").Inc()
	cutoff := now.Add(-s.cfg.EscalateAfter)
	candidates, err := s.tradeRepo.ListStageOneCandidates(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("stage one candidate query failed")
		return
	}
	for _, t := range candidates {
		moved, err := s.tradeRepo.MarkAwaitingConfirmation(ctx, t.TradeID, now)
		if err != nil {
			metrics.SchedulerTransitionsTotal.WithLabelValues("escalate", "error").Inc()
			s.logger.Error().Err(err).
				Str("trade_id", t.TradeID.String()).
				Msg("escalation failed")
			continue
		}
		if !moved {
			// Lost the race to a second confirmation or another pass.
			metrics.SchedulerTransitionsTotal.WithLabelValues("escalate", "skipped").Inc()
			continue
		}
		metrics.SchedulerTransitionsTotal.WithLabelValues("escalate", "moved").Inc()

		s.auditSvc.Log(ctx, &audit.Entry{
			EntityType: audit.EntityTypeTrade,
			EntityID:   t.TradeID,
			Action:     audit.ActionEscalate,
			Actor:      "scheduler",
			FromStatus: string(trade.StatusActive),
			ToStatus:   string(trade.StatusAwaitingConfirmation),
		})
		s.notificationSvc.NotifyParties(ctx, t.TradeID, []uuid.UUID{t.BuyerID, t.SellerID},
			notification.TypeConfirmationReminder,
			"please confirm the handoff or the trade will complete automatically", t)

		s.logger.Info().
			Str("trade_id", t.TradeID.String()).
			Time("first_completion_at", *t.FirstCompletionAt).
			Msg("trade escalated to awaiting confirmation")
	}
}

func (s *Scheduler) autoCompletePass(ctx context.Context, now time.Time) {
	metrics.SchedulerPassesTotal.WithLabelValues("auto_complete").Inc()
	cutoff := now.Add(-s.cfg.AutoCompleteAfter)
	candidates, err := s.tradeRepo.ListStageTwoCandidates(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("stage two candidate query failed")
		return
	}
	for _, t := range candidates {
		if err := s.settler.Settle(ctx, t.TradeID, trade.StatusAutoCompleted); err != nil {
			metrics.SchedulerTransitionsTotal.WithLabelValues("auto_complete", "error").Inc()
			s.logger.Error().Err(err).
				Str("trade_id", t.TradeID.String()).
				Msg("auto-completion settlement failed")
			continue
		}
		metrics.SchedulerTransitionsTotal.WithLabelValues("auto_complete", "settled").Inc()

		s.auditSvc.Log(ctx, &audit.Entry{
			EntityType: audit.EntityTypeTrade,
			EntityID:   t.TradeID,
			Action:     audit.ActionAutoComplete,
			Actor:      "scheduler",
			FromStatus: string(t.Status),
			ToStatus:   string(trade.StatusAutoCompleted),
		})
		s.notificationSvc.NotifyParties(ctx, t.TradeID, []uuid.UUID{t.BuyerID, t.SellerID},
			notification.TypeTradeAutoCompleted, "the trade completed automatically", t)

		s.logger.Info().
			Str("trade_id", t.TradeID.String()).
			Msg("trade auto-completed")
	}
}

func (s *Scheduler) reservationCleanupPass(ctx context.Context, now time.Time) {
	metrics.SchedulerPassesTotal.WithLabelValues("reservation_cleanup").Inc()
	released, err := s.productRepo.ReleaseExpiredReservations(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("reservation cleanup failed")
		return
	}
	if released > 0 {
		s.logger.Info().Int64("released", released).Msg("expired reservations cleared")
	}
}
