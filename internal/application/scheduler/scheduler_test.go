package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	appAudit "github.com/barterhub/barterhub/internal/application/audit"
	appNotification "github.com/barterhub/barterhub/internal/application/notification"
	"github.com/barterhub/barterhub/internal/domain/audit"
	"github.com/barterhub/barterhub/internal/domain/notification"
	notifMocks "github.com/barterhub/barterhub/internal/domain/notification/mocks"
	productMocks "github.com/barterhub/barterhub/internal/domain/product/mocks"
	"github.com/barterhub/barterhub/internal/domain/trade"
	tradeMocks "github.com/barterhub/barterhub/internal/domain/trade/mocks"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type auditRepoStub struct{}

func (auditRepoStub) Create(context.Context, *audit.TransitionRecord) error { return nil }
func (auditRepoStub) GetByID(context.Context, uuid.UUID) (*audit.TransitionRecord, error) {
	return nil, nil
}
func (auditRepoStub) Query(context.Context, audit.QueryFilter, *audit.Cursor, int) ([]*audit.TransitionRecord, *audit.Cursor, error) {
	return nil, nil, nil
}
func (auditRepoStub) GetByEntityID(context.Context, audit.EntityType, uuid.UUID) ([]*audit.TransitionRecord, error) {
	return nil, nil
}
func (auditRepoStub) Count(context.Context, audit.QueryFilter) (int64, error) { return 0, nil }

type fixture struct {
	tradeRepo   *tradeMocks.MockRepository
	productRepo *productMocks.MockRepository
	settler     *tradeMocks.MockSettler
	clock       *fakeClock
	sched       *Scheduler
	notified    []*notification.Notification
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)

	tradeRepo := tradeMocks.NewMockRepository(ctrl)
	productRepo := productMocks.NewMockRepository(ctrl)
	settler := tradeMocks.NewMockSettler(ctrl)
	notifRepo := notifMocks.NewMockRepository(ctrl)
	hub := notifMocks.NewMockSSEHub(ctrl)

	f := &fixture{
		tradeRepo:   tradeRepo,
		productRepo: productRepo,
		settler:     settler,
	}

	notifRepo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n *notification.Notification) error {
			f.notified = append(f.notified, n)
			return nil
		}).AnyTimes()
	notifRepo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	hub.EXPECT().BroadcastToUser(gomock.Any(), gomock.Any()).AnyTimes()

	logger := zerolog.Nop()
	auditSvc := appAudit.NewService(auditRepoStub{}, logger, nil)
	notifSvc := appNotification.NewService(notifRepo, hub, logger)
	f.clock = &fakeClock{now: t0}

	cfg := Config{
		EscalateAfter:     24 * time.Hour,
		AutoCompleteAfter: 48 * time.Hour,
		BatchSize:         100,
	}
	f.sched = New(tradeRepo, productRepo, settler, auditSvc, notifSvc, f.clock, cfg, logger)
	return f
}

func oneSidedTrade(status trade.Status, firstAt time.Time) *trade.Trade {
	tr := trade.NewTrade(uuid.New(), uuid.New(), uuid.New(), nil, trade.OptionMeetup, nil, "")
	tr.Status = status
	tr.BuyerCompleted = true
	tr.FirstCompletionAt = &firstAt
	return tr
}

func TestTickEscalatesOverdueTrades(t *testing.T) {
	f := newFixture(t)
	f.clock.now = t0.Add(25 * time.Hour)
	overdue := oneSidedTrade(trade.StatusActive, t0)

	f.tradeRepo.EXPECT().
		ListUnsettledConfirmed(gomock.Any(), 100).
		Return(nil, nil)
	f.tradeRepo.EXPECT().
		ListStageOneCandidates(gomock.Any(), t0.Add(1*time.Hour), 100).
		Return([]*trade.Trade{overdue}, nil)
	f.tradeRepo.EXPECT().
		MarkAwaitingConfirmation(gomock.Any(), overdue.TradeID, f.clock.now).
		Return(true, nil)
	f.tradeRepo.EXPECT().
		ListStageTwoCandidates(gomock.Any(), gomock.Any(), 100).
		Return(nil, nil)
	f.productRepo.EXPECT().
		ReleaseExpiredReservations(gomock.Any(), f.clock.now).
		Return(int64(0), nil)

	f.sched.Tick(context.Background())

	// Both participants get the reminder, not just the party that has yet
	// to confirm.
	reminded := map[uuid.UUID]bool{}
	for _, n := range f.notified {
		if n.Type == notification.TypeConfirmationReminder {
			reminded[n.UserID] = true
		}
	}
	require.True(t, reminded[overdue.BuyerID])
	require.True(t, reminded[overdue.SellerID])
}

func TestTickAutoCompletesAfterSecondWindow(t *testing.T) {
	f := newFixture(t)
	f.clock.now = t0.Add(49 * time.Hour)
	overdue := oneSidedTrade(trade.StatusAwaitingConfirmation, t0)

	f.tradeRepo.EXPECT().
		ListUnsettledConfirmed(gomock.Any(), 100).
		Return(nil, nil)
	f.tradeRepo.EXPECT().
		ListStageOneCandidates(gomock.Any(), gomock.Any(), 100).
		Return(nil, nil)
	f.tradeRepo.EXPECT().
		ListStageTwoCandidates(gomock.Any(), t0.Add(1*time.Hour), 100).
		Return([]*trade.Trade{overdue}, nil)
	f.settler.EXPECT().
		Settle(gomock.Any(), overdue.TradeID, trade.StatusAutoCompleted).
		Return(nil)
	f.productRepo.EXPECT().
		ReleaseExpiredReservations(gomock.Any(), gomock.Any()).
		Return(int64(0), nil)

	f.sched.Tick(context.Background())
}

func TestTickSkipsTradeThatLostTheRace(t *testing.T) {
	f := newFixture(t)
	f.clock.now = t0.Add(25 * time.Hour)
	racing := oneSidedTrade(trade.StatusActive, t0)

	f.tradeRepo.EXPECT().
		ListUnsettledConfirmed(gomock.Any(), 100).
		Return(nil, nil)
	f.tradeRepo.EXPECT().
		ListStageOneCandidates(gomock.Any(), gomock.Any(), 100).
		Return([]*trade.Trade{racing}, nil)
	// The guard in the repository lost to a concurrent second confirmation.
	f.tradeRepo.EXPECT().
		MarkAwaitingConfirmation(gomock.Any(), racing.TradeID, gomock.Any()).
		Return(false, nil)
	f.tradeRepo.EXPECT().
		ListStageTwoCandidates(gomock.Any(), gomock.Any(), 100).
		Return(nil, nil)
	f.productRepo.EXPECT().
		ReleaseExpiredReservations(gomock.Any(), gomock.Any()).
		Return(int64(0), nil)

	f.sched.Tick(context.Background())
}

func TestTickIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.clock.now = t0.Add(49 * time.Hour)
	failing := oneSidedTrade(trade.StatusAwaitingConfirmation, t0)
	healthy := oneSidedTrade(trade.StatusAwaitingConfirmation, t0)

	f.tradeRepo.EXPECT().
		ListUnsettledConfirmed(gomock.Any(), 100).
		Return(nil, nil)
	f.tradeRepo.EXPECT().
		ListStageOneCandidates(gomock.Any(), gomock.Any(), 100).
		Return(nil, nil)
	f.tradeRepo.EXPECT().
		ListStageTwoCandidates(gomock.Any(), gomock.Any(), 100).
		Return([]*trade.Trade{failing, healthy}, nil)
	f.settler.EXPECT().
		Settle(gomock.Any(), failing.TradeID, trade.StatusAutoCompleted).
		Return(errors.New("deadlock detected"))
	// The second trade still settles.
	f.settler.EXPECT().
		Settle(gomock.Any(), healthy.TradeID, trade.StatusAutoCompleted).
		Return(nil)
	f.productRepo.EXPECT().
		ReleaseExpiredReservations(gomock.Any(), gomock.Any()).
		Return(int64(0), nil)

	f.sched.Tick(context.Background())
}

func TestTickBeforeWindowsDoesNothing(t *testing.T) {
	f := newFixture(t)
	f.clock.now = t0.Add(time.Hour)

	f.tradeRepo.EXPECT().
		ListUnsettledConfirmed(gomock.Any(), 100).
		Return(nil, nil)
	f.tradeRepo.EXPECT().
		ListStageOneCandidates(gomock.Any(), f.clock.now.Add(-24*time.Hour), 100).
		Return(nil, nil)
	f.tradeRepo.EXPECT().
		ListStageTwoCandidates(gomock.Any(), f.clock.now.Add(-48*time.Hour), 100).
		Return(nil, nil)
	f.productRepo.EXPECT().
		ReleaseExpiredReservations(gomock.Any(), f.clock.now).
		Return(int64(2), nil)

	f.sched.Tick(context.Background())
}

func TestTickRecoversUnsettledConfirmedTrade(t *testing.T) {
	f := newFixture(t)
	f.clock.now = t0.Add(time.Hour)

	// Both parties confirmed but the settlement after the second
	// confirmation never landed, so the trade is still active.
	stuck := oneSidedTrade(trade.StatusActive, t0)
	stuck.SellerCompleted = true

	f.tradeRepo.EXPECT().
		ListUnsettledConfirmed(gomock.Any(), 100).
		Return([]*trade.Trade{stuck}, nil)
	f.settler.EXPECT().
		Settle(gomock.Any(), stuck.TradeID, trade.StatusCompleted).
		Return(nil)
	f.tradeRepo.EXPECT().
		ListStageOneCandidates(gomock.Any(), gomock.Any(), 100).
		Return(nil, nil)
	f.tradeRepo.EXPECT().
		ListStageTwoCandidates(gomock.Any(), gomock.Any(), 100).
		Return(nil, nil)
	f.productRepo.EXPECT().
		ReleaseExpiredReservations(gomock.Any(), gomock.Any()).
		Return(int64(0), nil)

	f.sched.Tick(context.Background())

	completed := 0
	for _, n := range f.notified {
		if n.Type == notification.TypeTradeCompleted {
			completed++
		}
	}
	require.Equal(t, 2, completed)
}

func TestTickRetriesRecoveryAfterConflict(t *testing.T) {
	f := newFixture(t)
	f.clock.now = t0.Add(time.Hour)
	stuck := oneSidedTrade(trade.StatusActive, t0)
	stuck.SellerCompleted = true

	// The first tick hits a settlement conflict; the trade stays in the
	// candidate set and the next tick settles it.
	firstList := f.tradeRepo.EXPECT().
		ListUnsettledConfirmed(gomock.Any(), 100).
		Return([]*trade.Trade{stuck}, nil)
	f.tradeRepo.EXPECT().
		ListUnsettledConfirmed(gomock.Any(), 100).
		Return([]*trade.Trade{stuck}, nil).
		After(firstList)
	firstSettle := f.settler.EXPECT().
		Settle(gomock.Any(), stuck.TradeID, trade.StatusCompleted).
		Return(trade.ErrSettlementConflict)
	f.settler.EXPECT().
		Settle(gomock.Any(), stuck.TradeID, trade.StatusCompleted).
		Return(nil).
		After(firstSettle)
	f.tradeRepo.EXPECT().
		ListStageOneCandidates(gomock.Any(), gomock.Any(), 100).
		Return(nil, nil).
		Times(2)
	f.tradeRepo.EXPECT().
		ListStageTwoCandidates(gomock.Any(), gomock.Any(), 100).
		Return(nil, nil).
		Times(2)
	f.productRepo.EXPECT().
		ReleaseExpiredReservations(gomock.Any(), gomock.Any()).
		Return(int64(0), nil).
		Times(2)

	ctx := context.Background()
	f.sched.Tick(ctx)
	f.sched.Tick(ctx)
}

func TestTickIsIdempotentAcrossRepeats(t *testing.T) {
	f := newFixture(t)
	f.clock.now = t0.Add(25 * time.Hour)
	overdue := oneSidedTrade(trade.StatusActive, t0)

	f.tradeRepo.EXPECT().
		ListUnsettledConfirmed(gomock.Any(), 100).
		Return(nil, nil).
		Times(2)
	// First pass moves the trade; the second pass no longer sees it.
	first := f.tradeRepo.EXPECT().
		ListStageOneCandidates(gomock.Any(), gomock.Any(), 100).
		Return([]*trade.Trade{overdue}, nil)
	f.tradeRepo.EXPECT().
		ListStageOneCandidates(gomock.Any(), gomock.Any(), 100).
		Return(nil, nil).
		After(first)
	f.tradeRepo.EXPECT().
		MarkAwaitingConfirmation(gomock.Any(), overdue.TradeID, gomock.Any()).
		Return(true, nil).
		Times(1)
	f.tradeRepo.EXPECT().
		ListStageTwoCandidates(gomock.Any(), gomock.Any(), 100).
		Return(nil, nil).
		Times(2)
	f.productRepo.EXPECT().
		ReleaseExpiredReservations(gomock.Any(), gomock.Any()).
		Return(int64(0), nil).
		Times(2)

	ctx := context.Background()
	f.sched.Tick(ctx)
	f.sched.Tick(ctx)

	require.True(t, overdue.BuyerCompleted)
}
