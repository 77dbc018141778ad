package trade

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	appAudit "github.com/barterhub/barterhub/internal/application/audit"
	appNotification "github.com/barterhub/barterhub/internal/application/notification"
	appProduct "github.com/barterhub/barterhub/internal/application/product"
	"github.com/barterhub/barterhub/internal/domain/audit"
	notifMocks "github.com/barterhub/barterhub/internal/domain/notification/mocks"
	"github.com/barterhub/barterhub/internal/domain/product"
	productMocks "github.com/barterhub/barterhub/internal/domain/product/mocks"
	"github.com/barterhub/barterhub/internal/domain/trade"
	tradeMocks "github.com/barterhub/barterhub/internal/domain/trade/mocks"
)

// auditRepoStub swallows transition records. The audit service writes from a
// goroutine, so a strict mock would race the test teardown.
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
	settler     *tradeMocks.MockSettler
	productRepo *productMocks.MockRepository
	svc         *Service
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)

	tradeRepo := tradeMocks.NewMockRepository(ctrl)
	settler := tradeMocks.NewMockSettler(ctrl)
	productRepo := productMocks.NewMockRepository(ctrl)
	notifRepo := notifMocks.NewMockRepository(ctrl)
	hub := notifMocks.NewMockSSEHub(ctrl)

	notifRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	notifRepo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	hub.EXPECT().BroadcastToUser(gomock.Any(), gomock.Any()).AnyTimes()

	logger := zerolog.Nop()
	auditSvc := appAudit.NewService(auditRepoStub{}, logger, nil)
	productSvc := appProduct.NewService(productRepo, auditSvc, logger)
	notifSvc := appNotification.NewService(notifRepo, hub, logger)

	return &fixture{
		tradeRepo:   tradeRepo,
		settler:     settler,
		productRepo: productRepo,
		svc:         NewService(tradeRepo, settler, productSvc, auditSvc, notifSvc, 72*time.Hour, logger),
	}
}

func availableProduct(owner uuid.UUID) *product.Product {
	p := product.NewProduct(owner, "camera")
	return p
}

func TestPropose(t *testing.T) {
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()
	cash := int64(5000)

	t.Run("cash offer for available product", func(t *testing.T) {
		f := newFixture(t)
		target := availableProduct(seller)

		f.productRepo.EXPECT().GetByID(ctx, target.ProductID).Return(target, nil)
		f.tradeRepo.EXPECT().
			Create(ctx, gomock.Any(), gomock.Len(0)).
			DoAndReturn(func(_ context.Context, tr *trade.Trade, _ []trade.TradeItem) error {
				assert.Equal(t, trade.StatusPending, tr.Status)
				assert.Equal(t, buyer, tr.BuyerID)
				assert.Equal(t, seller, tr.SellerID)
				return nil
			})

		tr, err := f.svc.Propose(ctx, ProposeInput{
			BuyerID:         buyer,
			TargetProductID: target.ProductID,
			CashOfferCents:  &cash,
			Option:          trade.OptionMeetup,
		})
		require.NoError(t, err)
		assert.Equal(t, trade.StatusPending, tr.Status)
	})

	t.Run("barter offer records items", func(t *testing.T) {
		f := newFixture(t)
		target := availableProduct(seller)
		offered := availableProduct(buyer)

		f.productRepo.EXPECT().GetByID(ctx, target.ProductID).Return(target, nil)
		f.productRepo.EXPECT().GetByID(ctx, offered.ProductID).Return(offered, nil)
		f.tradeRepo.EXPECT().
			Create(ctx, gomock.Any(), gomock.Len(1)).
			DoAndReturn(func(_ context.Context, _ *trade.Trade, items []trade.TradeItem) error {
				assert.Equal(t, offered.ProductID, items[0].ProductID)
				assert.Equal(t, trade.PartyBuyer, items[0].OfferedBy)
				return nil
			})

		_, err := f.svc.Propose(ctx, ProposeInput{
			BuyerID:           buyer,
			TargetProductID:   target.ProductID,
			OfferedProductIDs: []uuid.UUID{offered.ProductID},
			Option:            trade.OptionMeetup,
		})
		require.NoError(t, err)
	})

	t.Run("unavailable target rejected", func(t *testing.T) {
		f := newFixture(t)
		target := availableProduct(seller)
		target.Status = product.StatusTraded

		f.productRepo.EXPECT().GetByID(ctx, target.ProductID).Return(target, nil)

		_, err := f.svc.Propose(ctx, ProposeInput{
			BuyerID:         buyer,
			TargetProductID: target.ProductID,
			CashOfferCents:  &cash,
			Option:          trade.OptionMeetup,
		})
		assert.ErrorIs(t, err, trade.ErrInvalidTarget)
	})

	t.Run("own product rejected", func(t *testing.T) {
		f := newFixture(t)
		target := availableProduct(buyer)

		f.productRepo.EXPECT().GetByID(ctx, target.ProductID).Return(target, nil)

		_, err := f.svc.Propose(ctx, ProposeInput{
			BuyerID:         buyer,
			TargetProductID: target.ProductID,
			CashOfferCents:  &cash,
			Option:          trade.OptionMeetup,
		})
		assert.Error(t, err)
	})

	t.Run("empty offer rejected", func(t *testing.T) {
		f := newFixture(t)
		target := availableProduct(seller)

		f.productRepo.EXPECT().GetByID(ctx, target.ProductID).Return(target, nil)

		_, err := f.svc.Propose(ctx, ProposeInput{
			BuyerID:         buyer,
			TargetProductID: target.ProductID,
			Option:          trade.OptionMeetup,
		})
		assert.Error(t, err)
	})
}

func pendingTrade(buyer, seller uuid.UUID) *trade.Trade {
	cash := int64(1000)
	return trade.NewTrade(buyer, seller, uuid.New(), &cash, trade.OptionMeetup, nil, "")
}

func TestRespond(t *testing.T) {
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()

	t.Run("seller accepts pending trade", func(t *testing.T) {
		f := newFixture(t)
		tr := pendingTrade(buyer, seller)
		target := availableProduct(seller)
		target.ProductID = tr.TargetProductID

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.productRepo.EXPECT().GetByID(ctx, tr.TargetProductID).Return(target, nil).Times(2)
		f.tradeRepo.EXPECT().ListItems(ctx, tr.TradeID).Return(nil, nil)
		f.productRepo.EXPECT().Reserve(ctx, tr.TargetProductID, target.Version, gomock.Any(), tr.TradeID).Return(true, nil)
		f.tradeRepo.EXPECT().
			Update(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, updated *trade.Trade) error {
				assert.Equal(t, trade.StatusActive, updated.Status)
				return nil
			})

		got, err := f.svc.Respond(ctx, tr.TradeID, seller, ActionAccept, nil)
		require.NoError(t, err)
		assert.Equal(t, trade.StatusActive, got.Status)
	})

	t.Run("accept against gone target auto-declines", func(t *testing.T) {
		f := newFixture(t)
		tr := pendingTrade(buyer, seller)
		target := availableProduct(seller)
		target.ProductID = tr.TargetProductID
		target.Status = product.StatusTraded

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.productRepo.EXPECT().GetByID(ctx, tr.TargetProductID).Return(target, nil)
		f.tradeRepo.EXPECT().
			Update(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, updated *trade.Trade) error {
				assert.Equal(t, trade.StatusDeclined, updated.Status)
				return nil
			})

		_, err := f.svc.Respond(ctx, tr.TradeID, seller, ActionAccept, nil)
		assert.ErrorIs(t, err, trade.ErrProductNoLongerAvailable)
	})

	t.Run("accept losing the reservation race auto-declines", func(t *testing.T) {
		f := newFixture(t)
		tr := pendingTrade(buyer, seller)
		target := availableProduct(seller)
		target.ProductID = tr.TargetProductID

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.productRepo.EXPECT().GetByID(ctx, tr.TargetProductID).Return(target, nil).Times(2)
		f.tradeRepo.EXPECT().ListItems(ctx, tr.TradeID).Return(nil, nil)
		f.productRepo.EXPECT().Reserve(ctx, tr.TargetProductID, target.Version, gomock.Any(), tr.TradeID).Return(false, nil)
		f.tradeRepo.EXPECT().
			Update(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, updated *trade.Trade) error {
				assert.Equal(t, trade.StatusDeclined, updated.Status)
				return nil
			})

		_, err := f.svc.Respond(ctx, tr.TradeID, seller, ActionAccept, nil)
		assert.ErrorIs(t, err, trade.ErrProductNoLongerAvailable)
	})

	t.Run("buyer cannot answer a pending proposal", func(t *testing.T) {
		f := newFixture(t)
		tr := pendingTrade(buyer, seller)

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)

		_, err := f.svc.Respond(ctx, tr.TradeID, buyer, ActionAccept, nil)
		assert.ErrorIs(t, err, trade.ErrNotParticipant)
	})

	t.Run("outsider rejected", func(t *testing.T) {
		f := newFixture(t)
		tr := pendingTrade(buyer, seller)

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)

		_, err := f.svc.Respond(ctx, tr.TradeID, uuid.New(), ActionDecline, nil)
		assert.ErrorIs(t, err, trade.ErrNotParticipant)
	})

	t.Run("seller counters with new cash amount", func(t *testing.T) {
		f := newFixture(t)
		tr := pendingTrade(buyer, seller)
		newCash := int64(2000)

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.tradeRepo.EXPECT().
			Update(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, updated *trade.Trade) error {
				assert.Equal(t, trade.StatusCountered, updated.Status)
				require.NotNil(t, updated.CashOfferCents)
				assert.Equal(t, newCash, *updated.CashOfferCents)
				return nil
			})

		got, err := f.svc.Respond(ctx, tr.TradeID, seller, ActionCounter, &CounterInput{CashOfferCents: &newCash})
		require.NoError(t, err)
		assert.Equal(t, trade.StatusCountered, got.Status)
	})

	t.Run("counter replaces the offered item set", func(t *testing.T) {
		f := newFixture(t)
		tr := pendingTrade(buyer, seller)
		replacement := availableProduct(buyer)

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.productRepo.EXPECT().GetByID(ctx, replacement.ProductID).Return(replacement, nil)
		f.tradeRepo.EXPECT().
			ReplaceItems(ctx, tr.TradeID, gomock.Len(1)).
			DoAndReturn(func(_ context.Context, _ uuid.UUID, items []trade.TradeItem) error {
				assert.Equal(t, replacement.ProductID, items[0].ProductID)
				assert.Equal(t, trade.PartyBuyer, items[0].OfferedBy)
				return nil
			})
		f.tradeRepo.EXPECT().Update(ctx, gomock.Any()).Return(nil)

		got, err := f.svc.Respond(ctx, tr.TradeID, seller, ActionCounter, &CounterInput{
			OfferedProductIDs: []uuid.UUID{replacement.ProductID},
		})
		require.NoError(t, err)
		assert.Equal(t, trade.StatusCountered, got.Status)
	})

	t.Run("counter with foreign item rejected", func(t *testing.T) {
		f := newFixture(t)
		tr := pendingTrade(buyer, seller)
		foreign := availableProduct(uuid.New())

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.productRepo.EXPECT().GetByID(ctx, foreign.ProductID).Return(foreign, nil)

		_, err := f.svc.Respond(ctx, tr.TradeID, seller, ActionCounter, &CounterInput{
			OfferedProductIDs: []uuid.UUID{foreign.ProductID},
		})
		assert.Error(t, err)
	})

	t.Run("buyer accepts countered trade", func(t *testing.T) {
		f := newFixture(t)
		tr := pendingTrade(buyer, seller)
		tr.Status = trade.StatusCountered
		target := availableProduct(seller)
		target.ProductID = tr.TargetProductID

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.productRepo.EXPECT().GetByID(ctx, tr.TargetProductID).Return(target, nil).Times(2)
		f.tradeRepo.EXPECT().ListItems(ctx, tr.TradeID).Return(nil, nil)
		f.productRepo.EXPECT().Reserve(ctx, tr.TargetProductID, target.Version, gomock.Any(), tr.TradeID).Return(true, nil)
		f.tradeRepo.EXPECT().Update(ctx, gomock.Any()).Return(nil)

		got, err := f.svc.Respond(ctx, tr.TradeID, buyer, ActionAccept, nil)
		require.NoError(t, err)
		assert.Equal(t, trade.StatusActive, got.Status)
	})
}

func activeTrade(buyer, seller uuid.UUID) *trade.Trade {
	tr := pendingTrade(buyer, seller)
	tr.Status = trade.StatusActive
	return tr
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()

	t.Run("first confirmation does not settle", func(t *testing.T) {
		f := newFixture(t)
		tr := activeTrade(buyer, seller)
		after := *tr
		after.BuyerCompleted = true
		now := time.Now().UTC()
		after.FirstCompletionAt = &now

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.tradeRepo.EXPECT().SetCompleted(ctx, tr.TradeID, trade.PartyBuyer, gomock.Any()).Return(&after, nil)

		got, err := f.svc.Complete(ctx, tr.TradeID, buyer)
		require.NoError(t, err)
		assert.True(t, got.BuyerCompleted)
		assert.False(t, got.SellerCompleted)
	})

	t.Run("second confirmation settles in the same call", func(t *testing.T) {
		f := newFixture(t)
		tr := activeTrade(buyer, seller)
		tr.BuyerCompleted = true
		after := *tr
		after.SellerCompleted = true
		settled := after
		settled.Status = trade.StatusCompleted

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.tradeRepo.EXPECT().SetCompleted(ctx, tr.TradeID, trade.PartySeller, gomock.Any()).Return(&after, nil)
		f.settler.EXPECT().Settle(ctx, tr.TradeID, trade.StatusCompleted).Return(nil)
		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(&settled, nil)

		got, err := f.svc.Complete(ctx, tr.TradeID, seller)
		require.NoError(t, err)
		assert.Equal(t, trade.StatusCompleted, got.Status)
	})

	t.Run("settlement conflict propagates", func(t *testing.T) {
		f := newFixture(t)
		tr := activeTrade(buyer, seller)
		tr.BuyerCompleted = true
		after := *tr
		after.SellerCompleted = true

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.tradeRepo.EXPECT().SetCompleted(ctx, tr.TradeID, trade.PartySeller, gomock.Any()).Return(&after, nil)
		f.settler.EXPECT().Settle(ctx, tr.TradeID, trade.StatusCompleted).Return(trade.ErrSettlementConflict)

		_, err := f.svc.Complete(ctx, tr.TradeID, seller)
		assert.ErrorIs(t, err, trade.ErrSettlementConflict)
	})

	t.Run("duplicate confirmation surfaces sentinel", func(t *testing.T) {
		f := newFixture(t)
		tr := activeTrade(buyer, seller)
		tr.BuyerCompleted = true

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.tradeRepo.EXPECT().SetCompleted(ctx, tr.TradeID, trade.PartyBuyer, gomock.Any()).Return(nil, trade.ErrAlreadyCompleted)

		_, err := f.svc.Complete(ctx, tr.TradeID, buyer)
		assert.ErrorIs(t, err, trade.ErrAlreadyCompleted)
	})

	t.Run("outsider rejected", func(t *testing.T) {
		f := newFixture(t)
		tr := activeTrade(buyer, seller)

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)

		_, err := f.svc.Complete(ctx, tr.TradeID, uuid.New())
		assert.ErrorIs(t, err, trade.ErrNotParticipant)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()

	t.Run("cancel active trade releases holds", func(t *testing.T) {
		f := newFixture(t)
		tr := activeTrade(buyer, seller)
		target := availableProduct(seller)
		target.ProductID = tr.TargetProductID
		target.Status = product.StatusLocked

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.tradeRepo.EXPECT().
			Update(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, updated *trade.Trade) error {
				assert.Equal(t, trade.StatusCancelled, updated.Status)
				return nil
			})
		f.tradeRepo.EXPECT().ListItems(ctx, tr.TradeID).Return(nil, nil)
		f.productRepo.EXPECT().GetByID(ctx, tr.TargetProductID).Return(target, nil)
		f.productRepo.EXPECT().ReleaseReservation(ctx, tr.TargetProductID, target.Version).Return(true, nil)

		got, err := f.svc.Cancel(ctx, tr.TradeID, buyer)
		require.NoError(t, err)
		assert.Equal(t, trade.StatusCancelled, got.Status)
	})

	t.Run("cancel blocked after both confirmations", func(t *testing.T) {
		f := newFixture(t)
		tr := activeTrade(buyer, seller)
		tr.BuyerCompleted = true
		tr.SellerCompleted = true

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)

		_, err := f.svc.Cancel(ctx, tr.TradeID, seller)
		assert.ErrorIs(t, err, trade.ErrInvalidTransition)
	})

	t.Run("cancel pending trade skips release", func(t *testing.T) {
		f := newFixture(t)
		tr := pendingTrade(buyer, seller)

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.tradeRepo.EXPECT().Update(ctx, gomock.Any()).Return(nil)

		got, err := f.svc.Cancel(ctx, tr.TradeID, buyer)
		require.NoError(t, err)
		assert.Equal(t, trade.StatusCancelled, got.Status)
	})
}

func TestOptionChangeFlow(t *testing.T) {
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()
	addr := "7 Pine Ave"

	t.Run("request then approve", func(t *testing.T) {
		f := newFixture(t)
		tr := activeTrade(buyer, seller)

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)
		f.tradeRepo.EXPECT().Update(ctx, gomock.Any()).Return(nil)

		got, err := f.svc.RequestOptionChange(ctx, tr.TradeID, buyer, trade.OptionDelivery, &addr)
		require.NoError(t, err)
		require.NotNil(t, got.OptionChangeRequested)

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(got, nil)
		f.tradeRepo.EXPECT().Update(ctx, gomock.Any()).Return(nil)

		resolved, err := f.svc.ResolveOptionChange(ctx, tr.TradeID, seller, true)
		require.NoError(t, err)
		assert.Equal(t, trade.OptionDelivery, resolved.TradeOption)
		assert.Nil(t, resolved.OptionChangeRequested)
	})

	t.Run("requester cannot resolve", func(t *testing.T) {
		f := newFixture(t)
		tr := activeTrade(buyer, seller)
		opt := trade.OptionDelivery
		tr.OptionChangeRequested = &opt
		tr.OptionChangeRequestedBy = &buyer

		f.tradeRepo.EXPECT().GetByID(ctx, tr.TradeID).Return(tr, nil)

		_, err := f.svc.ResolveOptionChange(ctx, tr.TradeID, buyer, true)
		assert.ErrorIs(t, err, trade.ErrNotParticipant)
	})
}
