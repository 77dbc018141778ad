package trade

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTrade(status Status) *Trade {
	t := NewTrade(uuid.New(), uuid.New(), uuid.New(), nil, OptionMeetup, nil, "")
	t.Status = status
	return t
}

func TestNewTrade(t *testing.T) {
	buyer := uuid.New()
	seller := uuid.New()
	target := uuid.New()
	cash := int64(2500)

	tr := NewTrade(buyer, seller, target, &cash, OptionDelivery, strPtr("12 Main St"), "interested?")

	assert.NotEqual(t, uuid.Nil, tr.TradeID)
	assert.Equal(t, StatusPending, tr.Status)
	assert.Equal(t, buyer, tr.BuyerID)
	assert.Equal(t, seller, tr.SellerID)
	assert.Equal(t, target, tr.TargetProductID)
	require.NotNil(t, tr.CashOfferCents)
	assert.Equal(t, int64(2500), *tr.CashOfferCents)
	assert.Equal(t, OptionDelivery, tr.TradeOption)
	assert.False(t, tr.BuyerCompleted)
	assert.False(t, tr.SellerCompleted)
	assert.Nil(t, tr.FirstCompletionAt)
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"pending to accepted", StatusPending, StatusAccepted, true},
		{"pending to declined", StatusPending, StatusDeclined, true},
		{"pending to countered", StatusPending, StatusCountered, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to active", StatusPending, StatusActive, false},
		{"pending to completed", StatusPending, StatusCompleted, false},
		{"accepted to active", StatusAccepted, StatusActive, true},
		{"accepted to cancelled", StatusAccepted, StatusCancelled, true},
		{"accepted to completed", StatusAccepted, StatusCompleted, false},
		{"countered to pending", StatusCountered, StatusPending, true},
		{"countered to accepted", StatusCountered, StatusAccepted, true},
		{"countered to active", StatusCountered, StatusActive, false},
		{"active to awaiting confirmation", StatusActive, StatusAwaitingConfirmation, true},
		{"active to completed", StatusActive, StatusCompleted, true},
		{"active to auto completed", StatusActive, StatusAutoCompleted, true},
		{"active to cancelled", StatusActive, StatusCancelled, true},
		{"active to pending", StatusActive, StatusPending, false},
		{"awaiting confirmation to completed", StatusAwaitingConfirmation, StatusCompleted, true},
		{"awaiting confirmation to auto completed", StatusAwaitingConfirmation, StatusAutoCompleted, true},
		{"awaiting confirmation to cancelled", StatusAwaitingConfirmation, StatusCancelled, false},
		{"completed is terminal", StatusCompleted, StatusCancelled, false},
		{"declined is terminal", StatusDeclined, StatusPending, false},
		{"cancelled is terminal", StatusCancelled, StatusPending, false},
		{"auto completed is terminal", StatusAutoCompleted, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTrade(tt.from)
			assert.Equal(t, tt.allowed, tr.CanTransitionTo(tt.to))
		})
	}
}

func TestAcceptDeclineCancel(t *testing.T) {
	t.Run("accept pending trade", func(t *testing.T) {
		tr := newTestTrade(StatusPending)
		require.NoError(t, tr.Accept())
		assert.Equal(t, StatusAccepted, tr.Status)
	})

	t.Run("accept active trade fails", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		assert.ErrorIs(t, tr.Accept(), ErrInvalidTransition)
	})

	t.Run("decline countered trade", func(t *testing.T) {
		tr := newTestTrade(StatusCountered)
		require.NoError(t, tr.Decline())
		assert.Equal(t, StatusDeclined, tr.Status)
	})

	t.Run("cancel active trade", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		require.NoError(t, tr.Cancel())
		assert.Equal(t, StatusCancelled, tr.Status)
	})

	t.Run("cancel blocked after both confirmations", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		tr.BuyerCompleted = true
		tr.SellerCompleted = true
		assert.ErrorIs(t, tr.Cancel(), ErrInvalidTransition)
	})

	t.Run("cancel awaiting confirmation fails", func(t *testing.T) {
		tr := newTestTrade(StatusAwaitingConfirmation)
		tr.BuyerCompleted = true
		assert.ErrorIs(t, tr.Cancel(), ErrInvalidTransition)
	})
}

func TestCounter(t *testing.T) {
	t.Run("seller counters pending", func(t *testing.T) {
		tr := newTestTrade(StatusPending)
		require.NoError(t, tr.Counter())
		assert.Equal(t, StatusCountered, tr.Status)
	})

	t.Run("buyer re-proposes countered", func(t *testing.T) {
		tr := newTestTrade(StatusCountered)
		require.NoError(t, tr.Counter())
		assert.Equal(t, StatusPending, tr.Status)
	})

	t.Run("counter active fails", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		assert.ErrorIs(t, tr.Counter(), ErrInvalidTransition)
	})
}

func TestMarkCompleted(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("first confirmation records timestamp", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		both, err := tr.MarkCompleted(PartyBuyer, now)
		require.NoError(t, err)
		assert.False(t, both)
		assert.True(t, tr.BuyerCompleted)
		require.NotNil(t, tr.FirstCompletionAt)
		assert.Equal(t, now, *tr.FirstCompletionAt)
	})

	t.Run("second confirmation keeps first timestamp", func(t *testing.T) {
		tr := newTestTrade(StatusAwaitingConfirmation)
		later := now.Add(3 * time.Hour)
		_, err := tr.MarkCompleted(PartyBuyer, now)
		require.NoError(t, err)
		both, err := tr.MarkCompleted(PartySeller, later)
		require.NoError(t, err)
		assert.True(t, both)
		assert.Equal(t, now, *tr.FirstCompletionAt)
	})

	t.Run("duplicate confirmation rejected", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		_, err := tr.MarkCompleted(PartySeller, now)
		require.NoError(t, err)
		_, err = tr.MarkCompleted(PartySeller, now)
		assert.ErrorIs(t, err, ErrAlreadyCompleted)
	})

	t.Run("confirmation on pending trade rejected", func(t *testing.T) {
		tr := newTestTrade(StatusPending)
		_, err := tr.MarkCompleted(PartyBuyer, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestOptionChange(t *testing.T) {
	t.Run("request and approve", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		addr := strPtr("7 Pine Ave")
		require.NoError(t, tr.RequestOptionChange(tr.BuyerID, OptionDelivery, addr))
		require.NotNil(t, tr.OptionChangeRequested)

		require.NoError(t, tr.ApproveOptionChange(tr.SellerID))
		assert.Equal(t, OptionDelivery, tr.TradeOption)
		require.NotNil(t, tr.DeliveryAddress)
		assert.Equal(t, "7 Pine Ave", *tr.DeliveryAddress)
		assert.Nil(t, tr.OptionChangeRequested)
	})

	t.Run("request and reject keeps option", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		require.NoError(t, tr.RequestOptionChange(tr.SellerID, OptionDelivery, strPtr("7 Pine Ave")))
		require.NoError(t, tr.RejectOptionChange(tr.BuyerID))
		assert.Equal(t, OptionMeetup, tr.TradeOption)
		assert.Nil(t, tr.OptionChangeRequested)
	})

	t.Run("requester cannot approve own request", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		require.NoError(t, tr.RequestOptionChange(tr.BuyerID, OptionDelivery, nil))
		assert.ErrorIs(t, tr.ApproveOptionChange(tr.BuyerID), ErrNotParticipant)
	})

	t.Run("second request while pending rejected", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		require.NoError(t, tr.RequestOptionChange(tr.BuyerID, OptionDelivery, nil))
		assert.ErrorIs(t, tr.RequestOptionChange(tr.SellerID, OptionMeetup, nil), ErrOptionChangePending)
	})

	t.Run("request on pending trade rejected", func(t *testing.T) {
		tr := newTestTrade(StatusPending)
		assert.ErrorIs(t, tr.RequestOptionChange(tr.BuyerID, OptionDelivery, nil), ErrInvalidTransition)
	})

	t.Run("approve with nothing pending", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		assert.ErrorIs(t, tr.ApproveOptionChange(tr.SellerID), ErrNoOptionChange)
	})

	t.Run("outsider cannot request", func(t *testing.T) {
		tr := newTestTrade(StatusActive)
		assert.ErrorIs(t, tr.RequestOptionChange(uuid.New(), OptionDelivery, nil), ErrNotParticipant)
	})
}

func TestParticipants(t *testing.T) {
	tr := newTestTrade(StatusPending)

	p, ok := tr.PartyOf(tr.BuyerID)
	require.True(t, ok)
	assert.Equal(t, PartyBuyer, p)

	p, ok = tr.PartyOf(tr.SellerID)
	require.True(t, ok)
	assert.Equal(t, PartySeller, p)

	_, ok = tr.PartyOf(uuid.New())
	assert.False(t, ok)

	assert.Equal(t, tr.SellerID, tr.Counterparty(tr.BuyerID))
	assert.Equal(t, tr.BuyerID, tr.Counterparty(tr.SellerID))
}

func strPtr(s string) *string { return &s }
