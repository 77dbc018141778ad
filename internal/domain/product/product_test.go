package product

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProduct(t *testing.T) {
	owner := uuid.New()
	p := NewProduct(owner, "vintage camera")

	assert.NotEqual(t, uuid.Nil, p.ProductID)
	assert.Equal(t, owner, p.OwnerID)
	assert.Equal(t, StatusAvailable, p.Status)
	assert.Equal(t, 1, p.Version)
	assert.True(t, p.IsAvailable())
	assert.False(t, p.IsTerminal())
}

func TestIsReserved(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		until    *time.Time
		reserved bool
	}{
		{"no reservation", nil, false},
		{"future expiry", timePtr(now.Add(time.Hour)), true},
		{"past expiry", timePtr(now.Add(-time.Minute)), false},
		{"expiry at exactly now", timePtr(now), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProduct(uuid.New(), "bike")
			p.ReservedUntil = tt.until
			assert.Equal(t, tt.reserved, p.IsReserved(now))
		})
	}
}

func TestIsHeldBy(t *testing.T) {
	holder := uuid.New()
	p := NewProduct(uuid.New(), "bike")

	assert.False(t, p.IsHeldBy(holder))

	p.Status = StatusLocked
	p.ReservedBy = &holder
	assert.True(t, p.IsHeldBy(holder))
	assert.False(t, p.IsHeldBy(uuid.New()))
}

func TestAvailabilityView(t *testing.T) {
	p := NewProduct(uuid.New(), "guitar")
	p.Version = 4

	av := p.Availability()
	require.Equal(t, StatusAvailable, av.Status)
	assert.Equal(t, 4, av.Version)
	assert.Nil(t, av.ReservedUntil)
}

func timePtr(ts time.Time) *time.Time { return &ts }
