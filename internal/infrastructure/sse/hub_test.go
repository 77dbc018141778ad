package sse

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barterhub/barterhub/internal/domain/notification"
)

func TestHubRegisterAndBroadcastToUser(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()
	client := notification.NewSSEClient("c1", userID)
	other := notification.NewSSEClient("c2", uuid.New())
	hub.Register(client)
	hub.Register(other)

	msg := notification.NewSSEMessage("TRADE_ACCEPTED", []byte(`{}`))
	hub.BroadcastToUser(userID, msg)

	select {
	case got := <-client.MessageChan:
		assert.Equal(t, msg, got)
	default:
		t.Fatal("expected a message for the target user")
	}
	select {
	case <-other.MessageChan:
		t.Fatal("message leaked to another user")
	default:
	}
}

func TestHubSendToClient(t *testing.T) {
	hub := NewHub()
	client := notification.NewSSEClient("c1", uuid.New())
	hub.Register(client)

	msg := notification.NewSSEMessage("TRADE_PROPOSED", []byte(`{}`))
	require.NoError(t, hub.SendToClient("c1", msg))
	assert.ErrorIs(t, hub.SendToClient("missing", msg), notification.ErrClientNotFound)
}

func TestHubUnregisterClosesClient(t *testing.T) {
	hub := NewHub()
	client := notification.NewSSEClient("c1", uuid.New())
	hub.Register(client)
	require.Equal(t, 1, hub.GetClientCount())

	hub.Unregister("c1")
	assert.Equal(t, 0, hub.GetClientCount())
	_, open := <-client.MessageChan
	assert.False(t, open)
}

func TestHubStartStopsOnContextCancel(t *testing.T) {
	hub := NewHub()
	client := notification.NewSSEClient("c1", uuid.New())
	hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after cancellation")
	}
	assert.Equal(t, 0, hub.GetClientCount())
	_, open := <-client.MessageChan
	assert.False(t, open)
}
