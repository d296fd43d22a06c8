package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"gwi.com/chatsync/internal/store"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_DeliversInPublishOrder(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	go func() {
		bus.Publish(Event{Type: TypeSendState, Sending: true})
		bus.Publish(Event{Type: TypeMessageAppended, SessionID: "a", Message: &store.Message{Role: store.RoleAssistant, Content: "hi", Kind: store.KindReply}})
		bus.Publish(Event{Type: TypeSendState, Sending: false})
	}()

	first := receive(t, ch)
	require.Equal(t, TypeSendState, first.Type)
	require.True(t, first.Sending)

	second := receive(t, ch)
	require.Equal(t, TypeMessageAppended, second.Type)
	require.Equal(t, "a", second.SessionID)
	require.NotNil(t, second.Message)
	require.Equal(t, "hi", second.Message.Content)

	third := receive(t, ch)
	require.Equal(t, TypeSendState, third.Type)
	require.False(t, third.Sending)
}

func TestBus_PublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	t.Cleanup(func() { _ = bus.Close() })

	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Type: TypeUploadStatus, Upload: &store.UploadStatus{State: store.UploadIdle}})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked without subscribers")
	}
}

func TestBus_SubscriptionClosesWithContext(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
}
