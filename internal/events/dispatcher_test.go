package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var got []Event
	d.Subscribe(EventTicketCreated, func(ctx context.Context, event Event) error {
		got = append(got, event)
		return nil
	})
	d.Subscribe(EventTicketCreated, func(ctx context.Context, event Event) error {
		got = append(got, event)
		return nil
	})

	err := d.Publish(context.Background(), Event{ID: "e1", Type: EventTicketCreated, TicketID: "t1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].TicketID)
}

func TestDispatcherIgnoresOtherTypes(t *testing.T) {
	d := NewInMemoryDispatcher()

	called := false
	d.Subscribe(EventTicketAssigned, func(ctx context.Context, event Event) error {
		called = true
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
	assert.False(t, called)
}

func TestDispatcherHandlerErrorDoesNotStopDelivery(t *testing.T) {
	d := NewInMemoryDispatcher()

	var secondCalled bool
	d.Subscribe(EventTicketSLABreach, func(ctx context.Context, event Event) error {
		return errors.New("handler failed")
	})
	d.Subscribe(EventTicketSLABreach, func(ctx context.Context, event Event) error {
		secondCalled = true
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketSLABreach}))
	assert.True(t, secondCalled)
}
