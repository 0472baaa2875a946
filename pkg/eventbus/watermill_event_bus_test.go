package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drishiq/ddsa/pkg/channels/gochannel"
	"github.com/drishiq/ddsa/pkg/eventbus"
	"github.com/drishiq/ddsa/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		require.NoError(t, bus.Close())
	})

	return bus
}

func TestWatermillEventBus_DeliversTypedEvents(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.StageExecutionFailed, 1)

	err := bus.Handle(events.StageExecutionFailedEvent, func(_ context.Context, event interface{}) error {
		failed, ok := event.(*events.StageExecutionFailed)
		if ok {
			received <- failed
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(t.Context()))

	failedEvent := events.StageExecutionFailed{
		BaseEvent: events.BaseEvent{
			ID:        bus.GenerateID(),
			Type:      events.StageExecutionFailedEvent,
			Timestamp: time.Now().UTC(),
			ThreadID:  "T1",
		},
		StageID:    "greeting",
		Error:      "generation timed out",
		RetryCount: 3,
	}
	require.NoError(t, bus.Publish(t.Context(), "T1", failedEvent))

	select {
	case got := <-received:
		assert.Equal(t, "T1", got.ThreadID)
		assert.Equal(t, "greeting", got.StageID)
		assert.Equal(t, 3, got.RetryCount)
		assert.Equal(t, "generation timed out", got.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("failed event was not delivered")
	}
}

func TestWatermillEventBus_IgnoresUnhandledTypes(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.SessionReset, 1)

	err := bus.Handle(events.SessionResetEvent, func(_ context.Context, event interface{}) error {
		reset, ok := event.(*events.SessionReset)
		if ok {
			received <- reset
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(t.Context()))

	// no handler is registered for turn.received, it is acked and dropped
	turn := events.TurnReceived{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.TurnReceivedEvent, ThreadID: "T1"},
		UserID:    "U1",
		Message:   "hello",
	}
	require.NoError(t, bus.Publish(t.Context(), "T1", turn))

	reset := events.SessionReset{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.SessionResetEvent, ThreadID: "T1"},
	}
	require.NoError(t, bus.Publish(t.Context(), "T1", reset))

	select {
	case got := <-received:
		assert.Equal(t, "T1", got.ThreadID)
	case <-time.After(2 * time.Second):
		t.Fatal("reset event was not delivered")
	}
}
