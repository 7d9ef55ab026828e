package notify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/littlebearapps/adops-intel/internal/notify"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := notify.New()
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(notify.Event{Type: notify.EventAnomalyDetected, Payload: "x"})

	select {
	case ev := <-a:
		require.Equal(t, notify.EventAnomalyDetected, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber a")
	}
	select {
	case ev := <-b:
		require.Equal(t, notify.EventAnomalyDetected, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber b")
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := notify.New()
	ch := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(notify.Event{Type: notify.EventApprovalRequested, Payload: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	require.NotEmpty(t, ch)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := notify.New()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	bus.Publish(notify.Event{Type: notify.EventApprovalDecided})
	_, ok := <-ch
	require.False(t, ok)
}
