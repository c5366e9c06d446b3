package player

import (
	"testing"
	"time"
)

func TestDispatcherDeliversToAllSubscribers(t *testing.T) {
	d := NewDispatcher()
	a := d.Subscribe()
	b := d.Subscribe()
	defer d.Unsubscribe(a)
	defer d.Unsubscribe(b)

	d.Publish(Underrun{Wanted: 10, Got: 4})

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.C:
			u, ok := ev.(Underrun)
			if !ok || u.Wanted != 10 || u.Got != 4 {
				t.Errorf("event = %#v, want Underrun{10 4}", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

// Publish must never block on a slow subscriber; overflow is counted and
// dropped.
func TestDispatcherDropsWhenSubscriberFull(t *testing.T) {
	d := NewDispatcher()
	sub := d.Subscribe()
	defer d.Unsubscribe(sub)

	total := eventBufferSize + 5
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			d.Publish(TimeUpdate{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if got := sub.Dropped(); got != 5 {
		t.Errorf("Dropped() = %d, want 5", got)
	}
	if got := len(sub.C); got != eventBufferSize {
		t.Errorf("buffered events = %d, want %d", got, eventBufferSize)
	}
}

func TestUnsubscribeSignalsDone(t *testing.T) {
	d := NewDispatcher()
	sub := d.Subscribe()

	d.Unsubscribe(sub)

	select {
	case <-sub.Done():
	default:
		t.Error("Done not signalled after Unsubscribe")
	}
	if got := d.Subscribers(); got != 0 {
		t.Errorf("Subscribers() = %d, want 0", got)
	}

	// Publishing after unsubscribe must not reach the old channel.
	d.Publish(TimeUpdate{})
	if got := len(sub.C); got != 0 {
		t.Errorf("unsubscribed channel received %d events", got)
	}
}

func TestCloseCancelsEverything(t *testing.T) {
	d := NewDispatcher()
	sub := d.Subscribe()

	d.Close()

	select {
	case <-sub.Done():
	default:
		t.Error("Done not signalled after Close")
	}

	late := d.Subscribe()
	select {
	case <-late.Done():
	default:
		t.Error("subscription to a closed dispatcher is not done")
	}
}
