package events

import (
	"strings"
	"testing"
	"time"
)

func TestBroadcastReachesAllClients(t *testing.T) {
	b := NewBroker()
	a := make(chan string, 10)
	c := make(chan string, 10)
	b.Register(a)
	b.Register(c)

	b.Broadcast("run_started", map[string]interface{}{"run_id": 1})

	for _, ch := range []chan string{a, c} {
		select {
		case msg := <-ch:
			if !strings.Contains(msg, "event: run_started") {
				t.Errorf("expected event type in message, got %q", msg)
			}
			if !strings.Contains(msg, `"run_id":1`) {
				t.Errorf("expected payload in message, got %q", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	b := NewBroker()
	ch := make(chan string, 1)
	b.Register(ch)
	b.Unregister(ch)

	if _, open := <-ch; open {
		t.Error("expected the client channel closed")
	}

	// Must not panic after removal
	b.Broadcast("run_finished", nil)
}

func TestBroadcastOnNilBroker(t *testing.T) {
	var b *Broker
	// Safe no-op for components constructed without a broker
	b.Broadcast("noop", nil)
}

func TestBroadcastSkipsFullClients(t *testing.T) {
	b := NewBroker()
	full := make(chan string) // unbuffered, never read
	b.Register(full)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			b.Broadcast("tick", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a full client")
	}
}
