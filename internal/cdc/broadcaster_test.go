package cdc

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBroadcaster_PerTableFanOut(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())

	customers, cancelCustomers := b.Subscribe("customer")
	defer cancelCustomers()
	orders, cancelOrders := b.Subscribe("orders")
	defer cancelOrders()

	b.Publish(Event{Table: "customer", Operation: OpInsert, LSN: "0/1"})

	select {
	case ev := <-customers:
		if ev.Operation != OpInsert || ev.LSN != "0/1" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("customer subscriber did not receive event")
	}

	select {
	case ev := <-orders:
		t.Fatalf("orders subscriber received foreign event: %+v", ev)
	default:
	}
}

func TestBroadcaster_EventsArriveInOrder(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())

	ch, cancel := b.Subscribe("customer")
	defer cancel()

	for i := 1; i <= 5; i++ {
		b.Publish(Event{Table: "customer", Operation: OpInsert, LSN: lsnString(i)})
	}

	for i := 1; i <= 5; i++ {
		select {
		case ev := <-ch:
			if ev.LSN != lsnString(i) {
				t.Fatalf("out of order: got %s, want %s", ev.LSN, lsnString(i))
			}
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
}

func lsnString(i int) string {
	return "0/" + string(rune('0'+i))
}

func TestBroadcaster_SlowSubscriberDropsWithErrorEvent(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	b.bufferSize = 2

	ch, cancel := b.Subscribe("customer")
	defer cancel()

	// publisher must never block even when the buffer overflows
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Table: "customer", Operation: OpInsert})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// drain the buffer, then one more publish should surface the drop notice
	<-ch
	<-ch
	b.Publish(Event{Table: "customer", Operation: OpInsert})

	select {
	case ev := <-ch:
		if ev.Operation != OpError {
			t.Errorf("expected ERROR drop notice first, got %s", ev.Operation)
		}
	case <-time.After(time.Second):
		t.Fatal("expected drop notice")
	}
}

func TestBroadcaster_PublishAllStampsTable(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())

	ch, cancel := b.Subscribe("customer")
	defer cancel()

	b.PublishAll(Event{Operation: OpHeartbeat})

	select {
	case ev := <-ch:
		if ev.Operation != OpHeartbeat {
			t.Errorf("expected heartbeat, got %s", ev.Operation)
		}
		if ev.Table != "customer" {
			t.Errorf("heartbeat should carry the subscriber's table, got %q", ev.Table)
		}
	case <-time.After(time.Second):
		t.Fatal("heartbeat not delivered")
	}
}

func TestBroadcaster_CancelClosesChannel(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())

	ch, cancel := b.Subscribe("customer")
	cancel()
	cancel() // second cancel is a no-op

	if _, open := <-ch; open {
		t.Error("expected channel closed after cancel")
	}
	if b.SubscriberCount("customer") != 0 {
		t.Error("expected subscriber removed")
	}

	// publishing after cancel must not panic
	b.Publish(Event{Table: "customer", Operation: OpInsert})
}
