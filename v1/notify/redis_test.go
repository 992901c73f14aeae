package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newRedisBus(t *testing.T) (*RedisBus, context.Context) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := NewRedisBus(client)
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return bus, context.Background()
}

func TestRedisBusPublishSubscribeFlowAndMetrics(t *testing.T) {
	bus, ctx := newRedisBus(t)

	ch, err := bus.Subscribe(ctx, "res")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ev := Event{Key: "res", Token: "tok", Reason: ReasonExpired}
	if err := bus.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-ch:
		if got != ev {
			t.Fatalf("event mismatch: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	m := bus.Metrics()
	if m.Published != 1 {
		t.Fatalf("expected published 1 got %d", m.Published)
	}
	if m.Delivered != 1 {
		t.Fatalf("expected delivered 1 got %d", m.Delivered)
	}
}

func TestRedisBusFanOutToMultipleSubscribers(t *testing.T) {
	bus, ctx := newRedisBus(t)

	ch1, _ := bus.Subscribe(ctx, "res")
	ch2, _ := bus.Subscribe(ctx, "res")
	_ = bus.Publish(ctx, Event{Key: "res", Token: "tok", Reason: ReasonExpired})

	for i, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestRedisBusUnsubscribe(t *testing.T) {
	bus, ctx := newRedisBus(t)

	ch, _ := bus.Subscribe(ctx, "res")
	if err := bus.Unsubscribe(ctx, "res", ch); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}
}
