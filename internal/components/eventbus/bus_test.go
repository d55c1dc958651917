package eventbus_test

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/platform/metrics"
)

const topic = eventbus.TopicFollowChanged

func TestPublish_RegistrationOrder(t *testing.T) {
	bus := eventbus.New(nil)
	var got []int

	for i := range 3 {
		bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) {
			got = append(got, i)
		})
	}
	bus.Publish(context.Background(), topic, nil)

	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("expected delivery in registration order, got %v", got)
	}
}

func TestPublish_OnlyMatchingTopic(t *testing.T) {
	bus := eventbus.New(nil)
	calls := 0
	bus.Subscribe(eventbus.TopicUnreadChanged, func(ctx context.Context, ev eventbus.Event) { calls++ })

	bus.Publish(context.Background(), topic, nil)
	if calls != 0 {
		t.Errorf("handler for another topic was called %d times", calls)
	}
}

func TestSubscribeDuringDispatch_DoesNotSeeEvent(t *testing.T) {
	bus := eventbus.New(nil)
	late := 0

	bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) {
		bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) { late++ })
	})

	bus.Publish(context.Background(), topic, nil)
	if late != 0 {
		t.Errorf("handler registered during dispatch saw the event")
	}

	bus.Publish(context.Background(), topic, nil)
	if late != 1 {
		t.Errorf("expected late handler to see the next event once, got %d", late)
	}
}

func TestUnsubscribeInsideHandler(t *testing.T) {
	bus := eventbus.New(nil)
	var order []string

	var self *eventbus.Subscription
	self = bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) {
		order = append(order, "self")
		self.Unsubscribe()
		self.Unsubscribe()
	})
	bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) {
		order = append(order, "other")
	})

	bus.Publish(context.Background(), topic, nil)
	bus.Publish(context.Background(), topic, nil)

	want := []string{"self", "other", "other"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
	if n := bus.SubscriberCount(topic); n != 1 {
		t.Errorf("expected 1 subscriber left, got %d", n)
	}
}

func TestUnsubscribeLaterHandlerDuringDispatch(t *testing.T) {
	bus := eventbus.New(nil)
	var second *eventbus.Subscription
	thirdCalls, secondCalls := 0, 0

	bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) {
		second.Unsubscribe()
	})
	second = bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) { secondCalls++ })
	bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) { thirdCalls++ })

	bus.Publish(context.Background(), topic, nil)

	if secondCalls != 0 {
		t.Error("handler unsubscribed before its turn should be skipped")
	}
	if thirdCalls != 1 {
		t.Errorf("still-registered handler should be delivered once, got %d", thirdCalls)
	}
}

func TestPanickingHandlerDoesNotBreakDelivery(t *testing.T) {
	m := metrics.New()
	bus := eventbus.New(nil, eventbus.WithMetrics(m))
	delivered := false

	bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) { panic("view crashed") })
	bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) { delivered = true })

	bus.Publish(context.Background(), topic, nil)

	if !delivered {
		t.Error("handler after a panicking one was not called")
	}
	if n, err := testutil.GatherAndCount(m.Registry(), "artfolio_eventbus_handler_panics_total"); err != nil || n != 1 {
		t.Errorf("expected one panic series, got %d (err %v)", n, err)
	}
}

type payload struct{ UserID string }

func TestOn_TypedDetail(t *testing.T) {
	bus := eventbus.New(nil)
	var got []string

	eventbus.On(bus, eventbus.TopicUnreadChanged, func(ctx context.Context, p payload) {
		got = append(got, p.UserID)
	})

	bus.Publish(context.Background(), eventbus.TopicUnreadChanged, payload{UserID: "u1"})
	bus.Publish(context.Background(), eventbus.TopicUnreadChanged, "not a payload")

	if len(got) != 1 || got[0] != "u1" {
		t.Errorf("expected only the typed detail, got %v", got)
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := eventbus.New(nil)
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) {})
			sub.Unsubscribe()
		}()
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), topic, nil)
		}()
	}
	wg.Wait()

	if n := bus.SubscriberCount(topic); n != 0 {
		t.Errorf("expected all subscriptions released, got %d", n)
	}
}

func TestParseTopic(t *testing.T) {
	if tp, ok := eventbus.ParseTopic("request:statusChanged"); !ok || tp != eventbus.TopicRequestStatusChanged {
		t.Errorf("ParseTopic failed: %v %v", tp, ok)
	}
	if _, ok := eventbus.ParseTopic("request:deleted"); ok {
		t.Error("unknown topic accepted")
	}
}
