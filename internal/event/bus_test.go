package event

import (
	"testing"
	"time"

	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/mylogger"
)

func TestBus_PublishSpecificThenWildcard(t *testing.T) {
	bus := NewBus(mylogger.Nop())

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "all") })
	bus.Subscribe(TypeConnectionLost, func(e Event) { order = append(order, "specific") })

	bus.Publish(NewConnectionLost(time.Unix(0, 0), 5, "dial failed"))

	if len(order) != 2 || order[0] != "specific" || order[1] != "all" {
		t.Errorf("order = %v, want [specific all]", order)
	}
}

func TestBus_NoMatchingHandler(t *testing.T) {
	bus := NewBus(mylogger.Nop())
	bus.Subscribe(TypeTripCreated, func(e Event) {
		t.Error("handler should not be called for another type")
	})
	bus.Publish(NewSessionStateChanged(time.Unix(0, 0), "d-1", true))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(mylogger.Nop())
	calls := 0
	id := bus.Subscribe(TypeRouteUpdated, func(e Event) { calls++ })

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe should find the subscription")
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe should report false")
	}
	bus.Publish(NewRouteUpdated(time.Unix(0, 0), "o-1", routeFixture()))
	if calls != 0 {
		t.Errorf("calls = %d after unsubscribe", calls)
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("subscription count = %d", bus.SubscriptionCount())
	}
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(mylogger.Nop())
	reached := false
	bus.Subscribe(TypeOfferReassign, func(e Event) { panic("boom") })
	bus.Subscribe(TypeOfferReassign, func(e Event) { reached = true })

	bus.Publish(NewOfferReassign(time.Unix(0, 0), "o-1", "taken"))

	if !reached {
		t.Error("second handler should still run after the first panicked")
	}
}

func routeFixture() model.RouteInfo {
	return model.RouteInfo{PickupDistanceM: 1200, DeliveryDistanceM: 3400, TotalDistanceM: 4600}
}
