package services

import (
	"context"
	"testing"
	"time"

	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/event"
	"driver-agent/internal/mylogger"
)

func newTestRouteMetrics(routing *fakeRouting) (*RouteMetrics, *collector) {
	bus := event.NewBus(mylogger.Nop())
	events := collect(bus)
	return NewRouteMetrics(routing, newTestClock(), bus, mylogger.Nop(), time.Second), events
}

func TestRouteMetrics_ComputeSumsLegs(t *testing.T) {
	m, _ := newTestRouteMetrics(newFakeRouting())

	info := m.Compute(context.Background(), driverCoord, restaurantCoord, customerCoord)
	want := model.RouteInfo{
		PickupDistanceM:   1200,
		PickupDurationS:   180,
		DeliveryDistanceM: 3400,
		DeliveryDurationS: 540,
		TotalDistanceM:    4600,
		TotalDurationS:    720,
	}
	if info != want {
		t.Errorf("info = %+v, want %+v", info, want)
	}
}

func TestRouteMetrics_FailedLegCountsAsZero(t *testing.T) {
	tests := []struct {
		name       string
		pickupOK   bool
		deliveryOK bool
		want       model.RouteInfo
	}{
		{
			name:       "delivery leg fails",
			pickupOK:   true,
			deliveryOK: false,
			want:       model.RouteInfo{PickupDistanceM: 1200, PickupDurationS: 180, TotalDistanceM: 1200, TotalDurationS: 180, Degraded: true},
		},
		{
			name:       "pickup leg fails",
			pickupOK:   false,
			deliveryOK: true,
			want:       model.RouteInfo{DeliveryDistanceM: 3400, DeliveryDurationS: 540, TotalDistanceM: 3400, TotalDurationS: 540, Degraded: true},
		},
		{
			name: "both legs fail",
			want: model.RouteInfo{Degraded: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routing := newFakeRouting()
			routing.pickupOK = tt.pickupOK
			routing.deliveryOK = tt.deliveryOK
			m, _ := newTestRouteMetrics(routing)

			info := m.Compute(context.Background(), driverCoord, restaurantCoord, customerCoord)
			if info != tt.want {
				t.Errorf("info = %+v, want %+v", info, tt.want)
			}
		})
	}
}

func TestRouteMetrics_UpdateDebounces(t *testing.T) {
	routing := newFakeRouting()
	m, events := newTestRouteMetrics(routing)
	ctx := context.Background()

	if _, fetched := m.Update(ctx, "order-1", driverCoord, restaurantCoord, customerCoord); !fetched {
		t.Fatal("first update should fetch")
	}
	jitter := model.Coord{Latitude: driverCoord.Latitude + 0.000001, Longitude: driverCoord.Longitude}
	if _, fetched := m.Update(ctx, "order-1", jitter, restaurantCoord, customerCoord); fetched {
		t.Error("sub-precision jitter should not refetch")
	}
	moved := model.Coord{Latitude: driverCoord.Latitude + 0.01, Longitude: driverCoord.Longitude}
	if _, fetched := m.Update(ctx, "order-1", moved, restaurantCoord, customerCoord); !fetched {
		t.Error("a real move should refetch")
	}
	if _, fetched := m.Update(ctx, "order-2", moved, restaurantCoord, customerCoord); !fetched {
		t.Error("a new order should refetch")
	}

	if m.Fetches() != 3 || routing.Calls() != 6 {
		t.Errorf("fetches = %d routing calls = %d, want 3 and 6", m.Fetches(), routing.Calls())
	}
	if n := len(events.ofType(event.TypeRouteUpdated)); n != 3 {
		t.Errorf("RouteUpdated events = %d, want 3", n)
	}
	if _, ok := m.Current("order-1"); ok {
		t.Error("Current should only answer for the latest order")
	}
	if info, ok := m.Current("order-2"); !ok || info.TotalDistanceM != 4600 {
		t.Errorf("Current(order-2) = %+v, %v", info, ok)
	}

	m.Reset()
	if _, ok := m.Current("order-2"); ok {
		t.Error("Reset should drop the cached route")
	}
}

func TestRouteMetrics_ConcurrentUpdatesShareOneFetch(t *testing.T) {
	routing := newFakeRouting()
	gate := make(chan struct{})
	routing.gate = gate
	m, events := newTestRouteMetrics(routing)
	ctx := context.Background()

	type result struct {
		info    model.RouteInfo
		fetched bool
	}
	results := make(chan result, 2)
	update := func() {
		info, fetched := m.Update(ctx, "order-1", driverCoord, restaurantCoord, customerCoord)
		results <- result{info, fetched}
	}

	go update()
	waitFor(t, "both legs requested", func() bool { return routing.Calls() == 2 })
	go update()
	time.Sleep(20 * time.Millisecond)
	close(gate)

	fetched := 0
	for i := 0; i < 2; i++ {
		r := <-results
		if r.info.TotalDistanceM != 4600 {
			t.Errorf("info = %+v", r.info)
		}
		if r.fetched {
			fetched++
		}
	}
	if fetched != 1 || m.Fetches() != 1 || routing.Calls() != 2 {
		t.Errorf("fetched = %d fetches = %d routing calls = %d, want 1, 1 and 2", fetched, m.Fetches(), routing.Calls())
	}
	if n := len(events.ofType(event.TypeRouteUpdated)); n != 1 {
		t.Errorf("RouteUpdated events = %d, want 1", n)
	}
}

func TestRouteMetrics_ResetDiscardsFetchInFlight(t *testing.T) {
	routing := newFakeRouting()
	gate := make(chan struct{})
	routing.gate = gate
	m, events := newTestRouteMetrics(routing)

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Update(context.Background(), "order-1", driverCoord, restaurantCoord, customerCoord)
	}()
	waitFor(t, "both legs requested", func() bool { return routing.Calls() == 2 })
	m.Reset()
	close(gate)
	<-done

	if _, ok := m.Current("order-1"); ok {
		t.Error("a fetch started before Reset was cached")
	}
	if n := len(events.ofType(event.TypeRouteUpdated)); n != 0 {
		t.Errorf("RouteUpdated events = %d, want 0", n)
	}
}
