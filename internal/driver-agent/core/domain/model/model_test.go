package model

import "testing"

func TestOfferState_Terminal(t *testing.T) {
	tests := []struct {
		state OfferState
		want  bool
	}{
		{OfferOffered, false},
		{OfferAccepting, false},
		{OfferDeclining, false},
		{OfferAccepted, true},
		{OfferDeclined, true},
		{OfferExpired, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestCombineLegs(t *testing.T) {
	pickup := &RouteLeg{DistanceM: 1000, DurationS: 120}
	delivery := &RouteLeg{DistanceM: 2500, DurationS: 300}

	full := CombineLegs(pickup, delivery)
	if full.Degraded {
		t.Error("both legs present should not be degraded")
	}
	if full.TotalDistanceM != 3500 || full.TotalDurationS != 420 {
		t.Errorf("totals = %v/%v", full.TotalDistanceM, full.TotalDurationS)
	}

	partial := CombineLegs(pickup, nil)
	if !partial.Degraded {
		t.Error("missing delivery leg should be degraded")
	}
	if partial.DeliveryDistanceM != 0 || partial.TotalDistanceM != 1000 {
		t.Errorf("partial = %+v", partial)
	}
}

func TestNewTripFromOffer(t *testing.T) {
	offer := OrderOffer{
		OrderID:    "o-1",
		DriverID:   "d-1",
		CustomerID: "c-1",
		Restaurant: Place{Coord: Coord{Latitude: 43.23, Longitude: 76.88}, Address: "Pizza St"},
		Customer:   Place{Coord: Coord{Latitude: 43.25, Longitude: 76.92}, Address: "Home Ave"},
	}
	trip := NewTripFromOffer(offer, RouteInfo{TotalDistanceM: 5000, TotalDurationS: 600})

	if trip.Status != TripScheduled {
		t.Errorf("status = %s", trip.Status)
	}
	if len(trip.Waypoints) != 2 {
		t.Fatalf("waypoints = %d", len(trip.Waypoints))
	}
	if trip.Waypoints[0].Kind != WaypointPickup || trip.Waypoints[0].Coord != offer.Restaurant.Coord {
		t.Errorf("first waypoint = %+v", trip.Waypoints[0])
	}
	if trip.Waypoints[1].Kind != WaypointDropoff || trip.Waypoints[1].Coord != offer.Customer.Coord {
		t.Errorf("second waypoint = %+v", trip.Waypoints[1])
	}
	if trip.EstimatedDistanceM != 5000 {
		t.Errorf("distance = %v", trip.EstimatedDistanceM)
	}
}

func TestDistanceMeters(t *testing.T) {
	a := Coord{Latitude: 43.2380, Longitude: 76.8890}
	if d := DistanceMeters(a, a); d != 0 {
		t.Errorf("distance to self = %v", d)
	}
	// one thousandth of a degree of latitude is ~111m
	b := Coord{Latitude: 43.2390, Longitude: 76.8890}
	if d := DistanceMeters(a, b); d < 105 || d > 117 {
		t.Errorf("distance = %v, want ~111m", d)
	}
}
