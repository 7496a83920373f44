package model

type TripStatus string

const (
	TripScheduled  TripStatus = "SCHEDULED"
	TripInProgress TripStatus = "IN_PROGRESS"
	TripCompleted  TripStatus = "COMPLETED"
	TripCancelled  TripStatus = "CANCELLED"
)

func (s TripStatus) Terminal() bool {
	return s == TripCompleted || s == TripCancelled
}

type WaypointKind string

const (
	WaypointPickup  WaypointKind = "PICKUP"
	WaypointDropoff WaypointKind = "DROPOFF"
)

type WaypointStatus string

const (
	WaypointPending   WaypointStatus = "PENDING"
	WaypointArrived   WaypointStatus = "ARRIVED"
	WaypointCompleted WaypointStatus = "COMPLETED"
)

type Waypoint struct {
	Kind    WaypointKind   `json:"kind"`
	Coord   Coord          `json:"coord"`
	Address string         `json:"address,omitempty"`
	Status  WaypointStatus `json:"status"`
}

type Trip struct {
	OrderID            string     `json:"order_id"`
	DriverID           string     `json:"driver_id"`
	CustomerID         string     `json:"customer_id,omitempty"`
	Waypoints          []Waypoint `json:"waypoints"`
	Status             TripStatus `json:"status"`
	EstimatedDistanceM float64    `json:"estimated_distance_m"`
	EstimatedDurationS float64    `json:"estimated_duration_s"`
}

// TripAdvance is a stage the navigation flow reports.
type TripAdvance string

const (
	AdvancePickup    TripAdvance = "PICKUP"
	AdvanceDelivered TripAdvance = "DELIVERED"
)

// NewTripFromOffer lays out [restaurant, customer] as pickup and dropoff.
func NewTripFromOffer(offer OrderOffer, route RouteInfo) Trip {
	return Trip{
		OrderID:    offer.OrderID,
		DriverID:   offer.DriverID,
		CustomerID: offer.CustomerID,
		Waypoints: []Waypoint{
			{Kind: WaypointPickup, Coord: offer.Restaurant.Coord, Address: offer.Restaurant.Address, Status: WaypointPending},
			{Kind: WaypointDropoff, Coord: offer.Customer.Coord, Address: offer.Customer.Address, Status: WaypointPending},
		},
		Status:             TripScheduled,
		EstimatedDistanceM: route.TotalDistanceM,
		EstimatedDurationS: route.TotalDurationS,
	}
}
