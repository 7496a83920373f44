package dto

import "driver-agent/internal/driver-agent/core/domain/model"

// Accept / Decline
type OfferResponseRequest struct {
	OrderID  string      `json:"order_id"`
	DriverID string      `json:"driver_id"`
	Location model.Coord `json:"current_location"`
}

// Location update
type LocationUpdateRequest struct {
	DriverID string `json:"driver_id"`
	model.LocationSample
}

// Trip create
type TripCreateRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	model.Trip
}

type TripStatusRequest struct {
	OrderID  string `json:"order_id"`
	DriverID string `json:"driver_id"`
	Status   string `json:"status"`
}

const (
	TripWireStatusPickedUp  = "PICKED_UP"
	TripWireStatusDelivered = "DELIVERED"
	TripWireStatusCancelled = "CANCELLED"
)

// Routing backend leg (OSRM shaped)
type RouteResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry string  `json:"geometry"`
	} `json:"routes"`
}
