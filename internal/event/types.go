package event

import (
	"time"

	"driver-agent/internal/driver-agent/core/domain/model"
)

const (
	TypeSessionStateChanged    = "session.state_changed"
	TypeConnectionStateChanged = "connection.state_changed"
	TypeConnectionLost         = "connection.lost"
	TypeOfferStateChanged      = "offer.state_changed"
	TypeOfferReassign          = "offer.reassign_requested"
	TypeOfferAcceptWarning     = "offer.accept_warning"
	TypeRouteUpdated           = "route.updated"
	TypeTripCreated            = "trip.created"
	TypeTripStatusAdvanced     = "trip.status_advanced"
)

type Event interface {
	EventType() string
	Timestamp() time.Time
}

type baseEvent struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

func newBase(t string, at time.Time) baseEvent { return baseEvent{Type: t, At: at} }

func (e baseEvent) EventType() string    { return e.Type }
func (e baseEvent) Timestamp() time.Time { return e.At }

type SessionStateChanged struct {
	baseEvent
	DriverID string `json:"driver_id"`
	Online   bool   `json:"online"`
}

func NewSessionStateChanged(at time.Time, driverID string, online bool) SessionStateChanged {
	return SessionStateChanged{baseEvent: newBase(TypeSessionStateChanged, at), DriverID: driverID, Online: online}
}

type ConnectionStateChanged struct {
	baseEvent
	State   model.ConnectionState `json:"state"`
	Attempt int                   `json:"attempt"`
}

func NewConnectionStateChanged(at time.Time, state model.ConnectionState, attempt int) ConnectionStateChanged {
	return ConnectionStateChanged{baseEvent: newBase(TypeConnectionStateChanged, at), State: state, Attempt: attempt}
}

// ConnectionLost is emitted once when automatic reconnection gives up.
type ConnectionLost struct {
	baseEvent
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason,omitempty"`
}

func NewConnectionLost(at time.Time, attempts int, reason string) ConnectionLost {
	return ConnectionLost{baseEvent: newBase(TypeConnectionLost, at), Attempts: attempts, Reason: reason}
}

type OfferStateChanged struct {
	baseEvent
	Offer model.OrderOffer `json:"offer"`
}

func NewOfferStateChanged(at time.Time, offer model.OrderOffer) OfferStateChanged {
	return OfferStateChanged{baseEvent: newBase(TypeOfferStateChanged, at), Offer: offer}
}

// OfferReassign tells the coordinator the accepted order was claimed by
// someone else and the driver should go back to searching.
type OfferReassign struct {
	baseEvent
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

func NewOfferReassign(at time.Time, orderID, message string) OfferReassign {
	return OfferReassign{baseEvent: newBase(TypeOfferReassign, at), OrderID: orderID, Message: message}
}

type OfferAcceptWarning struct {
	baseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

func NewOfferAcceptWarning(at time.Time, orderID, reason string) OfferAcceptWarning {
	return OfferAcceptWarning{baseEvent: newBase(TypeOfferAcceptWarning, at), OrderID: orderID, Reason: reason}
}

type RouteUpdated struct {
	baseEvent
	OrderID string          `json:"order_id"`
	Route   model.RouteInfo `json:"route"`
}

func NewRouteUpdated(at time.Time, orderID string, route model.RouteInfo) RouteUpdated {
	return RouteUpdated{baseEvent: newBase(TypeRouteUpdated, at), OrderID: orderID, Route: route}
}

type TripCreated struct {
	baseEvent
	Trip     model.Trip `json:"trip"`
	Recorded bool       `json:"recorded"` // false when queued for retry
}

func NewTripCreated(at time.Time, trip model.Trip, recorded bool) TripCreated {
	return TripCreated{baseEvent: newBase(TypeTripCreated, at), Trip: trip, Recorded: recorded}
}

type TripStatusAdvanced struct {
	baseEvent
	Trip  model.Trip        `json:"trip"`
	Stage model.TripAdvance `json:"stage"`
}

func NewTripStatusAdvanced(at time.Time, trip model.Trip, stage model.TripAdvance) TripStatusAdvanced {
	return TripStatusAdvanced{baseEvent: newBase(TypeTripStatusAdvanced, at), Trip: trip, Stage: stage}
}
