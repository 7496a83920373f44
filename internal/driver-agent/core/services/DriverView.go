package services

import "driver-agent/internal/driver-agent/core/domain/model"

// ViewInputs is the latest state reported by each component through the
// event bus.
type ViewInputs struct {
	Session        model.DriverSession
	ConnectionLost bool
	Notice         string
	Offer          *model.OrderOffer
	Route          *model.RouteInfo
	RouteOrderID   string
	Trip           *model.Trip
	Status         model.DriverStatus
}

// BuildDriverView folds component state into the snapshot the UI renders.
// It has no side effects.
func BuildDriverView(in ViewInputs) model.DriverView {
	view := model.DriverView{
		Session: in.Session,
		Status:  in.Status,
		Notice:  in.Notice,
	}
	online := in.Session.Online
	view.Dispatchable = online && in.Session.ConnectionState == model.ConnectionConnected
	view.ReconnectRequired = online && (in.ConnectionLost || in.Session.ConnectionState == model.ConnectionFailed)

	if in.Offer != nil && !in.Offer.State.Terminal() {
		offer := *in.Offer
		view.Offer = &offer
	}
	if in.Trip != nil {
		trip := *in.Trip
		trip.Waypoints = append([]model.Waypoint(nil), in.Trip.Waypoints...)
		view.Trip = &trip
	}

	activeOrder := ""
	switch {
	case view.Offer != nil:
		activeOrder = view.Offer.OrderID
	case view.Trip != nil && !view.Trip.Status.Terminal():
		activeOrder = view.Trip.OrderID
	}
	if activeOrder != "" {
		if in.Route != nil && in.RouteOrderID == activeOrder {
			route := *in.Route
			view.Route = &route
		} else {
			view.Calculating = true
		}
	}

	tripActive := view.Trip != nil && !view.Trip.Status.Terminal()
	view.Searching = online && !view.ReconnectRequired && view.Offer == nil && !tripActive
	return view
}
