package driven

import (
	"context"

	"driver-agent/internal/driver-agent/core/domain/dto"
	"driver-agent/internal/driver-agent/core/domain/model"
)

// IDispatchBackend is the request/response side of the dispatch backend.
// Implementations wrap myerrors.ErrOfferConflict and myerrors.ErrTransport.
type IDispatchBackend interface {
	AcceptOffer(ctx context.Context, req dto.OfferResponseRequest) error
	DeclineOffer(ctx context.Context, req dto.OfferResponseRequest) error
	CreateTrip(ctx context.Context, req dto.TripCreateRequest) error
	UpdateTripStatus(ctx context.Context, req dto.TripStatusRequest) error
}

// ILocationSink ships one location sample.
type ILocationSink interface {
	SendLocation(ctx context.Context, driverID string, sample model.LocationSample) error
}

// IRoutingClient returns one leg between two waypoints.
type IRoutingClient interface {
	Leg(ctx context.Context, from, to model.Coord) (model.RouteLeg, error)
}
