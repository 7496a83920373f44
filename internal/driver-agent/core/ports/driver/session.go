package driver

import (
	"context"

	"driver-agent/internal/driver-agent/core/domain/model"
)

// ISessionService is what the UI collaborator drives.
type ISessionService interface {
	GoOnline(ctx context.Context) error
	GoOffline(ctx context.Context) error
	Accept(ctx context.Context) (model.AcceptOutcome, error)
	Decline(ctx context.Context) error
	AdvanceTrip(ctx context.Context, to model.TripAdvance) (model.Trip, error)
	CancelTrip(ctx context.Context) (model.Trip, error)
	NetworkChanged(ctx context.Context, connected bool)
	FlushPending(ctx context.Context) (locations, trips model.DrainResult)
	RefreshRoute(ctx context.Context) (model.RouteInfo, bool)
	View() model.DriverView
}
