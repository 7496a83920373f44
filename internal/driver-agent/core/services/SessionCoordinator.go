package services

import (
	"context"
	"sync"

	"driver-agent/internal/clock"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/myerrors"
	"driver-agent/internal/driver-agent/core/ports/driver"
	"driver-agent/internal/event"
	"driver-agent/internal/mylogger"
)

var _ driver.ISessionService = (*SessionCoordinator)(nil)

// SessionCoordinator wires the components together and is the only owner of
// the DriverSession.
type SessionCoordinator struct {
	dispatch   *DispatchConnection
	reporter   *LocationReporter
	negotiator *OfferNegotiator
	trips      *TripRecorder
	routes     *RouteMetrics
	bus        *event.Bus
	clock      clock.Clock
	log        mylogger.Logger

	appCtx context.Context

	mu     sync.Mutex
	inputs ViewInputs
	// assignMu orders incoming assignments against going offline
	assignMu sync.Mutex
	subs     []uint64
	wg       sync.WaitGroup
}

func NewSessionCoordinator(
	appCtx context.Context,
	driverID string,
	dispatch *DispatchConnection,
	reporter *LocationReporter,
	negotiator *OfferNegotiator,
	trips *TripRecorder,
	routes *RouteMetrics,
	bus *event.Bus,
	clk clock.Clock,
	log mylogger.Logger,
) *SessionCoordinator {
	c := &SessionCoordinator{
		dispatch:   dispatch,
		reporter:   reporter,
		negotiator: negotiator,
		trips:      trips,
		routes:     routes,
		bus:        bus,
		clock:      clk,
		log:        log,
		appCtx:     appCtx,
		inputs: ViewInputs{
			Session: model.DriverSession{
				DriverID:        driverID,
				ConnectionState: model.ConnectionDisconnected,
			},
			Status: model.StatusAvailable,
		},
	}
	c.subs = append(c.subs,
		bus.Subscribe(event.TypeConnectionStateChanged, c.onConnectionState),
		bus.Subscribe(event.TypeConnectionLost, c.onConnectionLost),
		bus.Subscribe(event.TypeOfferStateChanged, c.onOfferState),
		bus.Subscribe(event.TypeOfferReassign, c.onReassign),
		bus.Subscribe(event.TypeRouteUpdated, c.onRoute),
	)
	return c
}

// GoOnline starts location reporting and opens the dispatch subscription.
// Calling it while online is a no-op.
func (c *SessionCoordinator) GoOnline(ctx context.Context) error {
	c.mu.Lock()
	if c.inputs.Session.Online {
		c.mu.Unlock()
		return nil
	}
	driverID := c.inputs.Session.DriverID
	c.mu.Unlock()

	if err := c.reporter.Start(c.appCtx, driverID); err != nil {
		return err
	}

	c.mu.Lock()
	c.inputs.Session.Online = true
	c.inputs.ConnectionLost = false
	c.inputs.Notice = ""
	c.mu.Unlock()

	c.bus.Publish(event.NewSessionStateChanged(c.clock.Now(), driverID, true))
	c.dispatch.Connect(c.appCtx, driverID, c.onAssignment)
	c.log.Action("go_online").Info("driver is online", "driver_id", driverID)

	c.flushAsync()
	return nil
}

// GoOffline closes the subscription, declines any waiting offer and stops
// location reporting.
func (c *SessionCoordinator) GoOffline(ctx context.Context) error {
	c.mu.Lock()
	if !c.inputs.Session.Online {
		c.mu.Unlock()
		return nil
	}
	c.inputs.Session.Online = false
	driverID := c.inputs.Session.DriverID
	c.mu.Unlock()

	c.dispatch.Disconnect()
	c.assignMu.Lock()
	c.negotiator.Cancel(ctx)
	c.assignMu.Unlock()
	c.reporter.Stop()

	c.mu.Lock()
	c.inputs.ConnectionLost = false
	c.inputs.Notice = ""
	c.mu.Unlock()

	c.bus.Publish(event.NewSessionStateChanged(c.clock.Now(), driverID, false))
	c.log.Action("go_offline").Info("driver is offline", "driver_id", driverID)
	return nil
}

func (c *SessionCoordinator) Accept(ctx context.Context) (model.AcceptOutcome, error) {
	if !c.Online() {
		return "", myerrors.ErrNotOnline
	}
	return c.negotiator.Accept(ctx)
}

func (c *SessionCoordinator) Decline(ctx context.Context) error {
	if !c.Online() {
		return myerrors.ErrNotOnline
	}
	return c.negotiator.Decline(ctx)
}

// AdvanceTrip reports navigation progress on the active trip.
func (c *SessionCoordinator) AdvanceTrip(ctx context.Context, to model.TripAdvance) (model.Trip, error) {
	trip, ok := c.trips.Current()
	if !ok {
		return model.Trip{}, myerrors.ErrNoActiveTrip
	}
	advanced, err := c.trips.Advance(ctx, trip.OrderID, to)
	if err != nil {
		return model.Trip{}, err
	}
	if advanced.Status.Terminal() {
		c.clearRoute()
	} else {
		c.refreshRouteAsync()
	}
	return advanced, nil
}

// CancelTrip abandons the active trip and frees the driver for new offers.
func (c *SessionCoordinator) CancelTrip(ctx context.Context) (model.Trip, error) {
	trip, ok := c.trips.Current()
	if !ok {
		return model.Trip{}, myerrors.ErrNoActiveTrip
	}
	if err := c.trips.Cancel(ctx, trip.OrderID); err != nil {
		return model.Trip{}, err
	}
	c.clearRoute()
	cancelled, _ := c.trips.Current()
	return cancelled, nil
}

// NetworkChanged is fed by the connectivity collaborator.
func (c *SessionCoordinator) NetworkChanged(ctx context.Context, connected bool) {
	l := c.log.Action("network_changed").With("connected", connected)
	if !connected {
		l.Info("network lost")
		return
	}
	if !c.Online() {
		l.Debug("network restored while offline")
		return
	}
	l.Info("network restored")
	c.dispatch.NetworkRestored()
	c.flushAsync()
}

// FlushPending drains both pending partitions.
func (c *SessionCoordinator) FlushPending(ctx context.Context) (locations, trips model.DrainResult) {
	var err error
	if locations, err = c.reporter.FlushPending(ctx); err != nil {
		c.log.Action("flush_pending").Error("location flush failed", err)
	}
	if trips, err = c.trips.FlushPending(ctx); err != nil {
		c.log.Action("flush_pending").Error("trip flush failed", err)
	}
	return locations, trips
}

// RefreshRoute recomputes the route for the current offer or trip. Unchanged
// coordinates do not trigger a fetch.
func (c *SessionCoordinator) RefreshRoute(ctx context.Context) (model.RouteInfo, bool) {
	here, ok := c.reporter.LastPosition()
	if !ok {
		return model.RouteInfo{}, false
	}
	if offer, ok := c.negotiator.Current(); ok {
		info, _ := c.routes.Update(ctx, offer.OrderID, here, offer.Restaurant.Coord, offer.Customer.Coord)
		return info, true
	}
	if trip, ok := c.trips.Current(); ok && !trip.Status.Terminal() && len(trip.Waypoints) == 2 {
		info, _ := c.routes.Update(ctx, trip.OrderID, here, trip.Waypoints[0].Coord, trip.Waypoints[1].Coord)
		return info, true
	}
	return model.RouteInfo{}, false
}

func (c *SessionCoordinator) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs.Session.Online
}

// Dispatchable reports whether the backend can currently reach the driver.
func (c *SessionCoordinator) Dispatchable() bool {
	return c.View().Dispatchable
}

func (c *SessionCoordinator) View() model.DriverView {
	c.mu.Lock()
	in := c.inputs
	c.mu.Unlock()
	in.Status = c.reporter.Status()
	if trip, ok := c.trips.Current(); ok {
		in.Trip = &trip
	}
	return BuildDriverView(in)
}

// Shutdown goes offline and waits for background work.
func (c *SessionCoordinator) Shutdown(ctx context.Context) error {
	err := c.GoOffline(ctx)
	c.wg.Wait()
	c.negotiator.Wait()
	c.trips.Wait()
	c.reporter.Wait()
	for _, id := range c.subs {
		c.bus.Unsubscribe(id)
	}
	return err
}

func (c *SessionCoordinator) onAssignment(offer model.OrderOffer) {
	c.assignMu.Lock()
	defer c.assignMu.Unlock()
	if !c.Online() {
		c.log.Action("offer_rejected_offline").Warn("assignment dropped, driver is offline",
			"order_id", offer.OrderID)
		return
	}
	// a busy negotiator logs and drops the event itself
	_ = c.negotiator.OnAssignment(offer)
}

// clearRoute drops the route of a finished trip from the cache and the view.
func (c *SessionCoordinator) clearRoute() {
	c.routes.Reset()
	c.mu.Lock()
	c.inputs.Route = nil
	c.inputs.RouteOrderID = ""
	c.mu.Unlock()
}

func (c *SessionCoordinator) flushAsync() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.FlushPending(c.appCtx)
	}()
}

func (c *SessionCoordinator) refreshRouteAsync() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.RefreshRoute(c.appCtx)
	}()
}

func (c *SessionCoordinator) onConnectionState(e event.Event) {
	ev, ok := e.(event.ConnectionStateChanged)
	if !ok {
		return
	}
	c.mu.Lock()
	prev := c.inputs.Session.ConnectionState
	c.inputs.Session.ConnectionState = ev.State
	if ev.State == model.ConnectionConnected {
		c.inputs.ConnectionLost = false
	}
	online := c.inputs.Session.Online
	c.mu.Unlock()

	if ev.State == model.ConnectionConnected && prev != model.ConnectionConnected && online {
		c.flushAsync()
	}
}

func (c *SessionCoordinator) onConnectionLost(e event.Event) {
	c.mu.Lock()
	c.inputs.ConnectionLost = true
	c.inputs.Notice = "Connection lost. Go offline and online again to reconnect."
	c.mu.Unlock()
	c.log.Action("reconnect_required").Warn("dispatch connection lost, manual reconnect required")
}

func (c *SessionCoordinator) onOfferState(e event.Event) {
	ev, ok := e.(event.OfferStateChanged)
	if !ok {
		return
	}
	c.mu.Lock()
	if ev.Offer.State.Terminal() {
		c.inputs.Offer = nil
	} else {
		offer := ev.Offer
		c.inputs.Offer = &offer
	}
	if ev.Offer.State == model.OfferOffered {
		c.inputs.Notice = ""
	}
	c.mu.Unlock()

	if ev.Offer.State == model.OfferOffered {
		c.refreshRouteAsync()
	}
}

func (c *SessionCoordinator) onReassign(e event.Event) {
	ev, ok := e.(event.OfferReassign)
	if !ok {
		return
	}
	c.mu.Lock()
	c.inputs.Offer = nil
	c.inputs.Notice = ev.Message
	c.mu.Unlock()
	c.log.Action("offer_reassign").Info("offer was stale, back to searching", "order_id", ev.OrderID)
}

func (c *SessionCoordinator) onRoute(e event.Event) {
	ev, ok := e.(event.RouteUpdated)
	if !ok {
		return
	}
	c.mu.Lock()
	route := ev.Route
	c.inputs.Route = &route
	c.inputs.RouteOrderID = ev.OrderID
	c.mu.Unlock()
}
