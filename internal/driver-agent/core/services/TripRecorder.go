package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"driver-agent/internal/clock"
	"driver-agent/internal/driver-agent/core/domain/dto"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/myerrors"
	"driver-agent/internal/driver-agent/core/ports/driven"
	"driver-agent/internal/event"
	"driver-agent/internal/mylogger"

	"github.com/google/uuid"
)

type statusSetter interface {
	SetStatus(status model.DriverStatus)
}

// TripRecorder owns the Trip created from an accepted offer. Recording is
// bookkeeping: backend failures are queued or logged, never returned.
type TripRecorder struct {
	backend     driven.IDispatchBackend
	pending     *PendingStore
	status      statusSetter
	clock       clock.Clock
	bus         *event.Bus
	log         mylogger.Logger
	callTimeout time.Duration

	mu   sync.Mutex
	trip *model.Trip
	wg   sync.WaitGroup
}

func NewTripRecorder(backend driven.IDispatchBackend, pending *PendingStore, status statusSetter, clk clock.Clock, bus *event.Bus, log mylogger.Logger, callTimeout time.Duration) *TripRecorder {
	return &TripRecorder{
		backend:     backend,
		pending:     pending,
		status:      status,
		clock:       clk,
		bus:         bus,
		log:         log,
		callTimeout: callTimeout,
	}
}

// CreateTrip records the trip locally and submits it in the background. On
// failure the request is queued as TRIP_CREATE.
func (r *TripRecorder) CreateTrip(ctx context.Context, offer model.OrderOffer, route model.RouteInfo) model.Trip {
	trip := model.NewTripFromOffer(offer, route)

	r.mu.Lock()
	r.trip = &trip
	r.mu.Unlock()
	r.status.SetStatus(model.StatusPickingUp)

	req := dto.TripCreateRequest{
		IdempotencyKey: tripIdempotencyKey(trip),
		Trip:           trip,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		l := r.log.Action("trip_create").With("order_id", trip.OrderID)

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.callTimeout)
		err := r.backend.CreateTrip(callCtx, req)
		cancel()
		if err == nil {
			l.Info("trip recorded")
			r.bus.Publish(event.NewTripCreated(r.clock.Now(), trip, true))
			return
		}

		l.Warn("trip create failed, queued for retry", "error", err.Error())
		if qerr := r.pending.Enqueue(context.WithoutCancel(ctx), model.KindTripCreate, req); qerr != nil {
			l.Error("cannot queue trip create", qerr)
		}
		r.bus.Publish(event.NewTripCreated(r.clock.Now(), trip, false))
	}()
	return trip
}

// Advance moves the trip forward. The local state changes immediately; the
// backend status call runs in the background and failures are only logged.
func (r *TripRecorder) Advance(ctx context.Context, orderID string, to model.TripAdvance) (model.Trip, error) {
	r.mu.Lock()
	if r.trip == nil || r.trip.OrderID != orderID {
		r.mu.Unlock()
		return model.Trip{}, myerrors.ErrNoActiveTrip
	}

	var wire string
	var next model.DriverStatus
	switch to {
	case model.AdvancePickup:
		if r.trip.Status != model.TripScheduled {
			state := r.trip.Status
			r.mu.Unlock()
			return model.Trip{}, fmt.Errorf("%w: pickup from %s", myerrors.ErrInvalidTransition, state)
		}
		r.trip.Status = model.TripInProgress
		r.trip.Waypoints[0].Status = model.WaypointCompleted
		r.trip.Waypoints[1].Status = model.WaypointPending
		wire, next = dto.TripWireStatusPickedUp, model.StatusDelivering
	case model.AdvanceDelivered:
		if r.trip.Status != model.TripInProgress {
			state := r.trip.Status
			r.mu.Unlock()
			return model.Trip{}, fmt.Errorf("%w: delivered from %s", myerrors.ErrInvalidTransition, state)
		}
		r.trip.Status = model.TripCompleted
		r.trip.Waypoints[1].Status = model.WaypointCompleted
		wire, next = dto.TripWireStatusDelivered, model.StatusAvailable
	default:
		r.mu.Unlock()
		return model.Trip{}, fmt.Errorf("%w: unknown stage %q", myerrors.ErrInvalidTransition, to)
	}
	trip := cloneTrip(*r.trip)
	r.mu.Unlock()

	r.status.SetStatus(next)
	r.bus.Publish(event.NewTripStatusAdvanced(r.clock.Now(), trip, to))
	r.sendStatus(ctx, trip, wire)
	return trip, nil
}

// Cancel marks the active trip CANCELLED and frees the driver.
func (r *TripRecorder) Cancel(ctx context.Context, orderID string) error {
	r.mu.Lock()
	if r.trip == nil || r.trip.OrderID != orderID || r.trip.Status.Terminal() {
		r.mu.Unlock()
		return myerrors.ErrNoActiveTrip
	}
	r.trip.Status = model.TripCancelled
	trip := cloneTrip(*r.trip)
	r.mu.Unlock()

	r.status.SetStatus(model.StatusAvailable)
	r.log.Action("trip_cancel").Info("trip cancelled", "order_id", orderID)
	r.sendStatus(ctx, trip, dto.TripWireStatusCancelled)
	return nil
}

func (r *TripRecorder) sendStatus(ctx context.Context, trip model.Trip, wire string) {
	req := dto.TripStatusRequest{OrderID: trip.OrderID, DriverID: trip.DriverID, Status: wire}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.callTimeout)
		defer cancel()
		if err := r.backend.UpdateTripStatus(callCtx, req); err != nil {
			r.log.Action("trip_status").Warn("trip status update failed",
				"order_id", trip.OrderID, "status", wire, "error", err.Error())
		}
	}()
}

// FlushPending retries queued trip creations oldest-first.
func (r *TripRecorder) FlushPending(ctx context.Context) (model.DrainResult, error) {
	return r.pending.Drain(ctx, model.KindTripCreate, func(ctx context.Context, u model.PendingUpdate) error {
		var req dto.TripCreateRequest
		if err := json.Unmarshal(u.Payload, &req); err != nil {
			// unreadable entries can never succeed
			r.log.Action("trip_flush").Error("dropping unreadable pending trip", err, "id", u.ID)
			return nil
		}
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
		return r.backend.CreateTrip(callCtx, req)
	})
}

func (r *TripRecorder) Current() (model.Trip, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trip == nil {
		return model.Trip{}, false
	}
	return cloneTrip(*r.trip), true
}

// Wait blocks until background backend calls have returned.
func (r *TripRecorder) Wait() {
	r.wg.Wait()
}

func cloneTrip(t model.Trip) model.Trip {
	t.Waypoints = append([]model.Waypoint(nil), t.Waypoints...)
	return t
}

// tripIdempotencyKey is stable per (order, driver) so a retried create is
// recognised by the backend.
func tripIdempotencyKey(t model.Trip) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("trip:"+t.OrderID+":"+t.DriverID)).String()
}
