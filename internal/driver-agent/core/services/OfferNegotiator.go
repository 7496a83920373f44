package services

import (
	"context"
	"errors"
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
)

const staleOfferMessage = "This order was already taken by another driver. Searching for a new one."

type tripCreator interface {
	CreateTrip(ctx context.Context, offer model.OrderOffer, route model.RouteInfo) model.Trip
}

type routeProvider interface {
	Current(orderID string) (model.RouteInfo, bool)
}

type positionProvider interface {
	LastPosition() (model.Coord, bool)
}

// OfferNegotiator owns the single in-flight OrderOffer and its countdown.
type OfferNegotiator struct {
	backend     driven.IDispatchBackend
	trips       tripCreator
	routes      routeProvider
	position    positionProvider
	clock       clock.Clock
	bus         *event.Bus
	log         mylogger.Logger
	countdown   time.Duration
	callTimeout time.Duration

	mu    sync.Mutex
	offer *model.OrderOffer
	timer clock.Timer
	// gen invalidates a countdown callback that fired but lost the race for mu.
	gen uint64
	wg  sync.WaitGroup
}

func NewOfferNegotiator(
	backend driven.IDispatchBackend,
	trips tripCreator,
	routes routeProvider,
	position positionProvider,
	clk clock.Clock,
	bus *event.Bus,
	log mylogger.Logger,
	countdown time.Duration,
	callTimeout time.Duration,
) *OfferNegotiator {
	return &OfferNegotiator{
		backend:     backend,
		trips:       trips,
		routes:      routes,
		position:    position,
		clock:       clk,
		bus:         bus,
		log:         log,
		countdown:   countdown,
		callTimeout: callTimeout,
	}
}

// OnAssignment starts a new OFFERED offer unless one is already in flight.
func (n *OfferNegotiator) OnAssignment(offer model.OrderOffer) error {
	n.mu.Lock()
	if n.offer != nil {
		active := n.offer.OrderID
		n.mu.Unlock()
		n.log.Action("offer_rejected_busy").Warn("assignment dropped, offer already active",
			"order_id", offer.OrderID, "active_order_id", active)
		return myerrors.ErrOfferAlreadyActive
	}

	offer.State = model.OfferOffered
	n.offer = &offer
	n.gen++
	gen := n.gen
	window := n.windowFor(offer)
	n.timer = n.clock.AfterFunc(window, func() { n.expire(gen) })
	snapshot := offer
	n.mu.Unlock()

	n.log.Action("offer_received").Info("new order offer",
		"order_id", offer.OrderID, "countdown", window.String())
	n.publish(snapshot)
	return nil
}

func (n *OfferNegotiator) windowFor(offer model.OrderOffer) time.Duration {
	window := n.countdown
	if offer.ExpiresAtEpochMs > 0 {
		left := time.UnixMilli(offer.ExpiresAtEpochMs).Sub(n.clock.Now())
		if left < window {
			window = left
		}
	}
	if window < 0 {
		window = 0
	}
	return window
}

// Accept claims the offer. The countdown is stopped before the backend call.
func (n *OfferNegotiator) Accept(ctx context.Context) (model.AcceptOutcome, error) {
	n.mu.Lock()
	if n.offer == nil {
		n.mu.Unlock()
		return "", myerrors.ErrNoActiveOffer
	}
	if n.offer.State != model.OfferOffered {
		state := n.offer.State
		n.mu.Unlock()
		return "", fmt.Errorf("%w: accept from %s", myerrors.ErrInvalidTransition, state)
	}
	n.stopTimerLocked()
	n.offer.State = model.OfferAccepting
	offer := *n.offer
	n.mu.Unlock()
	n.publish(offer)

	l := n.log.Action("offer_accept").With("order_id", offer.OrderID)

	callCtx, cancel := context.WithTimeout(ctx, n.callTimeout)
	err := n.backend.AcceptOffer(callCtx, n.responseFor(offer))
	cancel()

	outcome := model.AcceptOK
	switch {
	case errors.Is(err, myerrors.ErrOfferConflict):
		l.Warn("order already claimed by another driver")
		n.finish(model.OfferDeclined)
		n.bus.Publish(event.NewOfferReassign(n.clock.Now(), offer.OrderID, staleOfferMessage))
		return model.AcceptStale, nil
	case err != nil:
		l.Error("accept call failed, proceeding with delivery", err)
		outcome = model.AcceptWithWarning
		n.bus.Publish(event.NewOfferAcceptWarning(n.clock.Now(), offer.OrderID, err.Error()))
	default:
		l.Info("offer accepted")
	}

	accepted := n.finish(model.OfferAccepted)
	route, _ := n.routes.Current(accepted.OrderID)
	n.trips.CreateTrip(ctx, accepted, route)
	return outcome, nil
}

// Decline abandons the offer. The backend call is best-effort.
func (n *OfferNegotiator) Decline(ctx context.Context) error {
	n.mu.Lock()
	if n.offer == nil {
		n.mu.Unlock()
		return myerrors.ErrNoActiveOffer
	}
	if n.offer.State != model.OfferOffered {
		state := n.offer.State
		n.mu.Unlock()
		return fmt.Errorf("%w: decline from %s", myerrors.ErrInvalidTransition, state)
	}
	n.stopTimerLocked()
	n.offer.State = model.OfferDeclining
	offer := *n.offer
	n.mu.Unlock()
	n.publish(offer)

	n.sendDecline(ctx, offer)
	n.finish(model.OfferDeclined)
	return nil
}

// Cancel declines an offer that is still waiting for the driver. Used when
// the driver goes offline.
func (n *OfferNegotiator) Cancel(ctx context.Context) {
	if err := n.Decline(ctx); err != nil && !errors.Is(err, myerrors.ErrNoActiveOffer) {
		n.log.Action("offer_cancel").Debug("nothing to cancel", "reason", err.Error())
	}
}

// Current returns the in-flight offer, if any.
func (n *OfferNegotiator) Current() (model.OrderOffer, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offer == nil {
		return model.OrderOffer{}, false
	}
	return *n.offer, true
}

// Wait blocks until background decline calls started by expiry have returned.
func (n *OfferNegotiator) Wait() {
	n.wg.Wait()
}

func (n *OfferNegotiator) expire(gen uint64) {
	n.mu.Lock()
	if n.offer == nil || gen != n.gen || n.offer.State != model.OfferOffered {
		n.mu.Unlock()
		return
	}
	n.timer = nil
	n.offer.State = model.OfferExpired
	expired := *n.offer
	n.offer.State = model.OfferDeclining
	n.mu.Unlock()

	n.log.Action("offer_expired").Info("offer countdown elapsed", "order_id", expired.OrderID)
	n.publish(expired)

	// timer callbacks must not block on the network
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.sendDecline(context.Background(), expired)
		n.finish(model.OfferDeclined)
	}()
}

func (n *OfferNegotiator) sendDecline(ctx context.Context, offer model.OrderOffer) {
	callCtx, cancel := context.WithTimeout(ctx, n.callTimeout)
	defer cancel()
	if err := n.backend.DeclineOffer(callCtx, n.responseFor(offer)); err != nil {
		n.log.Action("offer_decline").Warn("decline call failed, offer abandoned anyway",
			"order_id", offer.OrderID, "error", err.Error())
	}
}

// finish moves the offer to a terminal state, publishes it and clears it so
// the next assignment is accepted.
func (n *OfferNegotiator) finish(state model.OfferState) model.OrderOffer {
	n.mu.Lock()
	var final model.OrderOffer
	if n.offer != nil {
		n.offer.State = state
		final = *n.offer
	}
	n.stopTimerLocked()
	n.offer = nil
	n.mu.Unlock()

	n.publish(final)
	return final
}

func (n *OfferNegotiator) stopTimerLocked() {
	n.gen++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

func (n *OfferNegotiator) responseFor(offer model.OrderOffer) dto.OfferResponseRequest {
	req := dto.OfferResponseRequest{OrderID: offer.OrderID, DriverID: offer.DriverID}
	if n.position != nil {
		if pos, ok := n.position.LastPosition(); ok {
			req.Location = pos
		}
	}
	return req
}

func (n *OfferNegotiator) publish(offer model.OrderOffer) {
	n.bus.Publish(event.NewOfferStateChanged(n.clock.Now(), offer))
}
