package services

import (
	"context"
	"encoding/json"
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

type connEventKind int

const (
	evConnect connEventKind = iota
	evDisconnect
	evDialOK
	evDialFailed
	evClosed
	evBackoffElapsed
	evNetworkRestored
	evHealthy
)

// healthyAfter is how long a subscription must stay open, without delivering
// anything, before it counts as a successful reconnect.
const healthyAfter = 30 * time.Second

func (k connEventKind) String() string {
	switch k {
	case evConnect:
		return "connect"
	case evDisconnect:
		return "disconnect"
	case evDialOK:
		return "dial_ok"
	case evDialFailed:
		return "dial_failed"
	case evClosed:
		return "closed"
	case evBackoffElapsed:
		return "backoff_elapsed"
	case evNetworkRestored:
		return "network_restored"
	case evHealthy:
		return "healthy"
	}
	return "unknown"
}

type connEvent struct {
	kind     connEventKind
	seq      uint64
	err      error
	driverID string
	handler  func(model.OrderOffer)
	parent   context.Context
	sub      driven.ISubscription
}

// DispatchConnection keeps one logical subscription to
// driver.{driverID}.assignments. All state changes go through transition.
//
//	DISCONNECTED --connect--> CONNECTING --dial ok--> CONNECTED
//	CONNECTING/CONNECTED --failure--> BACKOFF --delay or network restored--> CONNECTING
//	BACKOFF/CONNECTING --attempts exhausted--> FAILED (terminal until connect)
//
// The attempt counter only resets once a subscription proves healthy: it
// delivers a payload or stays open for healthyAfter. A subscription that is
// dropped before that counts as a failed attempt.
type DispatchConnection struct {
	transport      driven.IAssignmentTransport
	clock          clock.Clock
	bus            *event.Bus
	log            mylogger.Logger
	reconnectDelay time.Duration
	maxAttempts    int

	mu       sync.Mutex
	state    model.ConnectionState
	driverID string
	handler  func(model.OrderOffer)
	parent   context.Context
	attempts int
	seq      uint64
	cancel   context.CancelFunc
	backoff  clock.Timer
	health   clock.Timer
	dials    int
}

func NewDispatchConnection(transport driven.IAssignmentTransport, clk clock.Clock, bus *event.Bus, log mylogger.Logger, reconnectDelay time.Duration, maxAttempts int) *DispatchConnection {
	return &DispatchConnection{
		transport:      transport,
		clock:          clk,
		bus:            bus,
		log:            log,
		reconnectDelay: reconnectDelay,
		maxAttempts:    maxAttempts,
		state:          model.ConnectionDisconnected,
	}
}

// Connect is a no-op while already connecting, connected or backing off.
func (c *DispatchConnection) Connect(ctx context.Context, driverID string, onAssignment func(model.OrderOffer)) {
	c.transition(connEvent{kind: evConnect, driverID: driverID, handler: onAssignment, parent: ctx})
}

// Disconnect tears down the subscription and any pending reconnect. Safe to
// call when never connected.
func (c *DispatchConnection) Disconnect() {
	c.transition(connEvent{kind: evDisconnect})
}

// NetworkRestored skips the backoff delay when a reconnect is waiting.
func (c *DispatchConnection) NetworkRestored() {
	c.transition(connEvent{kind: evNetworkRestored})
}

func (c *DispatchConnection) State() model.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dials reports how many subscriptions have been opened.
func (c *DispatchConnection) Dials() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

func (c *DispatchConnection) transition(ev connEvent) {
	var out []event.Event

	c.mu.Lock()
	prev := c.state
	l := c.log.Action("dispatch_connection").With("event", ev.kind.String(), "state", string(prev))

	switch ev.kind {
	case evConnect:
		if prev != model.ConnectionDisconnected && prev != model.ConnectionFailed {
			l.Debug("connect ignored, already active")
			break
		}
		c.driverID = ev.driverID
		c.handler = ev.handler
		c.parent = ev.parent
		if c.parent == nil {
			c.parent = context.Background()
		}
		c.attempts = 0
		c.startDialLocked()

	case evDisconnect:
		c.seq++
		c.stopLocked()
		c.attempts = 0
		c.state = model.ConnectionDisconnected

	case evDialOK:
		if ev.seq != c.seq || prev != model.ConnectionConnecting {
			break
		}
		c.state = model.ConnectionConnected
		seq := ev.seq
		c.health = c.clock.AfterFunc(healthyAfter, func() {
			c.transition(connEvent{kind: evHealthy, seq: seq})
		})
		go c.pump(ev.seq, ev.sub)
		l.Info("subscribed to assignments", "driver_id", c.driverID, "attempt", c.attempts)

	case evHealthy:
		if ev.seq != c.seq || prev != model.ConnectionConnected {
			break
		}
		c.stopHealthLocked()
		if c.attempts > 0 {
			l.Info("subscription healthy, attempts reset", "attempts", c.attempts)
			c.attempts = 0
		}

	case evDialFailed, evClosed:
		if ev.seq != c.seq {
			break
		}
		if ev.kind == evDialFailed && prev != model.ConnectionConnecting {
			break
		}
		if ev.kind == evClosed && prev != model.ConnectionConnected {
			break
		}
		if errors.Is(ev.err, myerrors.ErrProtocol) {
			l.Error("protocol error from dispatch server", ev.err, "attempt", c.attempts)
		} else if ev.err != nil {
			l.Warn("dispatch transport failed", "error", ev.err.Error(), "attempt", c.attempts)
		}
		c.stopHealthLocked()
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		if c.attempts >= c.maxAttempts {
			c.state = model.ConnectionFailed
			reason := "transport closed"
			if ev.err != nil {
				reason = ev.err.Error()
			}
			out = append(out, event.NewConnectionLost(c.clock.Now(), c.attempts, reason))
			l.Warn("reconnect attempts exhausted", "attempts", c.attempts)
			break
		}
		c.attempts++
		c.state = model.ConnectionBackoff
		seq := c.seq
		c.backoff = c.clock.AfterFunc(c.reconnectDelay, func() {
			c.transition(connEvent{kind: evBackoffElapsed, seq: seq})
		})
		l.Info("reconnect scheduled", "attempt", c.attempts, "delay", c.reconnectDelay.String())

	case evBackoffElapsed:
		if ev.seq != c.seq || prev != model.ConnectionBackoff {
			break
		}
		c.backoff = nil
		c.startDialLocked()

	case evNetworkRestored:
		if prev != model.ConnectionBackoff {
			l.Debug("network restored, nothing to do")
			break
		}
		if c.backoff != nil {
			c.backoff.Stop()
			c.backoff = nil
		}
		l.Info("network restored, reconnecting now", "attempt", c.attempts)
		c.startDialLocked()
	}

	if c.state != prev {
		out = append([]event.Event{event.NewConnectionStateChanged(c.clock.Now(), c.state, c.attempts)}, out...)
	}
	c.mu.Unlock()

	for _, e := range out {
		c.bus.Publish(e)
	}
}

// startDialLocked moves to CONNECTING and opens a subscription asynchronously.
func (c *DispatchConnection) startDialLocked() {
	c.seq++
	seq := c.seq
	ctx, cancel := context.WithCancel(c.parent)
	c.cancel = cancel
	c.state = model.ConnectionConnecting
	c.dials++
	driverID := c.driverID

	go func() {
		sub, err := c.transport.Subscribe(ctx, driverID)
		if err != nil {
			c.transition(connEvent{kind: evDialFailed, seq: seq, err: err})
			return
		}
		c.transition(connEvent{kind: evDialOK, seq: seq, sub: sub})
	}()
}

func (c *DispatchConnection) stopHealthLocked() {
	if c.health != nil {
		c.health.Stop()
		c.health = nil
	}
}

func (c *DispatchConnection) stopLocked() {
	c.stopHealthLocked()
	if c.backoff != nil {
		c.backoff.Stop()
		c.backoff = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// pump hands payloads to the handler one at a time until the subscription
// ends, then reports the close reason.
func (c *DispatchConnection) pump(seq uint64, sub driven.ISubscription) {
	delivered := false
	for payload := range sub.Payloads() {
		c.mu.Lock()
		current := seq == c.seq
		handler := c.handler
		driverID := c.driverID
		c.mu.Unlock()
		if !current {
			continue
		}
		if !delivered {
			delivered = true
			c.transition(connEvent{kind: evHealthy, seq: seq})
		}

		offer, err := decodeAssignment(payload, driverID, c.clock.Now())
		if err != nil {
			c.log.Action("assignment_dropped").Warn("dropping malformed assignment",
				"error", err.Error(), "payload", truncate(payload, 256))
			continue
		}
		if handler != nil {
			handler(offer)
		}
	}
	err := sub.Err()
	if err == nil {
		err = fmt.Errorf("%w: subscription closed", myerrors.ErrTransport)
	}
	c.transition(connEvent{kind: evClosed, seq: seq, err: err})
}

// decodeAssignment validates an order_assignment payload and turns it into
// an OFFERED OrderOffer.
func decodeAssignment(payload []byte, driverID string, now time.Time) (model.OrderOffer, error) {
	var msg dto.OrderAssignmentMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return model.OrderOffer{}, fmt.Errorf("%w: %v", myerrors.ErrMalformedPayload, err)
	}
	if msg.Type != "" && msg.Type != dto.MessageTypeOrderAssignment {
		return model.OrderOffer{}, fmt.Errorf("%w: unexpected message type %q", myerrors.ErrMalformedPayload, msg.Type)
	}
	if msg.OrderID == "" {
		return model.OrderOffer{}, fmt.Errorf("%w: order_id is required", myerrors.ErrMalformedPayload)
	}
	if msg.DriverID != "" && msg.DriverID != driverID {
		return model.OrderOffer{}, fmt.Errorf("%w: assignment for driver %s", myerrors.ErrMalformedPayload, msg.DriverID)
	}
	restaurant := model.Coord{Latitude: msg.Restaurant.Lat, Longitude: msg.Restaurant.Lng}
	customer := model.Coord{Latitude: msg.Customer.Lat, Longitude: msg.Customer.Lng}
	if restaurant.IsZero() || customer.IsZero() {
		return model.OrderOffer{}, fmt.Errorf("%w: restaurant and customer coordinates are required", myerrors.ErrMalformedPayload)
	}
	if msg.ExpiresAtMs != 0 && msg.ExpiresAtMs <= now.UnixMilli() {
		return model.OrderOffer{}, fmt.Errorf("%w: offer already expired", myerrors.ErrMalformedPayload)
	}

	offeredAt := msg.OfferedAtMs
	if offeredAt == 0 {
		offeredAt = now.UnixMilli()
	}
	return model.OrderOffer{
		OrderID:          msg.OrderID,
		DriverID:         driverID,
		CustomerID:       msg.CustomerID,
		OfferedAtEpochMs: offeredAt,
		ExpiresAtEpochMs: msg.ExpiresAtMs,
		Restaurant:       model.Place{Coord: restaurant, Address: msg.Restaurant.Address},
		Customer:         model.Place{Coord: customer, Address: msg.Customer.Address},
		Payment: model.Payment{
			Amount:   msg.Payment.Amount,
			Currency: msg.Payment.Currency,
			Method:   msg.Payment.Method,
		},
		State: model.OfferOffered,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
