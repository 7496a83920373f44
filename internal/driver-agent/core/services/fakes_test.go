package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"driver-agent/internal/clock"
	"driver-agent/internal/driver-agent/core/domain/dto"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/myerrors"
	"driver-agent/internal/driver-agent/core/ports/driven"
	"driver-agent/internal/event"
)

var testStart = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestClock() *clock.Manual { return clock.NewManual(testStart) }

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type fakeConn struct {
	ch   chan []byte
	once sync.Once
	err  error
}

func (c *fakeConn) Payloads() <-chan []byte { return c.ch }

func (c *fakeConn) Err() error { return c.err }

func (c *fakeConn) close() { c.closeWith(nil) }

// closeWith drops the subscription and reports err as the reason.
func (c *fakeConn) closeWith(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.ch)
	})
}

// fakeTransport hands out in-memory subscriptions or fails every dial when
// fail is set.
type fakeTransport struct {
	mu    sync.Mutex
	fail  bool
	calls int
	conns []*fakeConn
}

func (f *fakeTransport) Subscribe(ctx context.Context, driverID string) (driven.ISubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("%w: connection refused", myerrors.ErrTransport)
	}
	conn := &fakeConn{ch: make(chan []byte, 8)}
	f.conns = append(f.conns, conn)
	go func() {
		<-ctx.Done()
		conn.close()
	}()
	return conn, nil
}

func (f *fakeTransport) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

func (f *fakeTransport) push(t *testing.T, payload []byte) {
	t.Helper()
	conn := f.last()
	if conn == nil {
		t.Fatal("no open subscription")
	}
	conn.ch <- payload
}

// fakeBackend records every call. The *Err fields are returned as-is.
type fakeBackend struct {
	mu         sync.Mutex
	acceptErr  error
	declineErr error
	createErr  error
	statusErr  error
	accepts    []dto.OfferResponseRequest
	declines   []dto.OfferResponseRequest
	creates    []dto.TripCreateRequest
	statuses   []dto.TripStatusRequest

	acceptStarted chan struct{}
	acceptRelease chan struct{}
}

func (f *fakeBackend) AcceptOffer(_ context.Context, req dto.OfferResponseRequest) error {
	f.mu.Lock()
	f.accepts = append(f.accepts, req)
	started, release := f.acceptStarted, f.acceptRelease
	err := f.acceptErr
	f.mu.Unlock()
	if release != nil {
		close(started)
		<-release
	}
	return err
}

// holdAccept makes the next AcceptOffer block until release is closed.
func (f *fakeBackend) holdAccept() (started <-chan struct{}, release chan<- struct{}) {
	s, r := make(chan struct{}), make(chan struct{})
	f.set(func(b *fakeBackend) {
		b.acceptStarted = s
		b.acceptRelease = r
	})
	return s, r
}

func (f *fakeBackend) DeclineOffer(_ context.Context, req dto.OfferResponseRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declines = append(f.declines, req)
	return f.declineErr
}

func (f *fakeBackend) CreateTrip(_ context.Context, req dto.TripCreateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	return f.createErr
}

func (f *fakeBackend) UpdateTripStatus(_ context.Context, req dto.TripStatusRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, req)
	return f.statusErr
}

func (f *fakeBackend) set(fn func(b *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) counts() (accepts, declines, creates, statuses int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accepts), len(f.declines), len(f.creates), len(f.statuses)
}

type fakeSink struct {
	mu      sync.Mutex
	err     error
	samples []model.LocationSample
	failed  int
}

func (f *fakeSink) SendLocation(_ context.Context, _ string, sample model.LocationSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		f.failed++
		return f.err
	}
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeSink) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSink) sent() []model.LocationSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.LocationSample(nil), f.samples...)
}

func (f *fakeSink) failures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

// fakeRouting answers legs with fixed values. The leg ending at the
// restaurant is the pickup leg; any other leg is the delivery leg.
type fakeRouting struct {
	mu         sync.Mutex
	pickup     model.RouteLeg
	delivery   model.RouteLeg
	pickupOK   bool
	deliveryOK bool
	calls      int
	// gate, when set, holds every Leg call until it is closed
	gate chan struct{}
}

func newFakeRouting() *fakeRouting {
	return &fakeRouting{
		pickup:     model.RouteLeg{DistanceM: 1200, DurationS: 180},
		delivery:   model.RouteLeg{DistanceM: 3400, DurationS: 540},
		pickupOK:   true,
		deliveryOK: true,
	}
}

func (f *fakeRouting) Leg(_ context.Context, from, to model.Coord) (model.RouteLeg, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if to == restaurantCoord {
		if !f.pickupOK {
			return model.RouteLeg{}, fmt.Errorf("%w: routing unavailable", myerrors.ErrTransport)
		}
		return f.pickup, nil
	}
	if !f.deliveryOK {
		return model.RouteLeg{}, fmt.Errorf("%w: no route found", myerrors.ErrTransport)
	}
	return f.delivery, nil
}

func (f *fakeRouting) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePositions struct {
	mu     sync.Mutex
	ch     chan model.Position
	opened int
}

func newFakePositions() *fakePositions {
	return &fakePositions{ch: make(chan model.Position, 16)}
}

func (f *fakePositions) Positions(context.Context) (<-chan model.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return f.ch, nil
}

func (f *fakePositions) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// collector records every event published on the bus.
type collector struct {
	mu     sync.Mutex
	events []event.Event
}

func collect(bus *event.Bus) *collector {
	c := &collector{}
	bus.SubscribeAll(func(e event.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, e)
	})
	return c
}

func (c *collector) ofType(eventType string) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, e := range c.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (c *collector) offerStates() []model.OfferState {
	var out []model.OfferState
	for _, e := range c.ofType(event.TypeOfferStateChanged) {
		out = append(out, e.(event.OfferStateChanged).Offer.State)
	}
	return out
}

func (c *collector) connectionStates() []model.ConnectionState {
	var out []model.ConnectionState
	for _, e := range c.ofType(event.TypeConnectionStateChanged) {
		out = append(out, e.(event.ConnectionStateChanged).State)
	}
	return out
}

var (
	restaurantCoord = model.Coord{Latitude: 43.2383, Longitude: 76.9456}
	customerCoord   = model.Coord{Latitude: 43.2567, Longitude: 76.9286}
	driverCoord     = model.Coord{Latitude: 43.2220, Longitude: 76.8512}
)

func offerFixture(orderID string) model.OrderOffer {
	return model.OrderOffer{
		OrderID:          orderID,
		DriverID:         "driver-1",
		CustomerID:       "customer-9",
		OfferedAtEpochMs: testStart.UnixMilli(),
		ExpiresAtEpochMs: testStart.Add(time.Minute).UnixMilli(),
		Restaurant:       model.Place{Coord: restaurantCoord, Address: "Abay Ave 10"},
		Customer:         model.Place{Coord: customerCoord, Address: "Dostyk Ave 52"},
		Payment:          model.Payment{Amount: 4200, Currency: "KZT", Method: "CARD"},
		State:            model.OfferOffered,
	}
}

func assignmentPayload(t *testing.T, orderID, driverID string, expiresAt time.Time) []byte {
	t.Helper()
	msg := dto.OrderAssignmentMessage{
		WebSocketMessage: dto.WebSocketMessage{Type: dto.MessageTypeOrderAssignment},
		OrderID:          orderID,
		DriverID:         driverID,
		OfferedAtMs:      testStart.UnixMilli(),
		ExpiresAtMs:      expiresAt.UnixMilli(),
		Restaurant:       dto.LocationDetail{Lat: restaurantCoord.Latitude, Lng: restaurantCoord.Longitude, Address: "Abay Ave 10"},
		Customer:         dto.LocationDetail{Lat: customerCoord.Latitude, Lng: customerCoord.Longitude, Address: "Dostyk Ave 52"},
		Payment:          dto.PaymentDetail{Amount: 4200, Currency: "KZT", Method: "CARD"},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal assignment: %v", err)
	}
	return b
}
