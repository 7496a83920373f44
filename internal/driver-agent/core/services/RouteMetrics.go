package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"driver-agent/internal/clock"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/ports/driven"
	"driver-agent/internal/event"
	"driver-agent/internal/mylogger"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
)

// coordPrecision is the number of decimals kept in the debounce key
// (~11m at 4 decimals).
const coordPrecision = 4

type routeKey string

func makeRouteKey(driver, restaurant, customer model.Coord) routeKey {
	round := func(v float64) float64 {
		p := math.Pow(10, coordPrecision)
		return math.Round(v*p) / p
	}
	return routeKey(fmt.Sprintf("%.4f,%.4f|%.4f,%.4f|%.4f,%.4f",
		round(driver.Latitude), round(driver.Longitude),
		round(restaurant.Latitude), round(restaurant.Longitude),
		round(customer.Latitude), round(customer.Longitude)))
}

// RouteMetrics combines driver→restaurant and restaurant→customer legs into
// a RouteInfo. Recomputation only happens when the rounded inputs change.
type RouteMetrics struct {
	routing     driven.IRoutingClient
	clock       clock.Clock
	bus         *event.Bus
	log         mylogger.Logger
	callTimeout time.Duration

	// inflight collapses concurrent fetches for the same order and key
	inflight singleflight.Group

	mu      sync.Mutex
	orderID string
	key     routeKey
	info    model.RouteInfo
	has     bool
	fetches int
	// gen is bumped by Reset so fetches started before it are not cached
	gen uint64
}

func NewRouteMetrics(routing driven.IRoutingClient, clk clock.Clock, bus *event.Bus, log mylogger.Logger, callTimeout time.Duration) *RouteMetrics {
	return &RouteMetrics{
		routing:     routing,
		clock:       clk,
		bus:         bus,
		log:         log,
		callTimeout: callTimeout,
	}
}

// Compute fetches both legs concurrently. A failed leg counts as zero and
// marks the result degraded; Compute itself never fails.
func (m *RouteMetrics) Compute(ctx context.Context, driver, restaurant, customer model.Coord) model.RouteInfo {
	ctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	var pickup, delivery *model.RouteLeg
	l := m.log.Action("route_compute")

	var wg conc.WaitGroup
	wg.Go(func() {
		leg, err := m.routing.Leg(ctx, driver, restaurant)
		if err != nil {
			l.Warn("pickup leg failed", "error", err.Error())
			return
		}
		pickup = &leg
	})
	wg.Go(func() {
		leg, err := m.routing.Leg(ctx, restaurant, customer)
		if err != nil {
			l.Warn("delivery leg failed", "error", err.Error())
			return
		}
		delivery = &leg
	})
	wg.Wait()

	return model.CombineLegs(pickup, delivery)
}

// Update recomputes the route for an order when the inputs moved enough to
// change the rounded key. It reports whether this call fetched; a caller that
// joins a fetch already in flight gets its result and false.
func (m *RouteMetrics) Update(ctx context.Context, orderID string, driver, restaurant, customer model.Coord) (model.RouteInfo, bool) {
	key := makeRouteKey(driver, restaurant, customer)

	m.mu.Lock()
	if m.has && m.orderID == orderID && m.key == key {
		info := m.info
		m.mu.Unlock()
		return info, false
	}
	gen := m.gen
	m.mu.Unlock()

	fetched := false
	v, _, _ := m.inflight.Do(orderID+"#"+string(key), func() (any, error) {
		fetched = true
		info := m.Compute(ctx, driver, restaurant, customer)

		m.mu.Lock()
		m.fetches++
		current := gen == m.gen
		if current {
			m.orderID = orderID
			m.key = key
			m.info = info
			m.has = true
		}
		m.mu.Unlock()

		if current {
			m.bus.Publish(event.NewRouteUpdated(m.clock.Now(), orderID, info))
		}
		return info, nil
	})
	return v.(model.RouteInfo), fetched
}

// Current returns the last route computed for orderID.
func (m *RouteMetrics) Current(orderID string) (model.RouteInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.has || m.orderID != orderID {
		return model.RouteInfo{}, false
	}
	return m.info, true
}

// Reset forgets the cached route.
func (m *RouteMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.has = false
	m.orderID = ""
	m.key = ""
}

// Fetches reports how many times legs were fetched through Update.
func (m *RouteMetrics) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}
