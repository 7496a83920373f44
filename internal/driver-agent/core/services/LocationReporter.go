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
	"driver-agent/internal/driver-agent/core/ports/driven"
	"driver-agent/internal/mylogger"
)

// LocationReporter samples the driver's position on an interval or after a
// minimum displacement and ships each sample without waiting for the
// previous send. Failed sends are queued as LOCATION updates.
type LocationReporter struct {
	source          driven.IPositionSource
	sink            driven.ILocationSink
	pending         *PendingStore
	clock           clock.Clock
	log             mylogger.Logger
	interval        time.Duration
	minDisplacement float64
	callTimeout     time.Duration

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	driverID    string
	status      model.DriverStatus
	last        *model.Position
	lastSampled *model.Coord

	sends sync.WaitGroup
	loop  sync.WaitGroup
}

func NewLocationReporter(source driven.IPositionSource, sink driven.ILocationSink, pending *PendingStore, clk clock.Clock, log mylogger.Logger, interval time.Duration, minDisplacement float64, callTimeout time.Duration) *LocationReporter {
	return &LocationReporter{
		source:          source,
		sink:            sink,
		pending:         pending,
		clock:           clk,
		log:             log,
		interval:        interval,
		minDisplacement: minDisplacement,
		callTimeout:     callTimeout,
		status:          model.StatusAvailable,
	}
}

// Start begins sampling. A second Start without Stop is a no-op.
func (r *LocationReporter) Start(ctx context.Context, driverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	positions, err := r.source.Positions(loopCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("open position source: %w", err)
	}

	r.running = true
	r.cancel = cancel
	r.driverID = driverID
	r.lastSampled = nil

	ticker := r.clock.NewTicker(r.interval)
	r.loop.Add(1)
	go r.run(loopCtx, positions, ticker)

	r.log.Action("location_start").Info("location reporting started",
		"driver_id", driverID, "interval", r.interval.String(), "min_displacement_m", r.minDisplacement)
	return nil
}

// Stop cancels sampling. Sends already in flight finish on their own timeout.
func (r *LocationReporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.cancel = nil
	r.mu.Unlock()

	r.loop.Wait()
	r.log.Action("location_stop").Info("location reporting stopped")
}

func (r *LocationReporter) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *LocationReporter) SetStatus(status model.DriverStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *LocationReporter) Status() model.DriverStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// LastPosition returns the most recent fix seen from the source.
func (r *LocationReporter) LastPosition() (model.Coord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return model.Coord{}, false
	}
	return r.last.Coord, true
}

func (r *LocationReporter) run(ctx context.Context, positions <-chan model.Position, ticker clock.Ticker) {
	defer r.loop.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case pos, ok := <-positions:
			if !ok {
				r.log.Action("location_source_closed").Warn("position source closed")
				positions = nil
				continue
			}
			r.mu.Lock()
			r.last = &pos
			moved := r.lastSampled == nil || model.DistanceMeters(*r.lastSampled, pos.Coord) >= r.minDisplacement
			r.mu.Unlock()
			if moved {
				r.sample(ctx, pos)
			}
		case <-ticker.C():
			r.mu.Lock()
			var pos *model.Position
			if r.last != nil {
				p := *r.last
				p.CapturedAt = r.clock.Now()
				pos = &p
			}
			r.mu.Unlock()
			if pos != nil {
				r.sample(ctx, *pos)
			}
		}
	}
}

func (r *LocationReporter) sample(ctx context.Context, pos model.Position) {
	r.mu.Lock()
	sample := model.NewLocationSample(pos, r.status)
	coord := pos.Coord
	r.lastSampled = &coord
	driverID := r.driverID
	r.mu.Unlock()

	r.sends.Add(1)
	go func() {
		defer r.sends.Done()
		r.ship(context.WithoutCancel(ctx), driverID, sample)
	}()
}

func (r *LocationReporter) ship(ctx context.Context, driverID string, sample model.LocationSample) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	err := r.sink.SendLocation(callCtx, driverID, sample)
	cancel()
	if err == nil {
		return
	}

	l := r.log.Action("location_enqueued")
	l.Debug("location send failed, queued for retry", "error", err.Error(), "captured_at_ms", sample.CapturedAtEpochMs)
	req := dto.LocationUpdateRequest{DriverID: driverID, LocationSample: sample}
	if qerr := r.pending.Enqueue(ctx, model.KindLocation, req); qerr != nil {
		l.Error("cannot queue location update", qerr)
	}
}

// FlushPending retries queued samples oldest-first.
func (r *LocationReporter) FlushPending(ctx context.Context) (model.DrainResult, error) {
	return r.pending.Drain(ctx, model.KindLocation, func(ctx context.Context, u model.PendingUpdate) error {
		var req dto.LocationUpdateRequest
		if err := json.Unmarshal(u.Payload, &req); err != nil {
			r.log.Action("location_flush").Error("dropping unreadable pending location", err, "id", u.ID)
			return nil
		}
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
		return r.sink.SendLocation(callCtx, req.DriverID, req.LocationSample)
	})
}

// Wait blocks until in-flight sends have returned.
func (r *LocationReporter) Wait() {
	r.sends.Wait()
}
