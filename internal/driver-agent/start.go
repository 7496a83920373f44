package driveragent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"driver-agent/internal/clock"
	"driver-agent/internal/config"
	"driver-agent/internal/driver-agent/adapters/driven/backend"
	"driver-agent/internal/driver-agent/adapters/driven/bm"
	"driver-agent/internal/driver-agent/adapters/driven/db"
	"driver-agent/internal/driver-agent/adapters/driven/filestore"
	"driver-agent/internal/driver-agent/adapters/driven/kafka"
	"driver-agent/internal/driver-agent/adapters/driven/position"
	"driver-agent/internal/driver-agent/adapters/driven/routing"
	"driver-agent/internal/driver-agent/adapters/driven/ws"
	"driver-agent/internal/driver-agent/adapters/driver/uibridge"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/ports/driven"
	"driver-agent/internal/driver-agent/core/services"
	"driver-agent/internal/event"
	"driver-agent/internal/mylogger"
)

const shutdownTimeout = 10 * time.Second

// Options are the run-time switches that do not belong in the config file.
type Options struct {
	Simulate bool
	Start    model.Coord
	SpeedMps float64
	// AutoOnline goes online as soon as the agent is up.
	AutoOnline bool
}

// Agent is the fully wired coordinator for one driver.
type Agent struct {
	DriverID string
	Session  *services.SessionCoordinator
	Bus      *event.Bus
	// Feed is nil when positions are simulated.
	Feed *position.Feed

	// Checks are the backing connections /healthz reports on.
	Checks map[string]uibridge.HealthCheck

	log     mylogger.Logger
	subs    []uint64
	closers []func()
}

// ResolveDriverID prefers the configured id and falls back to the token.
func ResolveDriverID(cfg *config.Config) (string, error) {
	if cfg.Driver.ID != "" {
		return cfg.Driver.ID, nil
	}
	id, err := services.NewAuthService(cfg.Driver.JWTSecret).DriverIDFromToken(cfg.Driver.Token)
	if err != nil {
		return "", fmt.Errorf("resolve driver id: %w", err)
	}
	return id, nil
}

// New wires every component. appCtx bounds the lifetime of background work.
func New(appCtx context.Context, l mylogger.Logger, cfg *config.Config, opts Options) (*Agent, error) {
	driverID, err := ResolveDriverID(cfg)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		DriverID: driverID,
		Bus:      event.NewBus(l),
		Checks:   make(map[string]uibridge.HealthCheck),
		log:      l.With("driver_id", driverID),
	}
	ok := false
	defer func() {
		if !ok {
			a.closeAll()
		}
	}()

	clk := clock.Real{}
	callTimeout := cfg.Backend.Timeout
	api := backend.NewClient(cfg.Backend.BaseURL, cfg.Driver.Token, callTimeout, a.log)

	var broker *bm.RabbitMQ
	rabbit := func() (*bm.RabbitMQ, error) {
		if broker != nil {
			return broker, nil
		}
		b, err := bm.New(cfg.RabbitMq, a.log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		broker = b
		a.Checks["rabbitmq"] = func(context.Context) error {
			if !b.IsAlive() {
				return errors.New("rabbitmq connection is closed")
			}
			return nil
		}
		a.closers = append(a.closers, func() {
			if err := b.Close(); err != nil {
				a.log.Error("failed to close rabbitmq", err)
			}
		})
		return b, nil
	}

	transport, err := a.assignmentTransport(cfg, rabbit)
	if err != nil {
		return nil, err
	}
	sink, err := a.locationSink(cfg, api, rabbit)
	if err != nil {
		return nil, err
	}
	repo, err := a.pendingRepository(appCtx, cfg)
	if err != nil {
		return nil, err
	}

	var source driven.IPositionSource
	var sim *position.Simulator
	if opts.Simulate {
		speed := opts.SpeedMps
		if speed <= 0 {
			speed = 10
		}
		sim = position.NewSimulator(opts.Start, speed, time.Second, clk)
		source = sim
	} else {
		a.Feed = position.NewFeed(clk)
		source = a.Feed
	}

	pending := services.NewPendingStore(repo, clk, a.log, cfg.Pending.Capacity, map[model.UpdateKind]time.Duration{
		model.KindLocation:   cfg.Pending.LocationRetention,
		model.KindTripCreate: cfg.Pending.TripRetention,
	})
	reporter := services.NewLocationReporter(source, sink, pending, clk, a.log,
		cfg.Location.Interval, cfg.Location.MinDisplacement, callTimeout)
	trips := services.NewTripRecorder(api, pending, reporter, clk, a.Bus, a.log, callTimeout)
	routes := services.NewRouteMetrics(routing.NewOSRMClient(cfg.Routing.BaseURL, cfg.Routing.Timeout), clk, a.Bus, a.log, cfg.Routing.Timeout)
	negotiator := services.NewOfferNegotiator(api, trips, routes, reporter, clk, a.Bus, a.log, cfg.Offer.Countdown, callTimeout)
	dispatch := services.NewDispatchConnection(transport, clk, a.Bus, a.log, cfg.Dispatch.ReconnectDelay, cfg.Dispatch.MaxAttempts)

	a.Session = services.NewSessionCoordinator(appCtx, driverID, dispatch, reporter, negotiator, trips, routes, a.Bus, clk, a.log)
	if sim != nil {
		a.followTrip(sim)
	}

	ok = true
	return a, nil
}

// Close goes offline, waits for background work and releases connections.
func (a *Agent) Close(ctx context.Context) error {
	for _, id := range a.subs {
		a.Bus.Unsubscribe(id)
	}
	err := a.Session.Shutdown(ctx)
	a.closeAll()
	return err
}

func (a *Agent) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *Agent) assignmentTransport(cfg *config.Config, rabbit func() (*bm.RabbitMQ, error)) (driven.IAssignmentTransport, error) {
	switch cfg.Dispatch.Transport {
	case "amqp":
		b, err := rabbit()
		if err != nil {
			return nil, err
		}
		return bm.NewAssignmentTransport(b, a.log), nil
	default:
		return ws.NewAssignmentTransport(cfg.Dispatch.WSURL, cfg.Driver.Token, cfg.Backend.Timeout, a.log), nil
	}
}

func (a *Agent) locationSink(cfg *config.Config, api *backend.Client, rabbit func() (*bm.RabbitMQ, error)) (driven.ILocationSink, error) {
	switch cfg.Location.Sink {
	case "amqp":
		b, err := rabbit()
		if err != nil {
			return nil, err
		}
		return bm.NewLocationSink(b), nil
	case "kafka":
		sink := kafka.NewLocationSink(kafka.NewKafkaProducer(cfg.Kafka))
		a.closers = append(a.closers, func() {
			if err := sink.Close(); err != nil {
				a.log.Error("failed to close kafka writer", err)
			}
		})
		return sink, nil
	default:
		return api, nil
	}
}

func (a *Agent) pendingRepository(ctx context.Context, cfg *config.Config) (driven.IPendingRepository, error) {
	switch cfg.Pending.Store {
	case "memory":
		return services.NewMemoryRepository(), nil
	case "postgres":
		database, err := db.ConnectDB(ctx, cfg.DB, a.log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		a.Checks["postgres"] = database.IsAlive
		return db.NewPendingRepository(ctx, database.Pool())
	default:
		return filestore.NewPendingRepository(cfg.Pending.Dir, a.log)
	}
}

// followTrip steers the simulator to the restaurant once an offer is
// accepted and to the customer after pickup.
func (a *Agent) followTrip(sim *position.Simulator) {
	a.subs = append(a.subs,
		a.Bus.Subscribe(event.TypeOfferStateChanged, func(e event.Event) {
			if ev, ok := e.(event.OfferStateChanged); ok && ev.Offer.State == model.OfferAccepted {
				sim.SetTarget(ev.Offer.Restaurant.Coord)
			}
		}),
		a.Bus.Subscribe(event.TypeTripStatusAdvanced, func(e event.Event) {
			ev, ok := e.(event.TripStatusAdvanced)
			if !ok || ev.Stage != model.AdvancePickup {
				return
			}
			for _, wp := range ev.Trip.Waypoints {
				if wp.Kind == model.WaypointDropoff {
					sim.SetTarget(wp.Coord)
				}
			}
		}),
	)
}

// Run serves the UI bridge until SIGINT/SIGTERM and then goes offline.
func Run(ctx context.Context, l mylogger.Logger, cfg *config.Config, opts Options) error {
	shutdown, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent, err := New(shutdown, l, cfg, opts)
	if err != nil {
		return err
	}

	var feed uibridge.PositionFeed
	if agent.Feed != nil {
		feed = agent.Feed
	}
	srv := uibridge.NewServer(agent.Session, feed, agent.Bus, cfg.UI.Port, l)
	for name, check := range agent.Checks {
		srv.AddHealthCheck(name, check)
	}
	if cfg.UI.RequireAuth {
		srv.RequireDriverToken(services.NewAuthService(cfg.Driver.JWTSecret), agent.DriverID)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(shutdown) }()

	if opts.AutoOnline {
		if err := agent.Session.GoOnline(shutdown); err != nil {
			l.Error("failed to go online", err)
		}
	}

	var runErr error
	select {
	case <-shutdown.Done():
		l.Info("Gracefully shutting down...")
	case runErr = <-errCh:
		if runErr != nil {
			l.Error("ui bridge stopped", runErr)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := agent.Close(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Flush drains both pending partitions once without going online.
func Flush(ctx context.Context, l mylogger.Logger, cfg *config.Config) (locations, trips model.DrainResult, err error) {
	agent, err := New(ctx, l, cfg, Options{})
	if err != nil {
		return locations, trips, err
	}
	locations, trips = agent.Session.FlushPending(ctx)
	return locations, trips, agent.Close(ctx)
}
