package driveragent

import (
	"context"
	"errors"
	"testing"

	"driver-agent/internal/config"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/myerrors"
	"driver-agent/internal/mylogger"

	"github.com/golang-jwt/jwt"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	chdir(t, t.TempDir())
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.New()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestResolveDriverID(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"driver_id": "driver-from-token",
		"role":      "DRIVER",
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, map[string]string{"DRIVER_TOKEN": token, "JWT_SECRET": "secret"})
	if id, err := ResolveDriverID(cfg); err != nil || id != "driver-from-token" {
		t.Errorf("from token = %q, %v", id, err)
	}

	cfg.Driver.ID = "driver-explicit"
	if id, _ := ResolveDriverID(cfg); id != "driver-explicit" {
		t.Errorf("explicit id = %q", id)
	}

	cfg.Driver.ID = ""
	cfg.Driver.Token = ""
	if _, err := ResolveDriverID(cfg); !errors.Is(err, myerrors.ErrInvalidToken) {
		t.Errorf("empty token err = %v", err)
	}
}

func TestNew_WiresOfflineAgent(t *testing.T) {
	cfg := testConfig(t, map[string]string{"DRIVER_ID": "driver-7", "PENDING_STORE": "memory"})

	ctx := context.Background()
	agent, err := New(ctx, mylogger.Nop(), cfg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if agent.Feed == nil {
		t.Error("expected a position feed when not simulating")
	}
	if len(agent.Checks) != 0 {
		t.Errorf("health checks = %d, want none without a broker or database", len(agent.Checks))
	}
	view := agent.Session.View()
	if view.Session.DriverID != "driver-7" || view.Session.Online || view.Status != model.StatusAvailable {
		t.Errorf("view = %+v", view)
	}
	if err := agent.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNew_SimulatedUsesFileStore(t *testing.T) {
	cfg := testConfig(t, map[string]string{"DRIVER_ID": "driver-7"})
	cfg.Pending.Dir = t.TempDir()

	ctx := context.Background()
	agent, err := New(ctx, mylogger.Nop(), cfg, Options{Simulate: true, Start: model.Coord{Latitude: 43.2, Longitude: 76.9}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if agent.Feed != nil {
		t.Error("simulated agent should not expose a feed")
	}
	if len(agent.subs) != 2 {
		t.Errorf("simulator subscriptions = %d, want 2", len(agent.subs))
	}

	locations, trips := agent.Session.FlushPending(ctx)
	if locations.Sent != 0 || trips.Remaining != 0 {
		t.Errorf("flush on empty store = %+v %+v", locations, trips)
	}
	if err := agent.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
}
