package position

import (
	"context"
	"math"
	"testing"
	"time"

	"driver-agent/internal/clock"
	"driver-agent/internal/driver-agent/core/domain/model"
)

var (
	start  = model.Coord{Latitude: 43.2380, Longitude: 76.8890}
	target = model.Coord{Latitude: 43.2470, Longitude: 76.8890} // ~1000m north
)

func TestSimulator_StepMovesTowardTarget(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	sim := NewSimulator(start, 100, time.Second, clk)

	idle := sim.step()
	if idle.Coord != start || idle.SpeedMps != 0 {
		t.Fatalf("idle step moved: %+v", idle)
	}

	sim.SetTarget(target)
	total := model.DistanceMeters(start, target)
	pos := sim.step()
	moved := model.DistanceMeters(start, pos.Coord)
	if math.Abs(moved-100) > 1 {
		t.Errorf("moved %.1fm, want ~100m", moved)
	}
	if math.Abs(pos.HeadingDeg) > 0.5 && math.Abs(pos.HeadingDeg-360) > 0.5 {
		t.Errorf("heading = %.2f, want ~0 (north)", pos.HeadingDeg)
	}
	if pos.SpeedMps != 100 {
		t.Errorf("speed = %v", pos.SpeedMps)
	}

	steps := int(math.Ceil(total/100)) + 1
	for i := 0; i < steps; i++ {
		pos = sim.step()
	}
	if pos.Coord != target {
		t.Errorf("did not arrive: %+v", pos.Coord)
	}
	if after := sim.step(); after.SpeedMps != 0 || after.Coord != target {
		t.Errorf("kept moving after arrival: %+v", after)
	}
}

func TestSimulator_PositionsFollowTicker(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	sim := NewSimulator(start, 50, 2*time.Second, clk)
	sim.SetTarget(target)

	ctx, cancel := context.WithCancel(context.Background())
	positions, err := sim.Positions(ctx)
	if err != nil {
		t.Fatal(err)
	}

	clk.Advance(2 * time.Second)
	select {
	case pos := <-positions:
		if got := model.DistanceMeters(start, pos.Coord); math.Abs(got-100) > 1 {
			t.Errorf("first fix %.1fm from start, want ~100m", got)
		}
		if !pos.CapturedAt.Equal(clk.Now()) {
			t.Errorf("captured at %v, want %v", pos.CapturedAt, clk.Now())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no position after a tick")
	}

	cancel()
	select {
	case _, ok := <-positions:
		if ok {
			// a tick raced the cancel; the channel still closes afterwards
			<-positions
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestBearing(t *testing.T) {
	east := bearing(model.Coord{Latitude: 0, Longitude: 0}, model.Coord{Latitude: 0, Longitude: 1})
	if math.Abs(east-90) > 0.01 {
		t.Errorf("east bearing = %v", east)
	}
	south := bearing(model.Coord{Latitude: 1, Longitude: 0}, model.Coord{Latitude: 0, Longitude: 0})
	if math.Abs(south-180) > 0.01 {
		t.Errorf("south bearing = %v", south)
	}
}
