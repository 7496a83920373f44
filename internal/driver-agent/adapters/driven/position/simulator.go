package position

import (
	"context"
	"math"
	"sync"
	"time"

	"driver-agent/internal/clock"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/ports/driven"
)

const (
	simulatedAccuracyM = 5.0
	simulatedBattery   = 0.9
)

// Simulator is a position source that drives in a straight line toward the
// current target, one step per interval.
type Simulator struct {
	clk      clock.Clock
	interval time.Duration
	speedMps float64

	mu      sync.Mutex
	current model.Coord
	target  *model.Coord
	heading float64
}

var _ driven.IPositionSource = (*Simulator)(nil)

func NewSimulator(start model.Coord, speedMps float64, interval time.Duration, clk clock.Clock) *Simulator {
	return &Simulator{
		clk:      clk,
		interval: interval,
		speedMps: speedMps,
		current:  start,
	}
}

// SetTarget starts moving toward c.
func (s *Simulator) SetTarget(c model.Coord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = &c
}

func (s *Simulator) Current() model.Coord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Simulator) Positions(ctx context.Context) (<-chan model.Position, error) {
	out := make(chan model.Position, 1)
	ticker := s.clk.NewTicker(s.interval)

	go func() {
		defer close(out)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				select {
				case out <- s.step():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// step advances one interval and returns the resulting fix. Without a
// target the simulator stands still.
func (s *Simulator) step() model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	speed := 0.0
	if s.target != nil {
		remaining := model.DistanceMeters(s.current, *s.target)
		stepM := s.speedMps * s.interval.Seconds()
		if remaining > 0 {
			s.heading = bearing(s.current, *s.target)
		}
		if remaining <= stepM {
			s.current = *s.target
			s.target = nil
		} else {
			f := stepM / remaining
			s.current = model.Coord{
				Latitude:  s.current.Latitude + (s.target.Latitude-s.current.Latitude)*f,
				Longitude: s.current.Longitude + (s.target.Longitude-s.current.Longitude)*f,
			}
		}
		speed = s.speedMps
	}

	return model.Position{
		Coord:        s.current,
		HeadingDeg:   s.heading,
		SpeedMps:     speed,
		AccuracyM:    simulatedAccuracyM,
		BatteryLevel: simulatedBattery,
		CapturedAt:   s.clk.Now(),
	}
}

// bearing is the initial great-circle bearing from a to b in degrees [0, 360).
func bearing(a, b model.Coord) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
