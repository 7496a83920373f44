package position

import (
	"context"
	"sync"

	"driver-agent/internal/clock"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/ports/driven"
)

const feedBuffer = 16

// Feed is a position source filled from outside, typically by the device GPS
// collaborator through the UI bridge.
type Feed struct {
	clk clock.Clock

	mu  sync.Mutex
	out chan model.Position
}

var _ driven.IPositionSource = (*Feed)(nil)

func NewFeed(clk clock.Clock) *Feed {
	return &Feed{clk: clk}
}

// Positions replaces any previous subscriber. The channel closes when ctx is done.
func (f *Feed) Positions(ctx context.Context) (<-chan model.Position, error) {
	ch := make(chan model.Position, feedBuffer)

	f.mu.Lock()
	if f.out != nil {
		close(f.out)
	}
	f.out = ch
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.out == ch {
			close(ch)
			f.out = nil
		}
	}()
	return ch, nil
}

// Push hands a fix to the current subscriber. It reports false when nobody
// is listening or the subscriber is behind.
func (f *Feed) Push(p model.Position) bool {
	if p.CapturedAt.IsZero() {
		p.CapturedAt = f.clk.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out == nil {
		return false
	}
	select {
	case f.out <- p:
		return true
	default:
		return false
	}
}
