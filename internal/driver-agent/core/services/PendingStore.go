package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"driver-agent/internal/clock"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/ports/driven"
	"driver-agent/internal/mylogger"

	"github.com/google/uuid"
)

type partition struct {
	mu       sync.Mutex
	draining atomic.Bool
}

// PendingStore is a bounded FIFO of failed writes, partitioned by kind.
// Each partition is capped at capacity entries; the oldest are evicted first.
type PendingStore struct {
	repo       driven.IPendingRepository
	clock      clock.Clock
	log        mylogger.Logger
	capacity   int
	retention  map[model.UpdateKind]time.Duration
	partitions map[model.UpdateKind]*partition
}

func NewPendingStore(repo driven.IPendingRepository, clk clock.Clock, log mylogger.Logger, capacity int, retention map[model.UpdateKind]time.Duration) *PendingStore {
	return &PendingStore{
		repo:      repo,
		clock:     clk,
		log:       log,
		capacity:  capacity,
		retention: retention,
		partitions: map[model.UpdateKind]*partition{
			model.KindLocation:   {},
			model.KindTripCreate: {},
		},
	}
}

func (s *PendingStore) partition(kind model.UpdateKind) (*partition, error) {
	p, ok := s.partitions[kind]
	if !ok {
		return nil, fmt.Errorf("unknown update kind %q", kind)
	}
	return p, nil
}

// Enqueue appends payload to the kind's partition, evicting the oldest
// entries when the partition is over capacity.
func (s *PendingStore) Enqueue(ctx context.Context, kind model.UpdateKind, payload any) error {
	p, err := s.partition(kind)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal pending payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	update := model.PendingUpdate{
		ID:                uuid.NewString(),
		Kind:              kind,
		Payload:           body,
		EnqueuedAtEpochMs: s.clock.Now().UnixMilli(),
	}
	if err := s.repo.Append(ctx, update); err != nil {
		return fmt.Errorf("append pending update: %w", err)
	}

	all, err := s.repo.List(ctx, kind)
	if err != nil {
		return fmt.Errorf("list pending updates: %w", err)
	}
	if over := len(all) - s.capacity; over > 0 {
		evict := make([]string, 0, over)
		for _, u := range all[:over] {
			evict = append(evict, u.ID)
		}
		if err := s.repo.Delete(ctx, kind, evict); err != nil {
			return fmt.Errorf("evict pending updates: %w", err)
		}
		s.log.Action("pending_evicted").Warn("pending queue full, evicted oldest",
			"kind", kind, "evicted", over, "capacity", s.capacity)
	}
	return nil
}

// Pending returns the partition in enqueue order.
func (s *PendingStore) Pending(ctx context.Context, kind model.UpdateKind) ([]model.PendingUpdate, error) {
	p, err := s.partition(kind)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.repo.List(ctx, kind)
}

// Drain attempts send for every queued update oldest-first. Successes and
// entries past the retention window are removed; failures stay queued.
// A drain already running for the same kind makes this call a no-op.
func (s *PendingStore) Drain(ctx context.Context, kind model.UpdateKind, send func(context.Context, model.PendingUpdate) error) (model.DrainResult, error) {
	p, err := s.partition(kind)
	if err != nil {
		return model.DrainResult{}, err
	}
	if !p.draining.CompareAndSwap(false, true) {
		return model.DrainResult{}, nil
	}
	defer p.draining.Store(false)

	p.mu.Lock()
	snapshot, err := s.repo.List(ctx, kind)
	p.mu.Unlock()
	if err != nil {
		return model.DrainResult{}, fmt.Errorf("list pending updates: %w", err)
	}

	l := s.log.Action("pending_drain").With("kind", kind)
	var result model.DrainResult
	var done []string
	now := s.clock.Now()
	for _, u := range snapshot {
		if s.expired(u, now) {
			result.Expired++
			done = append(done, u.ID)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if err := send(ctx, u); err != nil {
			l.Debug("retry failed, keeping entry", "id", u.ID, "error", err.Error())
			continue
		}
		result.Sent++
		done = append(done, u.ID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(done) > 0 {
		if err := s.repo.Delete(ctx, kind, done); err != nil {
			return result, fmt.Errorf("delete drained updates: %w", err)
		}
	}
	rest, err := s.repo.List(ctx, kind)
	if err != nil {
		return result, fmt.Errorf("list pending updates: %w", err)
	}
	result.Remaining = len(rest)

	if result.Sent > 0 || result.Expired > 0 {
		l.Info("pending drained", "sent", result.Sent, "expired", result.Expired, "remaining", result.Remaining)
	}
	return result, nil
}

func (s *PendingStore) expired(u model.PendingUpdate, now time.Time) bool {
	ttl, ok := s.retention[u.Kind]
	if !ok || ttl <= 0 {
		return false
	}
	return now.Sub(time.UnixMilli(u.EnqueuedAtEpochMs)) > ttl
}
