package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"driver-agent/internal/clock"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/mylogger"
)

type numbered struct {
	N int `json:"n"`
}

func newTestPendingStore(clk clock.Clock, capacity int) *PendingStore {
	return NewPendingStore(NewMemoryRepository(), clk, mylogger.Nop(), capacity, map[model.UpdateKind]time.Duration{
		model.KindLocation:   30 * time.Minute,
		model.KindTripCreate: 24 * time.Hour,
	})
}

func decodeN(t *testing.T, u model.PendingUpdate) int {
	t.Helper()
	var v numbered
	if err := json.Unmarshal(u.Payload, &v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return v.N
}

func TestPendingStore_EvictsOldestOverCapacity(t *testing.T) {
	ctx := context.Background()
	store := newTestPendingStore(newTestClock(), 3)

	for i := 0; i < 5; i++ {
		if err := store.Enqueue(ctx, model.KindLocation, numbered{N: i}); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	pending, err := store.Pending(ctx, model.KindLocation)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("len = %d, want 3", len(pending))
	}
	for i, want := range []int{2, 3, 4} {
		if got := decodeN(t, pending[i]); got != want {
			t.Errorf("pending[%d] = %d, want %d", i, got, want)
		}
	}
}

func TestPendingStore_PartitionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := newTestPendingStore(newTestClock(), 2)

	if err := store.Enqueue(ctx, model.KindTripCreate, numbered{N: 100}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if err := store.Enqueue(ctx, model.KindLocation, numbered{N: i}); err != nil {
			t.Fatal(err)
		}
	}

	trips, _ := store.Pending(ctx, model.KindTripCreate)
	if len(trips) != 1 || decodeN(t, trips[0]) != 100 {
		t.Errorf("trip partition = %v, want the single trip entry", trips)
	}
}

func TestPendingStore_DrainIsFIFOAndKeepsFailures(t *testing.T) {
	ctx := context.Background()
	store := newTestPendingStore(newTestClock(), 10)
	for i := 0; i < 3; i++ {
		if err := store.Enqueue(ctx, model.KindLocation, numbered{N: i}); err != nil {
			t.Fatal(err)
		}
	}

	var order []int
	result, err := store.Drain(ctx, model.KindLocation, func(_ context.Context, u model.PendingUpdate) error {
		n := decodeN(t, u)
		order = append(order, n)
		if n == 1 {
			return errors.New("still offline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("send order = %v, want [0 1 2]", order)
	}
	if result.Sent != 2 || result.Expired != 0 || result.Remaining != 1 {
		t.Errorf("result = %+v, want sent=2 remaining=1", result)
	}
	left, _ := store.Pending(ctx, model.KindLocation)
	if len(left) != 1 || decodeN(t, left[0]) != 1 {
		t.Errorf("left = %v, want only entry 1", left)
	}
}

func TestPendingStore_DrainDropsExpired(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	store := newTestPendingStore(clk, 10)

	if err := store.Enqueue(ctx, model.KindLocation, numbered{N: 1}); err != nil {
		t.Fatal(err)
	}
	clk.Advance(31 * time.Minute)
	if err := store.Enqueue(ctx, model.KindLocation, numbered{N: 2}); err != nil {
		t.Fatal(err)
	}

	var sent []int
	result, err := store.Drain(ctx, model.KindLocation, func(_ context.Context, u model.PendingUpdate) error {
		sent = append(sent, decodeN(t, u))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Expired != 1 || result.Sent != 1 || result.Remaining != 0 {
		t.Errorf("result = %+v, want expired=1 sent=1", result)
	}
	if len(sent) != 1 || sent[0] != 2 {
		t.Errorf("sent = %v, want [2]", sent)
	}
}

func TestPendingStore_TripRetentionIsLonger(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	store := newTestPendingStore(clk, 10)

	if err := store.Enqueue(ctx, model.KindTripCreate, numbered{N: 7}); err != nil {
		t.Fatal(err)
	}
	clk.Advance(2 * time.Hour)

	result, err := store.Drain(ctx, model.KindTripCreate, func(context.Context, model.PendingUpdate) error {
		return errors.New("backend down")
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Expired != 0 || result.Remaining != 1 {
		t.Errorf("result = %+v, want the trip kept", result)
	}
}

func TestPendingStore_UnknownKind(t *testing.T) {
	store := newTestPendingStore(newTestClock(), 10)
	if err := store.Enqueue(context.Background(), model.UpdateKind("BOGUS"), numbered{}); err == nil {
		t.Error("Enqueue should reject an unknown kind")
	}
}
