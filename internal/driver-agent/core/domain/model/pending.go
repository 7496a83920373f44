package model

import "encoding/json"

type UpdateKind string

const (
	KindLocation   UpdateKind = "LOCATION"
	KindTripCreate UpdateKind = "TRIP_CREATE"
)

// PendingUpdate is a write that failed to send and awaits retry.
type PendingUpdate struct {
	ID                string          `json:"id"`
	Kind              UpdateKind      `json:"kind"`
	Payload           json.RawMessage `json:"payload"`
	EnqueuedAtEpochMs int64           `json:"enqueued_at_ms"`
}

// DrainResult summarises one retry pass over a partition.
type DrainResult struct {
	Sent      int `json:"sent"`
	Expired   int `json:"expired"`
	Remaining int `json:"remaining"`
}
