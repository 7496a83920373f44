package driven

import "context"

// IAssignmentTransport opens one subscription to driver.{driverID}.assignments.
// Cancelling ctx tears the subscription down.
type IAssignmentTransport interface {
	Subscribe(ctx context.Context, driverID string) (ISubscription, error)
}

// ISubscription is one open assignment stream. Payloads carries raw frames and
// is closed when the transport drops.
type ISubscription interface {
	Payloads() <-chan []byte
	// Err reports why Payloads was closed. It is only meaningful once the
	// channel is closed and is nil when ctx was cancelled.
	Err() error
}
