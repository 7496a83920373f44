package driven

import (
	"context"

	"driver-agent/internal/driver-agent/core/domain/model"
)

// IPositionSource emits raw position fixes until ctx is cancelled.
type IPositionSource interface {
	Positions(ctx context.Context) (<-chan model.Position, error)
}
