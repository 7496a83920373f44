package driven

import (
	"context"

	"driver-agent/internal/driver-agent/core/domain/model"
)

// IPendingRepository persists queued updates. Ordering is enqueue order per
// kind; capacity and retention are enforced by the caller.
type IPendingRepository interface {
	Append(ctx context.Context, update model.PendingUpdate) error
	List(ctx context.Context, kind model.UpdateKind) ([]model.PendingUpdate, error)
	Delete(ctx context.Context, kind model.UpdateKind, ids []string) error
}
