package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/ports/driven"
	"driver-agent/internal/mylogger"
)

// PendingRepository keeps one JSON file per update kind under dir. Every
// write replaces the whole file through a temp file and a rename, so a crash
// leaves either the old or the new contents.
type PendingRepository struct {
	dir string
	log mylogger.Logger
	mu  sync.Mutex
}

var _ driven.IPendingRepository = (*PendingRepository)(nil)

func NewPendingRepository(dir string, log mylogger.Logger) (*PendingRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pending dir: %w", err)
	}
	return &PendingRepository{dir: dir, log: log.Action("pending_file")}, nil
}

func (r *PendingRepository) Append(_ context.Context, update model.PendingUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	updates := r.load(update.Kind)
	for _, u := range updates {
		if u.ID == update.ID {
			return nil
		}
	}
	return r.save(update.Kind, append(updates, update))
}

func (r *PendingRepository) List(_ context.Context, kind model.UpdateKind) ([]model.PendingUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(kind), nil
}

func (r *PendingRepository) Delete(_ context.Context, kind model.UpdateKind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	updates := r.load(kind)
	kept := updates[:0]
	for _, u := range updates {
		if _, ok := drop[u.ID]; !ok {
			kept = append(kept, u)
		}
	}
	return r.save(kind, kept)
}

func (r *PendingRepository) path(kind model.UpdateKind) string {
	return filepath.Join(r.dir, "pending-"+strings.ToLower(string(kind))+".json")
}

// load returns nil for a missing file. An unreadable file is logged and
// treated as empty; the next save overwrites it.
func (r *PendingRepository) load(kind model.UpdateKind) []model.PendingUpdate {
	data, err := os.ReadFile(r.path(kind))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.log.Error("failed to read pending file", err, "kind", kind)
		}
		return nil
	}

	var updates []model.PendingUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		r.log.Warn("discarding unreadable pending file", "kind", kind, "error", err.Error())
		return nil
	}
	return updates
}

func (r *PendingRepository) save(kind model.UpdateKind, updates []model.PendingUpdate) error {
	if updates == nil {
		updates = []model.PendingUpdate{}
	}
	data, err := json.MarshalIndent(updates, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pending updates: %w", err)
	}

	target := r.path(kind)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
