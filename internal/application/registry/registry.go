package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/acunetix-report-sender/internal/domain/registry"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// Registry is the in-memory view of every scan already delivered.
// The view only changes after the backing store accepted the new mapping.
type Registry struct {
	mu      sync.RWMutex
	store   domain.Store
	records map[scans.ScanID]domain.ProcessedRecord
	log     *zap.Logger
}

// Load reads the persisted mapping. A missing, unreadable or corrupt store
// yields an empty registry; the run continues as if nothing was processed.
func Load(ctx context.Context, store domain.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		store:   store,
		records: make(map[scans.ScanID]domain.ProcessedRecord),
		log:     log,
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		log.Warn("could not load processed scans, starting fresh", zap.Error(err))
		return r
	}
	for id, rec := range loaded {
		if id == "" {
			continue
		}
		if rec.ScanID == "" {
			rec.ScanID = id
		}
		r.records[id] = rec
	}
	log.Info("loaded processed scans", zap.Int("count", len(r.records)))
	return r
}

// Contains reports whether the scan was already delivered.
func (r *Registry) Contains(id scans.ScanID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id]
	return ok
}

// Len returns the number of processed scans.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Get returns the record for id, if any.
func (r *Registry) Get(id scans.ScanID) (domain.ProcessedRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Records returns a copy of all records, oldest first.
func (r *Registry) Records() []domain.ProcessedRecord {
	r.mu.RLock()
	out := make([]domain.ProcessedRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].ScanID < out[j].ScanID
		}
		return out[i].ProcessedAt.Before(out[j].ProcessedAt)
	})
	return out
}

// Record adds id and synchronously persists the whole mapping. On failure the
// in-memory view is left untouched and a *PersistenceError is returned.
func (r *Registry) Record(ctx context.Context, id scans.ScanID, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; ok {
		return nil
	}

	next := make(map[scans.ScanID]domain.ProcessedRecord, len(r.records)+1)
	for k, v := range r.records {
		next[k] = v
	}
	next[id] = domain.ProcessedRecord{ScanID: id, ProcessedAt: ts.UTC()}

	if err := r.store.Save(ctx, next); err != nil {
		return &domain.PersistenceError{ScanID: id, Err: err}
	}
	r.records = next
	r.log.Info("marked scan as processed", zap.String("scan_id", string(id)), zap.Int("total", len(next)))
	return nil
}
