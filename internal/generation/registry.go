package generation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry maps an application id to its single active generation.
// Operations never block on I/O.
type Registry struct {
	mu      sync.RWMutex
	records map[int64]*TaskRecord
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[int64]*TaskRecord)}
}

// TryRegister inserts a record for appID unless one already exists. The
// check and the insert are one atomic step.
func (r *Registry) TryRegister(appID int64, kind Kind, ownerID int64, token *CancelToken, sink StreamSink) (rec *TaskRecord, alreadyActive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[appID]; exists {
		return nil, true
	}
	rec = &TaskRecord{
		GenerationID: uuid.NewString(),
		AppID:        appID,
		OwnerID:      ownerID,
		Kind:         kind,
		StartedAt:    time.Now(),
		token:        token,
		sink:         sink,
	}
	r.records[appID] = rec
	return rec, false
}

func (r *Registry) Lookup(appID int64) (*TaskRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[appID]
	return rec, ok
}

// Remove deletes and returns the record for appID. Concurrent callers
// race; exactly one gets the record.
func (r *Registry) Remove(appID int64) (*TaskRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[appID]
	if ok {
		delete(r.records, appID)
	}
	return rec, ok
}

// RemoveIf is Remove restricted to a specific generation, so a stale
// caller cannot evict a newer record registered under the same key.
func (r *Registry) RemoveIf(appID int64, generationID string) (*TaskRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[appID]
	if !ok || rec.GenerationID != generationID {
		return nil, false
	}
	delete(r.records, appID)
	return rec, true
}

func (r *Registry) OwnerOf(appID int64) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[appID]
	if !ok {
		return 0, false
	}
	return rec.OwnerID, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
