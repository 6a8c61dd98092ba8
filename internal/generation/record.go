package generation

import (
	"strings"
	"sync"
	"time"
)

// TaskRecord is the registry entry for one in-flight generation.
type TaskRecord struct {
	GenerationID string
	AppID        int64
	OwnerID      int64
	Kind         Kind
	StartedAt    time.Time

	token *CancelToken
	sink  StreamSink

	// mu serialises forwarding with sealing so the transcript matches what
	// the sink accepted.
	mu       sync.Mutex
	partial  strings.Builder
	sealed   bool
	detached bool
}

// seal stops further appends and returns the final transcript. It waits
// for an in-flight forward to finish.
func (r *TaskRecord) seal() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	return r.partial.String()
}
