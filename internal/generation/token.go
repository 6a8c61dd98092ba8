package generation

import (
	"context"
	"sync"
	"sync/atomic"
)

// CancelToken is the cooperative stop signal for one generation. It is
// bound to the context the provider stream runs under.
type CancelToken struct {
	once   sync.Once
	fired  atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCancelToken(cancel context.CancelFunc) *CancelToken {
	return &CancelToken{cancel: cancel, done: make(chan struct{})}
}

// Fire signals cancellation. Only the first call has an effect; it
// reports whether this call was that one.
func (t *CancelToken) Fire() bool {
	first := false
	t.once.Do(func() {
		first = true
		t.fired.Store(true)
		close(t.done)
		if t.cancel != nil {
			t.cancel()
		}
	})
	return first
}

func (t *CancelToken) Fired() bool {
	return t.fired.Load()
}

func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// release frees the bound context without marking the token fired.
func (t *CancelToken) release() {
	if t.cancel != nil {
		t.cancel()
	}
}
