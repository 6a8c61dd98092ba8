package generation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestToken() *CancelToken {
	_, cancel := context.WithCancel(context.Background())
	return NewCancelToken(cancel)
}

func TestRegistryTryRegisterRejectsSecond(t *testing.T) {
	r := NewRegistry()
	rec, already := r.TryRegister(42, KindHTML, 7, newTestToken(), NewChannelSink(1))
	require.False(t, already)
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.GenerationID)
	assert.Equal(t, int64(7), rec.OwnerID)

	again, already := r.TryRegister(42, KindHTML, 9, newTestToken(), NewChannelSink(1))
	assert.True(t, already)
	assert.Nil(t, again)

	owner, ok := r.OwnerOf(42)
	require.True(t, ok)
	assert.Equal(t, int64(7), owner, "rejected registration must not replace the owner")
	assert.Equal(t, 1, r.Count())
}

func TestRegistryConcurrentRegisterSingleWinner(t *testing.T) {
	r := NewRegistry()
	const n = 200
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			<-start
			if _, already := r.TryRegister(42, KindHTML, user, newTestToken(), NewChannelSink(0)); !already {
				winners.Add(1)
			}
		}(int64(i + 1))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRemoveYieldsRecordOnce(t *testing.T) {
	r := NewRegistry()
	rec, _ := r.TryRegister(42, KindHTML, 7, newTestToken(), NewChannelSink(0))

	const n = 64
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, ok := r.Remove(42); ok {
				assert.Same(t, rec, got)
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	_, ok := r.Remove(42)
	assert.False(t, ok, "Remove on an empty key must report absence")
	_, ok = r.Lookup(42)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestRegistryRemoveIfIgnoresStaleGeneration(t *testing.T) {
	r := NewRegistry()
	old, _ := r.TryRegister(42, KindHTML, 7, newTestToken(), NewChannelSink(0))
	_, ok := r.Remove(42)
	require.True(t, ok)
	fresh, already := r.TryRegister(42, KindHTML, 9, newTestToken(), NewChannelSink(0))
	require.False(t, already)

	_, ok = r.RemoveIf(42, old.GenerationID)
	assert.False(t, ok, "stale generation must not evict the newer record")
	owner, _ := r.OwnerOf(42)
	assert.Equal(t, int64(9), owner)

	got, ok := r.RemoveIf(42, fresh.GenerationID)
	assert.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestRegistryOwnerOfAbsent(t *testing.T) {
	r := NewRegistry()
	_, ok := r.OwnerOf(1)
	assert.False(t, ok)
}
