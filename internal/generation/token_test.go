package generation

import (
	"context"
	"sync"
	"testing"
)

func TestCancelTokenFireIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	token := NewCancelToken(cancel)

	if token.Fired() {
		t.Fatalf("Fired() = true before Fire")
	}
	if !token.Fire() {
		t.Fatalf("first Fire() = false, want true")
	}
	if token.Fire() {
		t.Fatalf("second Fire() = true, want false")
	}
	if !token.Fired() {
		t.Fatalf("Fired() = false after Fire")
	}
	select {
	case <-token.Done():
	default:
		t.Fatalf("Done() not closed after Fire")
	}
	if ctx.Err() == nil {
		t.Fatalf("bound context not cancelled")
	}
}

func TestCancelTokenConcurrentFire(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	token := NewCancelToken(cancel)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		winner int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if token.Fire() {
				mu.Lock()
				winner++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winner != 1 {
		t.Fatalf("Fire() returned true %d times, want 1", winner)
	}
}

func TestCancelTokenReleaseDoesNotFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	token := NewCancelToken(cancel)
	token.release()
	if token.Fired() {
		t.Fatalf("Fired() = true after release")
	}
	if ctx.Err() == nil {
		t.Fatalf("release did not free the context")
	}
}
