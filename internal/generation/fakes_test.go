package generation

import (
	"context"
	"errors"
	"sync"

	"github.com/antoniostano/codeforge/internal/chathistory"
)

// scriptedProvider emits its units in order. When hold is set it then
// blocks until the stream is cancelled.
type scriptedProvider struct {
	units []Unit
	err   error
	hold  bool
	// gate, when non-nil, is received from before each unit.
	gate chan struct{}
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(ctx context.Context, _ Request, emit func(Unit) error) error {
	for _, u := range p.units {
		if p.gate != nil {
			select {
			case <-p.gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := emit(u); err != nil {
			return err
		}
	}
	if p.hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.err
}

type providerError struct {
	msg       string
	retryable bool
}

func (e *providerError) Error() string     { return e.msg }
func (e *providerError) IsRetryable() bool { return e.retryable }

type appendCall struct {
	AppID   int64
	UserID  int64
	Content string
	Role    chathistory.Role
	Status  chathistory.Status
}

type markCall struct {
	AppID  int64
	UserID int64
	Status chathistory.Status
}

type recordingHistory struct {
	mu      sync.Mutex
	appends []appendCall
	marks   []markCall
	failAll bool
}

func (h *recordingHistory) AppendMessage(_ context.Context, appID int64, content string, role chathistory.Role, userID int64, status chathistory.Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failAll {
		return errors.New("db down")
	}
	h.appends = append(h.appends, appendCall{AppID: appID, UserID: userID, Content: content, Role: role, Status: status})
	return nil
}

func (h *recordingHistory) MarkStatus(_ context.Context, appID, userID int64, status chathistory.Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failAll {
		return errors.New("db down")
	}
	h.marks = append(h.marks, markCall{AppID: appID, UserID: userID, Status: status})
	return nil
}

func (h *recordingHistory) snapshot() ([]appendCall, []markCall) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]appendCall(nil), h.appends...), append([]markCall(nil), h.marks...)
}

func (h *recordingHistory) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appends = nil
	h.marks = nil
}

type recordingArtifacts struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (a *recordingArtifacts) Build(_ context.Context, _ int64, _ Kind, content string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, content)
	return "out", a.err
}

func (a *recordingArtifacts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}
