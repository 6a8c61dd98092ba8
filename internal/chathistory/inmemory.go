package chathistory

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps history in process for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[int64][]Message
	now      func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		messages: make(map[int64][]Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryStore) AppendMessage(_ context.Context, appID int64, content string, role Role, userID int64, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, err := newMessage(appID, content, role, userID, status, s.now())
	if err != nil {
		return err
	}
	s.messages[appID] = append(s.messages[appID], msg)
	return nil
}

func (s *InMemoryStore) MarkStatus(_ context.Context, appID, userID int64, status Status) error {
	if !status.valid() {
		return ErrInvalidMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := s.messages[appID]
	for i := len(arr) - 1; i >= 0; i-- {
		if arr[i].UserID != userID {
			continue
		}
		arr[i].Status = status
		arr[i].UpdatedAt = s.now()
		return nil
	}
	return ErrNotFound
}

func (s *InMemoryStore) ListByApp(_ context.Context, appID int64, limit int, before time.Time) ([]Message, error) {
	limit, err := PageSize(limit)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.messages[appID]
	out := make([]Message, 0, limit)
	for i := len(arr) - 1; i >= 0 && len(out) < limit; i-- {
		if !before.IsZero() && !arr[i].CreatedAt.Before(before) {
			continue
		}
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
