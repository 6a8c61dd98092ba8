package generation

import (
	"context"
	"errors"
	"sync"
)

var ErrSinkClosed = errors.New("stream sink closed")

type EventType string

const (
	EventChunk     EventType = "chunk"
	EventDone      EventType = "done"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
)

// Event is what a stream consumer observes: ordered chunks followed by
// exactly one terminal event.
type Event struct {
	Type      EventType
	Data      string
	Err       error
	Retryable bool
}

func (e Event) Terminal() bool {
	return e.Type != EventChunk
}

// StreamSink is the producer side of an outward stream.
type StreamSink interface {
	// Send blocks while the consumer is behind and returns early when ctx
	// ends. After a terminal it returns ErrSinkClosed.
	Send(ctx context.Context, data string) error
	Complete()
	Fail(err error)
	// Close ends the stream without a done marker. Idempotent.
	Close()
}

// ChannelSink is a buffered single-producer single-consumer StreamSink.
// The data channel is never closed; finished is closed once a terminal
// is recorded and the consumer drains what was accepted before reading it.
type ChannelSink struct {
	chunks   chan string
	finished chan struct{}
	once     sync.Once

	mu       sync.Mutex
	terminal Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSink{
		chunks:   make(chan string, buffer),
		finished: make(chan struct{}),
	}
}

func (s *ChannelSink) Send(ctx context.Context, data string) error {
	select {
	case <-s.finished:
		return ErrSinkClosed
	default:
	}
	select {
	case s.chunks <- data:
		return nil
	case <-s.finished:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Complete() {
	s.finish(Event{Type: EventDone})
}

func (s *ChannelSink) Fail(err error) {
	s.finish(Event{Type: EventError, Err: err, Retryable: isRetryable(err)})
}

func (s *ChannelSink) Close() {
	s.finish(Event{Type: EventCancelled})
}

func (s *ChannelSink) finish(ev Event) {
	s.once.Do(func() {
		s.mu.Lock()
		s.terminal = ev
		s.mu.Unlock()
		close(s.finished)
	})
}

// Next returns the next event for the consumer. Chunks accepted before the
// terminal are always returned first. ctx only bounds the wait; it does
// not end the stream.
func (s *ChannelSink) Next(ctx context.Context) (Event, error) {
	select {
	case chunk := <-s.chunks:
		return Event{Type: EventChunk, Data: chunk}, nil
	default:
	}
	select {
	case chunk := <-s.chunks:
		return Event{Type: EventChunk, Data: chunk}, nil
	case <-s.finished:
		select {
		case chunk := <-s.chunks:
			return Event{Type: EventChunk, Data: chunk}, nil
		default:
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.terminal, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}
