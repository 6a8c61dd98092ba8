package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/antoniostano/codeforge/internal/chathistory"
	"github.com/antoniostano/codeforge/internal/generation"
	"github.com/antoniostano/codeforge/internal/policy"
	"github.com/antoniostano/codeforge/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
)

type startError struct {
	status  int
	code    string
	message string
}

// startGeneration validates a request, records the prompt and hands the
// work to the coordinator. Both stream transports go through here.
func (s *Server) startGeneration(ctx context.Context, c caller, rawKind, message string) (*generation.Stream, *startError) {
	if !s.limiter.Allow(c.UserID) {
		s.metrics.ObserveGenerationEvent("rate_limited")
		return nil, &startError{http.StatusTooManyRequests, "rate_limited", "too many generation requests, slow down"}
	}
	kind, err := generation.ParseKind(rawKind)
	if err != nil {
		return nil, &startError{http.StatusBadRequest, "invalid_kind", err.Error()}
	}
	prompt, err := policy.CheckPrompt(message, s.cfg.PromptMaxChars)
	if err != nil {
		return nil, &startError{http.StatusBadRequest, "invalid_prompt", err.Error()}
	}
	if s.coord.HasActive(c.AppID) {
		return nil, &startError{http.StatusConflict, "generation_active", "generation already in progress"}
	}

	if err := s.history.AppendMessage(ctx, c.AppID, prompt, chathistory.RoleUser, c.UserID, chathistory.StatusNormal); err != nil {
		s.metrics.ObservePersistenceFailure("append_prompt")
		s.log.WithError(err).WithField("app_id", c.AppID).Error("record prompt failed")
		if errors.Is(err, chathistory.ErrInvalidMessage) {
			return nil, &startError{http.StatusBadRequest, "invalid_prompt", err.Error()}
		}
		return nil, &startError{http.StatusInternalServerError, "history_unavailable", "could not record prompt"}
	}

	stream, err := s.coord.StartGeneration(ctx, c.AppID, c.UserID, kind, prompt)
	if errors.Is(err, generation.ErrAlreadyActive) {
		return nil, &startError{http.StatusConflict, "generation_active", "generation already in progress"}
	}
	if err != nil {
		return nil, &startError{http.StatusInternalServerError, "start_failed", err.Error()}
	}
	return stream, nil
}

func (s *Server) handleGenerateSSE(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "response does not support streaming")
		return
	}

	q := r.URL.Query()
	stream, serr := s.startGeneration(r.Context(), c, q.Get("kind"), q.Get("message"))
	if serr != nil {
		respondError(w, serr.status, serr.code, serr.message)
		return
	}
	log := s.log.WithFields(logrus.Fields{
		"app_id":        c.AppID,
		"user_id":       c.UserID,
		"generation_id": stream.GenerationID,
	})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		ev, err := stream.Next(r.Context())
		if err != nil {
			stream.Detach()
			log.Debug("sse client went away")
			return
		}
		if err := writeSSE(w, ev); err != nil {
			stream.Detach()
			log.WithError(err).Debug("sse write failed")
			return
		}
		flusher.Flush()
		if ev.Terminal() {
			return
		}
	}
}

func writeSSE(w io.Writer, ev generation.Event) error {
	switch ev.Type {
	case generation.EventChunk:
		raw, err := encodeFrame(protocol.ChunkFrame{D: ev.Data})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "data: %s\n\n", raw)
		return err
	case generation.EventDone:
		_, err := io.WriteString(w, "event: done\ndata: {}\n\n")
		return err
	case generation.EventCancelled:
		_, err := io.WriteString(w, "event: cancelled\ndata: {}\n\n")
		return err
	case generation.EventError:
		raw, err := encodeFrame(protocol.ErrorFrame{Error: errorText(ev.Err), Retryable: ev.Retryable})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "event: error\ndata: %s\n\n", raw)
		return err
	default:
		return fmt.Errorf("unknown stream event %q", ev.Type)
	}
}

// encodeFrame marshals without HTML escaping; chunks are mostly markup.
func encodeFrame(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func errorText(err error) string {
	if err == nil {
		return "generation failed"
	}
	return err.Error()
}

func (s *Server) handleGenerateWS(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := s.log.WithFields(logrus.Fields{"app_id": c.AppID, "user_id": c.UserID})
	log.Debug("ws connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	send := func(msg any) bool {
		select {
		case outbound <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					log.WithError(err).Debug("ws write failed")
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	var (
		pumps     sync.WaitGroup
		streaming atomic.Bool
	)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{Type: protocol.TypeError, Code: "invalid_client_message", Detail: err.Error()})
			continue
		}

		switch m := parsed.(type) {
		case protocol.Generate:
			if !streaming.CompareAndSwap(false, true) {
				send(protocol.ErrorEvent{Type: protocol.TypeError, Code: "stream_busy", Detail: "this connection is already streaming a generation"})
				continue
			}
			stream, serr := s.startGeneration(ctx, c, m.Kind, m.Message)
			if serr != nil {
				streaming.Store(false)
				send(protocol.ErrorEvent{Type: protocol.TypeError, Code: serr.code, Retryable: serr.status == http.StatusTooManyRequests, Detail: serr.message})
				continue
			}
			send(protocol.Started{Type: protocol.TypeStarted, GenerationID: stream.GenerationID, AppID: stream.AppID, Kind: string(stream.Kind)})
			pumps.Add(1)
			go func() {
				defer pumps.Done()
				defer streaming.Store(false)
				pumpWS(ctx, stream, send)
			}()
		case protocol.Cancel:
			outcome := s.coord.CancelGeneration(ctx, c.AppID, c.UserID)
			send(protocol.CancelResult{Type: protocol.TypeCancelResult, Outcome: outcome.String()})
		}
	}

	cancel()
	pumps.Wait()
	<-writerDone
	log.Debug("ws disconnected")
}

// pumpWS relays one generation's events to the connection writer.
func pumpWS(ctx context.Context, stream *generation.Stream, send func(any) bool) {
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			stream.Detach()
			return
		}
		var msg any
		switch ev.Type {
		case generation.EventChunk:
			msg = protocol.Chunk{Type: protocol.TypeChunk, D: ev.Data}
		case generation.EventDone:
			msg = protocol.Done{Type: protocol.TypeDone, GenerationID: stream.GenerationID}
		case generation.EventCancelled:
			msg = protocol.Cancelled{Type: protocol.TypeCancelled, GenerationID: stream.GenerationID}
		case generation.EventError:
			msg = protocol.ErrorEvent{Type: protocol.TypeError, Code: "generation_failed", Retryable: ev.Retryable, Detail: errorText(ev.Err)}
		}
		if !send(msg) {
			stream.Detach()
			return
		}
		if ev.Terminal() {
			return
		}
	}
}
