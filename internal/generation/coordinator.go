package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/antoniostano/codeforge/internal/chathistory"
	"github.com/antoniostano/codeforge/internal/logging"
	"github.com/antoniostano/codeforge/internal/observability"
)

type Config struct {
	StreamBuffer   int
	PersistTimeout time.Duration
}

// Coordinator runs at most one generation per application and owns the
// transition of each one to its terminal state.
type Coordinator struct {
	registry       *Registry
	provider       Provider
	history        HistoryRecorder
	artifacts      ArtifactBuilder
	metrics        *observability.Metrics
	log            logrus.FieldLogger
	streamBuffer   int
	persistTimeout time.Duration

	wg sync.WaitGroup
}

// Stream is the consumer handle returned by StartGeneration.
type Stream struct {
	GenerationID string
	AppID        int64
	Kind         Kind

	sink *ChannelSink
}

// Next blocks for the next event. After a terminal event the stream is over.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	return s.sink.Next(ctx)
}

// Detach reports that nobody is reading anymore. The generation keeps
// running and its result is still persisted.
func (s *Stream) Detach() {
	s.sink.Close()
}

func NewCoordinator(cfg Config, provider Provider, history HistoryRecorder, artifacts ArtifactBuilder, metrics *observability.Metrics, log logrus.FieldLogger) *Coordinator {
	if cfg.StreamBuffer < 0 {
		cfg.StreamBuffer = 0
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Coordinator{
		registry:       NewRegistry(),
		provider:       provider,
		history:        history,
		artifacts:      artifacts,
		metrics:        metrics,
		log:            log,
		streamBuffer:   cfg.StreamBuffer,
		persistTimeout: cfg.PersistTimeout,
	}
}

// StartGeneration registers a generation for appID and starts streaming
// in the background. It returns ErrAlreadyActive when one is in flight.
// The generation outlives ctx; only CancelGeneration stops it.
func (c *Coordinator) StartGeneration(ctx context.Context, appID, userID int64, kind Kind, prompt string) (*Stream, error) {
	genCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	token := NewCancelToken(cancel)
	sink := NewChannelSink(c.streamBuffer)

	rec, alreadyActive := c.registry.TryRegister(appID, kind, userID, token, sink)
	if alreadyActive {
		cancel()
		c.metrics.ObserveGenerationEvent("rejected")
		c.log.WithFields(logrus.Fields{
			"app_id":    appID,
			"user_id":   userID,
			"task_kind": kind,
		}).Debug("generation rejected: already active")
		return nil, ErrAlreadyActive
	}

	c.metrics.ObserveGenerationEvent("started")
	c.metrics.GenerationRegistered()
	c.recordLogger(rec).Info("generation registered")

	c.wg.Add(1)
	go c.run(genCtx, rec, prompt)

	return &Stream{
		GenerationID: rec.GenerationID,
		AppID:        appID,
		Kind:         kind,
		sink:         sink,
	}, nil
}

func (c *Coordinator) run(ctx context.Context, rec *TaskRecord, prompt string) {
	defer c.wg.Done()
	defer rec.token.release()

	req := Request{
		GenerationID: rec.GenerationID,
		AppID:        rec.AppID,
		UserID:       rec.OwnerID,
		Kind:         rec.Kind,
		Prompt:       prompt,
	}
	first := true
	err := c.provider.Stream(ctx, req, func(u Unit) error {
		if err := c.forward(ctx, rec, u); err != nil {
			return err
		}
		if first && u.Type != UnitFinal {
			first = false
			c.metrics.ObserveFirstChunkLatency(time.Since(rec.StartedAt))
		}
		return nil
	})
	c.complete(rec, err)
}

// forward delivers one unit to the sink and, only once accepted, appends
// it to the transcript.
func (c *Coordinator) forward(ctx context.Context, rec *TaskRecord, u Unit) error {
	if rec.token.Fired() {
		return ErrCancelled
	}
	payload, err := u.Encode(rec.Kind)
	if err != nil {
		return fmt.Errorf("encode %s unit: %w", u.Type, err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.sealed {
		return ErrCancelled
	}
	if payload != "" && !rec.detached {
		if err := rec.sink.Send(ctx, payload); err != nil {
			if !errors.Is(err, ErrSinkClosed) || rec.token.Fired() {
				return ErrCancelled
			}
			rec.detached = true
			c.recordLogger(rec).Debug("stream consumer detached, generation continues")
		}
	}
	rec.partial.WriteString(u.Render())
	if u.Type != UnitFinal {
		c.metrics.ObserveStreamUnit(string(rec.Kind), string(u.Type))
	}
	return nil
}

// complete finishes a generation whose provider stream ended. If a cancel
// already claimed the record there is nothing left to do.
func (c *Coordinator) complete(rec *TaskRecord, streamErr error) {
	if _, ok := c.registry.RemoveIf(rec.AppID, rec.GenerationID); !ok {
		return
	}
	c.metrics.GenerationReleased()
	transcript := rec.seal()
	elapsed := time.Since(rec.StartedAt)
	log := c.recordLogger(rec)

	ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
	defer cancel()

	if streamErr != nil {
		retryable := isRetryable(streamErr)
		c.metrics.ObserveGenerationEvent("failed")
		c.metrics.ObserveGenerationDuration("failed", elapsed)
		c.metrics.ObserveProviderError(c.provider.Name(), retryable)
		log.WithError(streamErr).WithField("retryable", retryable).Error("generation failed")
		c.appendHistory(ctx, log, rec, "AI reply failed: "+streamErr.Error(), chathistory.StatusAIInterrupted)
		rec.sink.Fail(streamErr)
		return
	}

	if c.artifacts != nil {
		dir, err := c.artifacts.Build(ctx, rec.AppID, rec.Kind, transcript)
		if err != nil {
			c.metrics.ObservePersistenceFailure("artifact")
			log.WithError(err).Error("artifact build failed")
		} else if dir != "" {
			log.WithField("output_dir", dir).Info("artifacts written")
		}
	}
	c.appendHistory(ctx, log, rec, transcript, chathistory.StatusNormal)

	c.metrics.ObserveGenerationEvent("completed")
	c.metrics.ObserveGenerationDuration("completed", elapsed)
	log.WithFields(logrus.Fields{
		"chars":       len(transcript),
		"duration_ms": elapsed.Milliseconds(),
	}).Info("generation completed")
	rec.sink.Complete()
}

// CancelGeneration stops the generation for appID on behalf of userID.
// Only the owner may cancel. Output already accepted by the stream stays
// delivered and is persisted as an interrupted reply.
func (c *Coordinator) CancelGeneration(ctx context.Context, appID, userID int64) CancelOutcome {
	rec, ok := c.registry.Lookup(appID)
	if !ok {
		c.metrics.ObserveGenerationEvent("cancel_not_found")
		return CancelNotFound
	}
	log := c.recordLogger(rec).WithField("requested_by", userID)
	if rec.OwnerID != userID {
		c.metrics.ObserveGenerationEvent("cancel_not_owner")
		log.Warn("cancel refused: caller does not own the generation")
		return CancelNotOwner
	}
	if _, ok := c.registry.RemoveIf(appID, rec.GenerationID); !ok {
		c.metrics.ObserveGenerationEvent("cancel_not_found")
		return CancelNotFound
	}
	c.metrics.GenerationReleased()

	rec.token.Fire()
	partial := rec.seal()
	rec.sink.Close()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
	defer cancel()
	if strings.TrimSpace(partial) != "" {
		c.appendHistory(pctx, log, rec, partial, chathistory.StatusUserInterrupted)
	} else if err := c.history.MarkStatus(pctx, appID, rec.OwnerID, chathistory.StatusUserInterrupted); err != nil {
		c.metrics.ObservePersistenceFailure("mark_status")
		log.WithError(err).Error("mark history interrupted failed")
	}

	elapsed := time.Since(rec.StartedAt)
	c.metrics.ObserveGenerationEvent("cancelled")
	c.metrics.ObserveGenerationDuration("cancelled", elapsed)
	log.WithField("partial_chars", len(partial)).Info("generation cancelled")
	return CancelCancelled
}

func (c *Coordinator) HasActive(appID int64) bool {
	_, ok := c.registry.Lookup(appID)
	return ok
}

func (c *Coordinator) OwnerOf(appID int64) (int64, bool) {
	return c.registry.OwnerOf(appID)
}

func (c *Coordinator) ActiveCount() int {
	return c.registry.Count()
}

// Wait blocks until every started generation has finished its provider
// stream, or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) appendHistory(ctx context.Context, log logrus.FieldLogger, rec *TaskRecord, content string, status chathistory.Status) {
	if err := c.history.AppendMessage(ctx, rec.AppID, content, chathistory.RoleAI, rec.OwnerID, status); err != nil {
		c.metrics.ObservePersistenceFailure("append_message")
		log.WithError(err).WithField("status", status.String()).Error("persist ai reply failed")
	}
}

func (c *Coordinator) recordLogger(rec *TaskRecord) logrus.FieldLogger {
	return c.log.WithFields(logrus.Fields{
		"app_id":        rec.AppID,
		"user_id":       rec.OwnerID,
		"task_kind":     rec.Kind,
		"generation_id": rec.GenerationID,
	})
}
