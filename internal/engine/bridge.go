package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"

	"orchestrator/internal/pipeline"
	"orchestrator/pkg/exception"
)

// DefaultReplyTimeout bounds how long a caller waits for the loop.
const DefaultReplyTimeout = 5 * time.Second

// Submitter accepts commands for the loop.
type Submitter interface {
	Submit(ctx context.Context, cmd Command) error
}

// Bridge turns caller requests into commands and waits for the reply.
// A timeout only ends the wait, the command may still be applied later.
type Bridge struct {
	engine  Submitter
	timeout time.Duration
	now     func() time.Time
}

// NewBridge creates a bridge waiting at most timeout per call.
func NewBridge(engine Submitter, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	return &Bridge{
		engine:  engine,
		timeout: timeout,
		now:     time.Now,
	}
}

// CreatePipeline builds a pipeline owned by params from w and adds it.
func (b *Bridge) CreatePipeline(ctx context.Context, w pipeline.WirePipeline, params pipeline.Params) (pipeline.Pipeline, error) {
	cmd := NewAddPipeline(pipeline.FromWire(w, params, b.now()))
	return await(ctx, b, cmd, cmd.Reply)
}

// GetPipeline returns the pipeline when userID owns it.
func (b *Bridge) GetPipeline(ctx context.Context, userID string, id uuid.UUID) (pipeline.Pipeline, error) {
	cmd := NewGetPipeline(pipeline.Key{UserID: userID, ID: id})
	return await(ctx, b, cmd, cmd.Reply)
}

// DeletePipeline removes the pipeline when userID owns it.
func (b *Bridge) DeletePipeline(ctx context.Context, userID string, id uuid.UUID) error {
	cmd := NewDeletePipeline(pipeline.Key{UserID: userID, ID: id})
	_, err := await(ctx, b, cmd, cmd.Reply)
	return err
}

func await[T any](ctx context.Context, b *Bridge, cmd Command, reply <-chan Reply[T]) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.engine.Submit(ctx, cmd); err != nil {
		if err != exception.ErrQueueClosed && ctx.Err() != nil {
			return zero, timeoutErr(ctx, cmd)
		}
		return zero, errors.Wrap(exception.ErrEngineUnavailable, err.Error())
	}

	select {
	case r, ok := <-reply:
		if !ok {
			return zero, errors.Wrap(exception.ErrEngineReplyDropped, cmd.name())
		}
		return r.Value, r.Err
	case <-ctx.Done():
		return zero, timeoutErr(ctx, cmd)
	}
}

func timeoutErr(ctx context.Context, cmd Command) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(exception.ErrEngineTimeout, cmd.name())
	}
	return ctx.Err()
}
