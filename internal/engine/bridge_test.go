package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"orchestrator/internal/pipeline"
	"orchestrator/pkg/exception"
)

// submitterFunc lets tests play the engine side of the protocol.
type submitterFunc func(ctx context.Context, cmd Command) error

func (f submitterFunc) Submit(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

func TestBridgeTimeoutAndLateReply(t *testing.T) {
	accepted := make(chan GetPipeline, 1)
	b := NewBridge(submitterFunc(func(_ context.Context, cmd Command) error {
		accepted <- cmd.(GetPipeline)
		return nil
	}), 20*time.Millisecond)

	start := time.Now()
	_, err := b.GetPipeline(t.Context(), "u1", uuid.New())
	assert.ErrorIs(t, err, exception.ErrEngineTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	cmd := <-accepted
	assert.NotPanics(t, func() {
		respond(cmd.Reply, Reply[pipeline.Pipeline]{Err: exception.ErrPipelineNotFound})
		respond(cmd.Reply, Reply[pipeline.Pipeline]{Err: exception.ErrPipelineNotFound})
	})
}

func TestBridgeQueueClosed(t *testing.T) {
	e := New(Config{QueueSize: 1}, pipeline.NewMemoryStore(), &fakePrice{}, Limits{}, nil)
	e.Shutdown()

	b := NewBridge(e, time.Second)
	_, err := b.GetPipeline(t.Context(), "u1", uuid.New())
	assert.ErrorIs(t, err, exception.ErrEngineUnavailable)
	assert.NotErrorIs(t, err, exception.ErrEngineTimeout)
}

func TestBridgeQueueFullTimesOut(t *testing.T) {
	e := New(Config{QueueSize: 1}, pipeline.NewMemoryStore(), &fakePrice{}, Limits{}, nil)
	require.NoError(t, e.Submit(t.Context(), NewGetPipeline(pipeline.Key{})))

	b := NewBridge(e, 20*time.Millisecond)
	err := b.DeletePipeline(t.Context(), "u1", uuid.New())
	assert.ErrorIs(t, err, exception.ErrEngineTimeout)
}

func TestBridgeReplyDropped(t *testing.T) {
	b := NewBridge(submitterFunc(func(_ context.Context, cmd Command) error {
		cmd.drop()
		return nil
	}), time.Second)

	err := b.DeletePipeline(t.Context(), "u1", uuid.New())
	assert.ErrorIs(t, err, exception.ErrEngineReplyDropped)
}

func TestBridgeCallerCanceled(t *testing.T) {
	b := NewBridge(submitterFunc(func(context.Context, Command) error {
		return nil
	}), time.Second)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := b.GetPipeline(ctx, "u1", uuid.New())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBridgePropagatesDomainError(t *testing.T) {
	b := NewBridge(submitterFunc(func(_ context.Context, cmd Command) error {
		respond(cmd.(DeletePipeline).Reply, Reply[struct{}]{Err: exception.ErrPipelineNotFound})
		return nil
	}), time.Second)

	err := b.DeletePipeline(t.Context(), "u1", uuid.New())
	assert.ErrorIs(t, err, exception.ErrPipelineNotFound)
}

// TestStoreFoldsCommands checks the store after a command sequence equals the
// sequence folded in order from empty.
func TestStoreFoldsCommands(t *testing.T) {
	owners := []string{"a", "b"}
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	rapid.Check(t, func(rt *rapid.T) {
		te, stop := newTestEngine(nil, Limits{})
		defer stop()
		ctx := context.Background()

		type op struct {
			add   bool
			owner string
			id    uuid.UUID
		}
		ops := rapid.SliceOfN(rapid.Custom(func(rt *rapid.T) op {
			return op{
				add:   rapid.Bool().Draw(rt, "add"),
				owner: rapid.SampledFrom(owners).Draw(rt, "owner"),
				id:    rapid.SampledFrom(ids).Draw(rt, "id"),
			}
		}), 1, 30).Draw(rt, "ops")

		model := make(map[pipeline.Key]bool)
		for _, o := range ops {
			key := pipeline.Key{UserID: o.owner, ID: o.id}
			if o.add {
				_, err := te.bridge.CreatePipeline(ctx, idleWire(t, o.id), te.as(o.owner))
				if model[key] {
					assert.ErrorIs(rt, err, exception.ErrPipelineDuplicate)
				} else {
					assert.NoError(rt, err)
				}
				model[key] = true
				continue
			}

			err := te.bridge.DeletePipeline(ctx, o.owner, o.id)
			if model[key] {
				assert.NoError(rt, err)
			} else {
				assert.ErrorIs(rt, err, exception.ErrPipelineNotFound)
			}
			delete(model, key)
		}

		for _, owner := range owners {
			for _, id := range ids {
				_, err := te.bridge.GetPipeline(ctx, owner, id)
				if model[pipeline.Key{UserID: owner, ID: id}] {
					assert.NoError(rt, err)
				} else {
					assert.ErrorIs(rt, err, exception.ErrPipelineNotFound)
				}
			}
		}
	})
}
