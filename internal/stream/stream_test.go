package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"orchestrator/pkg/exception"
)

func TestTrackerTransitions(t *testing.T) {
	tr := NewTracker("test")
	assert.Equal(t, StateDisconnected, tr.State())

	assert.False(t, tr.Transition(StateStreaming), "cannot stream before connecting")
	assert.True(t, tr.Transition(StateConnecting))
	assert.False(t, tr.Transition(StateConnecting))
	assert.True(t, tr.Transition(StateStreaming))
	assert.Equal(t, StateStreaming, tr.State())
	assert.True(t, tr.Transition(StateDisconnected))
	assert.Equal(t, "disconnected", tr.State().String())
}

func TestSuperviseRestartsUntilCleanStop(t *testing.T) {
	calls := 0
	err := Supervise(t.Context(), "test", Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return exception.ErrStreamTransport
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSuperviseAttemptsExhausted(t *testing.T) {
	calls := 0
	err := Supervise(t.Context(), "test", Backoff{Min: time.Millisecond, Attempts: 2}, func(ctx context.Context) error {
		calls++
		return errors.Wrap(exception.ErrStreamTransport, "read")
	})
	assert.ErrorIs(t, err, exception.ErrStreamTransport)
	assert.Equal(t, 2, calls)
}

func TestSuperviseStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Supervise(ctx, "test", Backoff{Min: 5 * time.Millisecond}, func(ctx context.Context) error {
			return exception.ErrStreamTransport
		})
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervise did not stop after context cancel")
	}
}
