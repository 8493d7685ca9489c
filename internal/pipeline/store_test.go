package pipeline

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/pkg/exception"
)

func runStoreContract(t *testing.T, store Store) {
	ctx := t.Context()

	p1 := newTestPipeline(t, "u1")
	p2 := newTestPipeline(t, "u1")
	other := newTestPipeline(t, "u2")

	require.NoError(t, store.Insert(ctx, p1))
	require.NoError(t, store.Insert(ctx, p2))
	require.NoError(t, store.Insert(ctx, other))
	assert.ErrorIs(t, store.Insert(ctx, p1), exception.ErrPipelineDuplicate)

	got, err := store.Get(ctx, p1.Key())
	require.NoError(t, err)
	assert.Equal(t, p1.ID, got.ID)
	assert.Equal(t, p1.WalletAddress, got.WalletAddress)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, 0, got.Steps[1].Conditions[0].Value.Cmp(p1.Steps[1].Conditions[0].Value))

	_, err = store.Get(ctx, Key{UserID: "u2", ID: p1.ID})
	assert.ErrorIs(t, err, exception.ErrPipelineNotFound, "other owner must not see the pipeline")

	n, err := store.CountByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	p2.Status = StatusFailed
	require.NoError(t, store.Update(ctx, p2))
	pending, err = store.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	assert.ErrorIs(t, store.Update(ctx, Pipeline{UserID: "u1", ID: uuid.New()}), exception.ErrPipelineNotFound)

	assert.ErrorIs(t, store.Delete(ctx, Key{UserID: "u2", ID: p1.ID}), exception.ErrPipelineNotFound)
	require.NoError(t, store.Delete(ctx, p1.Key()))
	assert.ErrorIs(t, store.Delete(ctx, p1.Key()), exception.ErrPipelineNotFound)
	_, err = store.Get(ctx, p1.Key())
	assert.ErrorIs(t, err, exception.ErrPipelineNotFound)

	n, err = store.CountByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStoreContract(t *testing.T) {
	store := NewMemoryStore()
	runStoreContract(t, store)
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	p := newTestPipeline(t, "u1")
	require.NoError(t, store.Insert(t.Context(), p))

	got, err := store.Get(t.Context(), p.Key())
	require.NoError(t, err)
	got.Steps[0].Status = StepFailed

	again, err := store.Get(t.Context(), p.Key())
	require.NoError(t, err)
	assert.Equal(t, StepPending, again.Steps[0].Status)
}

func TestRedisStoreContract(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, WithRedisPrefix("test:pipeline:"))
	defer store.Close()

	runStoreContract(t, store)
}

func newRedisStore(t *testing.T, prefix string) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(backend.NewClient(&backend.Options{Addr: mr.Addr()}), WithRedisPrefix(prefix))
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreWritesAllOrNothing(t *testing.T) {
	ctx := t.Context()
	store, mr := newRedisStore(t, "t:")
	p := newTestPipeline(t, "u1")
	doc := "t:p:u1:" + p.ID.String()

	require.NoError(t, mr.Set("t:owner:u1", "corrupt"))
	err := store.Insert(ctx, p)
	require.Error(t, err)
	assert.NotErrorIs(t, err, exception.ErrPipelineDuplicate)
	assert.False(t, mr.Exists(doc), "document must not outlive a failed index")

	mr.Del("t:owner:u1")
	require.NoError(t, store.Insert(ctx, p), "a retry is not a duplicate")
	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	mr.Del("t:pending")
	require.NoError(t, mr.Set("t:pending", "corrupt"))
	p.Status = StatusCompleted
	require.Error(t, store.Update(ctx, p))
	got, err := store.Get(ctx, p.Key())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	require.Error(t, store.Delete(ctx, p.Key()))
	assert.True(t, mr.Exists(doc))

	mr.Del("t:pending")
	require.NoError(t, store.Delete(ctx, p.Key()))
	assert.False(t, mr.Exists(doc))
	n, err := store.CountByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisStoreKeysDoNotCollide(t *testing.T) {
	ctx := t.Context()
	store, _ := newRedisStore(t, defaultRedisPrefix)

	id := uuid.New()
	p := newTestPipeline(t, "owner")
	p.ID = id
	require.NoError(t, store.Insert(ctx, p))

	n, err := store.CountByOwner(ctx, id.String())
	require.NoError(t, err)
	assert.Zero(t, n)

	q := newTestPipeline(t, id.String())
	require.NoError(t, store.Insert(ctx, q))
	n, err = store.CountByOwner(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, p.Key())
	require.NoError(t, err)
	assert.Equal(t, "owner", got.UserID)
}
