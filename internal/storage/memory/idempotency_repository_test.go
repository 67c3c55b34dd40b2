package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/storage/memory"
)

func TestIdempotencyRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing(ctx, " order-key ", "hash-1", ttl)
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, created.Status)
	assert.Equal(t, "order-key", created.Key)

	got, err := repo.Get(ctx, "order-key")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.RequestHash)
	assert.True(t, got.TTLAt.Equal(ttl))
}

func TestIdempotencyRepository_ConflictAndHashMismatch(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, "key-2", "hash-a", ttl)
	require.NoError(t, err)

	_, err = repo.CreateProcessing(ctx, "key-2", "hash-a", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)

	existing, err := repo.CreateProcessing(ctx, "key-2", "hash-b", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	assert.Equal(t, "hash-a", existing.RequestHash)
}

func TestIdempotencyRepository_RequiredFields(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing(ctx, "  ", "hash", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing(ctx, "key", "", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
	require.ErrorIs(t, repo.MarkDone(ctx, "missing", nil, 0), domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_MarkDoneAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing(ctx, "done", "h1", time.Time{})
	require.NoError(t, err)
	_, err = repo.CreateProcessing(ctx, "failed", "h2", time.Time{})
	require.NoError(t, err)

	body := []byte(`{"id":"SO1"}`)
	require.NoError(t, repo.MarkDone(ctx, "done", body, 0))
	body[2] = 'X'
	require.NoError(t, repo.MarkFailed(ctx, "failed", []byte(`{"code":3}`), 3))

	done, err := repo.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, done.Status)
	assert.Equal(t, `{"id":"SO1"}`, string(done.ResponseBody))

	failed, err := repo.Get(ctx, "failed")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusFailed, failed.Status)
	assert.Equal(t, 3, failed.StatusCode)
}

func TestIdempotencyRepository_DeleteExpiredOldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	_, err := repo.CreateProcessing(ctx, "oldest", "h", now.Add(-3*time.Hour))
	require.NoError(t, err)
	_, err = repo.CreateProcessing(ctx, "older", "h", now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = repo.CreateProcessing(ctx, "active", "h", now.Add(time.Hour))
	require.NoError(t, err)

	deleted, err := repo.DeleteExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	_, err = repo.Get(ctx, "oldest")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	deleted, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = repo.Get(ctx, "active")
	require.NoError(t, err)
}

func TestIdempotencyRepository_ExpiredKeyIsReusable(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing(ctx, "stale", "hash-a", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.MarkDone(ctx, "stale", []byte(`{}`), 0))

	fresh, err := repo.CreateProcessing(ctx, "stale", "hash-b", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, fresh.Status)
	assert.Equal(t, "hash-b", fresh.RequestHash)
	assert.Empty(t, fresh.ResponseBody)
}
