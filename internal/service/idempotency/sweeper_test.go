package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/storage/memory"
)

func seedKeys(t *testing.T, repo *memory.IdempotencyRepository, now time.Time, expired int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < expired; i++ {
		_, err := repo.CreateProcessing(ctx, fmt.Sprintf("order-%d", i), "hash", now.Add(-time.Duration(i+1)*time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "order-live", "hash", now.Add(time.Hour))
	require.NoError(t, err)
}

func TestSweeper_SweepRemovesExpiredKeysInBatches(t *testing.T) {
	t.Parallel()

	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()
	seedKeys(t, repo, now, 5)

	res, err := NewSweeper(repo, SweepConfig{BatchSize: 2}, nil).Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Deleted)
	assert.Equal(t, 3, res.Batches)
	assert.False(t, res.Truncated)
	assert.Equal(t, now, res.Cutoff)

	_, err = repo.Get(context.Background(), "order-live")
	require.NoError(t, err)
}

func TestSweeper_MaxBatchesLeavesRestForNextSweep(t *testing.T) {
	t.Parallel()

	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()
	seedKeys(t, repo, now, 5)
	sweeper := NewSweeper(repo, SweepConfig{BatchSize: 2, MaxBatches: 1}, nil)

	res, err := sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.True(t, res.Truncated)

	res, err = sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)

	res, err = sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.False(t, res.Truncated)
}

func TestSweeper_GraceKeepsRecentlyExpiredKeys(t *testing.T) {
	t.Parallel()

	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()
	// TTL истёк 1..4 минуты назад; с запасом 150s удаляются только 3 и 4 минуты.
	seedKeys(t, repo, now, 4)

	res, err := NewSweeper(repo, SweepConfig{Grace: 150 * time.Second}, nil).Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, now.Add(-150*time.Second), res.Cutoff)

	for _, key := range []string{"order-0", "order-1"} {
		_, err := repo.Get(context.Background(), key)
		require.NoError(t, err, key)
	}
}

func TestSweeper_SweepReportsStorageError(t *testing.T) {
	t.Parallel()

	repo := &scriptedKeys{IdempotencyRepository: memory.NewIdempotencyRepository(), deleted: []int{10}, err: errors.New("connection reset")}

	res, err := NewSweeper(repo, SweepConfig{BatchSize: 10}, nil).Sweep(context.Background(), time.Time{})
	require.EqualError(t, err, "connection reset")
	assert.Equal(t, 10, res.Deleted, "removed before the failure is still counted")
	assert.Equal(t, 1, res.Batches)
}

func TestSweeper_SweepHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSweeper(memory.NewIdempotencyRepository(), SweepConfig{}, nil).Sweep(ctx, time.Now())
	require.ErrorIs(t, err, context.Canceled)
}

func TestSweeper_RunSweepsImmediatelyAndStops(t *testing.T) {
	t.Parallel()

	repo := &scriptedKeys{IdempotencyRepository: memory.NewIdempotencyRepository()}
	logger, hook := test.NewNullLogger()
	sweeper := NewSweeper(repo, SweepConfig{Interval: 5 * time.Millisecond}, log.NewEntry(logger))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	require.Eventually(t, func() bool { return repo.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, "idempotency_sweeper", hook.AllEntries()[0].Data["component"])
}

func TestSweeper_RunWithoutStorageReturns(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	NewSweeper(nil, SweepConfig{}, log.NewEntry(logger)).Run(context.Background())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
}

func TestNewSweeper_NormalizesConfig(t *testing.T) {
	t.Parallel()

	cfg := NewSweeper(nil, SweepConfig{Interval: -1, BatchSize: 0, MaxBatches: -3, Grace: -time.Second}, nil).Config()
	assert.Equal(t, DefaultSweepConfig().Interval, cfg.Interval)
	assert.Equal(t, DefaultSweepConfig().BatchSize, cfg.BatchSize)
	assert.Zero(t, cfg.MaxBatches)
	assert.Zero(t, cfg.Grace)
}

// scriptedKeys отдаёт заранее заданные результаты DeleteExpired, затем err.
type scriptedKeys struct {
	domain.IdempotencyRepository
	deleted []int
	err     error
	calls   atomic.Int32
}

func (r *scriptedKeys) DeleteExpired(context.Context, time.Time, int) (int, error) {
	n := int(r.calls.Add(1))
	if n <= len(r.deleted) {
		return r.deleted[n-1], nil
	}
	return 0, r.err
}
