package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdempotencyReservation(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	rec, err := NewIdempotencyReservation("  order-42 ", " h1 ", time.Time{}, now)
	require.NoError(t, err)
	assert.Equal(t, "order-42", rec.Key)
	assert.Equal(t, "h1", rec.RequestHash)
	assert.Equal(t, IdempotencyStatusProcessing, rec.Status)
	assert.Equal(t, now.Add(DefaultIdempotencyTTL), rec.TTLAt)
	assert.Equal(t, now, rec.CreatedAt)

	ttl := now.Add(time.Minute)
	rec, err = NewIdempotencyReservation("k", "h", ttl, now)
	require.NoError(t, err)
	assert.Equal(t, ttl, rec.TTLAt)

	_, err = NewIdempotencyReservation(" ", "h", ttl, now)
	assert.ErrorIs(t, err, ErrIdempotencyKeyRequired)
	_, err = NewIdempotencyReservation("k", "", ttl, now)
	assert.ErrorIs(t, err, ErrIdempotencyRequestHashRequired)
}

func TestIdempotencyRecord_ExpiredAndConflict(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	rec := IdempotencyRecord{Key: "k", RequestHash: "h", TTLAt: now}

	assert.True(t, rec.Expired(now))
	assert.True(t, rec.Expired(now.Add(time.Second)))
	assert.False(t, rec.Expired(now.Add(-time.Second)))

	assert.ErrorIs(t, rec.Conflict("h"), ErrIdempotencyKeyAlreadyExists)
	assert.ErrorIs(t, rec.Conflict("other"), ErrIdempotencyHashMismatch)
}

func TestIdempotencyRecord_CloneCopiesBody(t *testing.T) {
	rec := IdempotencyRecord{ResponseBody: []byte("abc")}
	cp := rec.Clone()
	cp.ResponseBody[0] = 'x'
	assert.Equal(t, "abc", string(rec.ResponseBody))
}

func TestIdempotencyStatusValid(t *testing.T) {
	for _, s := range []IdempotencyStatus{IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, IdempotencyStatus("broken").Valid())
}
