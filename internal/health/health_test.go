package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/storage/memory"
)

type fixedChecker Check

func (c fixedChecker) Check(context.Context) Check { return Check(c) }

func serve(t *testing.T, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
		code     int
	}{
		{"no checks", nil, StatusHealthy, http.StatusOK},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy, http.StatusOK},
		{"degraded wins over healthy", []Status{StatusHealthy, StatusDegraded}, StatusDegraded, http.StatusOK},
		{"unhealthy wins", []Status{StatusUnhealthy, StatusDegraded, StatusHealthy}, StatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler("v1.2.3")
			for i, s := range tt.statuses {
				name := string(rune('a' + i))
				h.RegisterChecker(name, fixedChecker{Name: name, Status: s})
			}

			w := serve(t, h.ServeHTTP)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.want, resp.Status)
			assert.Equal(t, "v1.2.3", resp.Version)
			assert.Len(t, resp.Checks, len(tt.statuses))
		})
	}
}

func TestProbes(t *testing.T) {
	w := serve(t, LivenessHandler)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	h := NewHandler("test")
	h.RegisterChecker("storage", NewStorageChecker(memory.NewStore(domain.NewIdentifierRegistry())))
	h.RegisterChecker("outbox", fixedChecker{Status: StatusDegraded})
	w = serve(t, h.ReadinessHandler)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", w.Body.String())

	// Повторная регистрация заменяет проверку.
	h.RegisterChecker("outbox", fixedChecker{Status: StatusUnhealthy})
	w = serve(t, h.ReadinessHandler)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not ready", w.Body.String())
}

func TestSimpleChecker(t *testing.T) {
	ok := NewSimpleChecker("db", func(context.Context) error { return nil }).Check(context.Background())
	assert.Equal(t, Check{Name: "db", Status: StatusHealthy, DurationMs: ok.DurationMs}, ok)

	bad := NewSimpleChecker("db", func(context.Context) error { return errors.New("refused") }).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, bad.Status)
	assert.Equal(t, "refused", bad.Message)
}

func TestHandler_RunAppliesTimeout(t *testing.T) {
	h := NewHandler("test")
	h.timeout = 20 * time.Millisecond
	wait := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	h.RegisterChecker("slow-a", NewSimpleChecker("slow-a", wait))
	h.RegisterChecker("slow-b", NewSimpleChecker("slow-b", wait))

	start := time.Now()
	checks, overall := h.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, overall)
	assert.Equal(t, context.DeadlineExceeded.Error(), checks["slow-a"].Message)
	assert.Equal(t, context.DeadlineExceeded.Error(), checks["slow-b"].Message)
	// Проверки идут параллельно и укладываются в один таймаут.
	assert.Less(t, time.Since(start), time.Second)
}

type stubOutbox struct {
	domain.OutboxRepository
	stats domain.OutboxStats
	err   error
}

func (s stubOutbox) Stats(context.Context) (domain.OutboxStats, error) { return s.stats, s.err }

func TestOutboxChecker(t *testing.T) {
	stale := domain.OutboxStats{PendingCount: 2, OldestPendingAt: time.Now().Add(-10 * time.Minute)}
	tests := []struct {
		name   string
		repo   stubOutbox
		maxLag time.Duration
		want   Status
	}{
		{"empty", stubOutbox{}, time.Minute, StatusHealthy},
		{"fresh backlog", stubOutbox{stats: domain.OutboxStats{PendingCount: 1, OldestPendingAt: time.Now()}}, time.Minute, StatusHealthy},
		{"stale backlog", stubOutbox{stats: stale}, time.Minute, StatusDegraded},
		{"lag check disabled", stubOutbox{stats: stale}, 0, StatusHealthy},
		{"stats error", stubOutbox{err: errors.New("db down")}, time.Minute, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewOutboxChecker(tt.repo, tt.maxLag).Check(context.Background())
			assert.Equal(t, tt.want, check.Status, check.Message)
			assert.Equal(t, "outbox", check.Name)
		})
	}
}
