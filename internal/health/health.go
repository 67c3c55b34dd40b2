// Package health отдаёт HTTP-пробы сервиса: liveness, readiness и сводный /healthz.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// Status компонента. Порядок констант задаёт тяжесть.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const defaultCheckTimeout = 2 * time.Second

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check: результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response: тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент и обязан уважать ctx.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler собирает проверки и отдаёт их по HTTP.
type Handler struct {
	version string
	started time.Time
	timeout time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewHandler(version string) *Handler {
	return &Handler{
		version:  version,
		started:  time.Now(),
		timeout:  defaultCheckTimeout,
		checkers: make(map[string]Checker),
	}
}

// RegisterChecker добавляет или заменяет проверку name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Run запускает проверки параллельно под общим таймаутом. Итог: худший из статусов.
func (h *Handler) Run(ctx context.Context) (map[string]Check, Status) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	slices.Sort(names)
	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = h.checkers[name]
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]Check, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]Check, len(names))
	overall := StatusHealthy
	for i, name := range names {
		checks[name] = results[i]
		if results[i].Status.severity() > overall.severity() {
			overall = results[i].Status
		}
	}
	return checks, overall
}

// ServeHTTP отдаёт сводку; 503 только при unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks, overall := h.Run(r.Context())
	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	})
}

// LivenessHandler отвечает 200, пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler снимает сервис с трафика только при unhealthy; degraded остаётся готовым.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	code, body := http.StatusOK, "ready"
	if _, overall := h.Run(r.Context()); overall == StatusUnhealthy {
		code, body = http.StatusServiceUnavailable, "not ready"
	}
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// SimpleChecker превращает функцию с ошибкой в проверку healthy/unhealthy.
type SimpleChecker struct {
	name  string
	probe func(ctx context.Context) error
}

func NewSimpleChecker(name string, probe func(ctx context.Context) error) *SimpleChecker {
	return &SimpleChecker{name: name, probe: probe}
}

func (c *SimpleChecker) Check(ctx context.Context) Check {
	return timed(c.name, func() (Status, string) {
		if err := c.probe(ctx); err != nil {
			return StatusUnhealthy, err.Error()
		}
		return StatusHealthy, ""
	})
}

// Pinger: хранилище, которое умеет проверять соединение.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewStorageChecker проверяет доступность хранилища заказов и каталога.
func NewStorageChecker(p Pinger) *SimpleChecker {
	return NewSimpleChecker("storage", p.Ping)
}

// OutboxChecker помечает сервис degraded, когда самое старое неотправленное
// событие ждёт дольше maxLag.
type OutboxChecker struct {
	repo   domain.OutboxRepository
	maxLag time.Duration
}

func NewOutboxChecker(repo domain.OutboxRepository, maxLag time.Duration) *OutboxChecker {
	return &OutboxChecker{repo: repo, maxLag: maxLag}
}

func (c *OutboxChecker) Check(ctx context.Context) Check {
	return timed("outbox", func() (Status, string) {
		stats, err := c.repo.Stats(ctx)
		if err != nil {
			return StatusUnhealthy, err.Error()
		}
		if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() || c.maxLag <= 0 {
			return StatusHealthy, ""
		}
		if lag := time.Since(stats.OldestPendingAt); lag > c.maxLag {
			return StatusDegraded, fmt.Sprintf("%d pending, oldest %s", stats.PendingCount, lag.Truncate(time.Second))
		}
		return StatusHealthy, ""
	})
}

func timed(name string, probe func() (Status, string)) Check {
	start := time.Now()
	status, msg := probe()
	return Check{Name: name, Status: status, Message: msg, DurationMs: time.Since(start).Milliseconds()}
}
