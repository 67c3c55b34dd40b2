// Package idempotency убирает устаревшие ключи идемпотентности CreateOrder.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

var (
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coffee_idempotency_sweeps_total",
		Help: "Idempotency key sweeps grouped by outcome (ok, truncated, error).",
	}, []string{"outcome"})
	sweptKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coffee_idempotency_swept_keys_total",
		Help: "Expired CreateOrder idempotency keys removed from storage.",
	})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coffee_idempotency_sweep_duration_seconds",
		Help:    "Wall time of a single idempotency key sweep.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})
)

// SweepConfig: параметры очистки. Нулевые Interval и BatchSize заменяются
// значениями по умолчанию, MaxBatches = 0 снимает ограничение.
type SweepConfig struct {
	Interval time.Duration
	// BatchSize: сколько ключей удаляет один запрос к хранилищу.
	BatchSize int
	// MaxBatches ограничивает число запросов за один проход, остаток уйдёт в следующий.
	MaxBatches int
	// Grace: ключ удаляется не раньше, чем через Grace после истечения TTL.
	// Переиспользовать просроченный ключ можно и раньше, запись остаётся для разбора.
	Grace time.Duration
}

// DefaultSweepConfig: раз в минуту, по 500 ключей, без ограничения числа пачек.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{Interval: time.Minute, BatchSize: 500}
}

func (c SweepConfig) normalized() SweepConfig {
	def := DefaultSweepConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxBatches < 0 {
		c.MaxBatches = 0
	}
	if c.Grace < 0 {
		c.Grace = 0
	}
	return c
}

// SweepResult: итог одного прохода.
type SweepResult struct {
	Cutoff  time.Time
	Deleted int
	Batches int
	// Truncated: проход остановлен по MaxBatches, просроченные ключи ещё остались.
	Truncated bool
}

// Sweeper периодически удаляет просроченные ключи идемпотентности.
type Sweeper struct {
	keys   domain.IdempotencyRepository
	cfg    SweepConfig
	logger *log.Entry
	now    func() time.Time
}

// NewSweeper создаёт очистку ключей поверх репозитория keys.
func NewSweeper(keys domain.IdempotencyRepository, cfg SweepConfig, logger *log.Entry) *Sweeper {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Sweeper{
		keys:   keys,
		cfg:    cfg.normalized(),
		logger: logger.WithField("component", "idempotency_sweeper"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Config возвращает действующие (нормализованные) параметры.
func (s *Sweeper) Config() SweepConfig {
	return s.cfg
}

// Run делает проход сразу и затем раз в Interval, пока не отменён ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.keys == nil {
		s.logger.Warn("no idempotency key storage, sweeping disabled")
		return
	}
	s.logger.WithFields(log.Fields{
		"interval":    s.cfg.Interval.String(),
		"batch_size":  s.cfg.BatchSize,
		"max_batches": s.cfg.MaxBatches,
		"grace":       s.cfg.Grace.String(),
	}).Info("idempotency key sweeper started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		s.sweepAndReport(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("idempotency key sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepAndReport(ctx context.Context) {
	started := time.Now()
	res, err := s.Sweep(ctx, s.now())
	sweepDuration.Observe(time.Since(started).Seconds())

	entry := s.logger.WithFields(log.Fields{
		"cutoff":  res.Cutoff.Format(time.RFC3339),
		"deleted": res.Deleted,
		"batches": res.Batches,
	})
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		sweepsTotal.WithLabelValues("error").Inc()
		entry.WithError(err).Warn("idempotency key sweep failed")
	case res.Truncated:
		sweepsTotal.WithLabelValues("truncated").Inc()
		entry.Info("idempotency key sweep hit batch limit, continuing next tick")
	default:
		sweepsTotal.WithLabelValues("ok").Inc()
		if res.Deleted > 0 {
			entry.Debug("idempotency keys swept")
		}
	}
}

// Sweep удаляет ключи с TTL не позже now-Grace. Удалённое до ошибки учитывается в результате.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	if now.IsZero() {
		now = s.now()
	}
	res := SweepResult{Cutoff: now.Add(-s.cfg.Grace)}

	for s.cfg.MaxBatches == 0 || res.Batches < s.cfg.MaxBatches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := s.keys.DeleteExpired(ctx, res.Cutoff, s.cfg.BatchSize)
		if err != nil {
			return res, err
		}
		res.Batches++
		res.Deleted += n
		sweptKeys.Add(float64(n))
		if n < s.cfg.BatchSize {
			return res, nil
		}
	}
	res.Truncated = true
	return res, nil
}
