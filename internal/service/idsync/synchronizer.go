// Package idsync поднимает счётчики идентификаторов до максимума, уже лежащего в хранилище.
package idsync

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/metrics"
)

const defaultConcurrency = 4

// Option настраивает Synchronizer.
type Option func(*Synchronizer)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Synchronizer) { s.logger = logger }
}

// WithMetrics включает публикацию watermark и исходов сверки.
func WithMetrics(m *metrics.TradingMetrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// WithKinds ограничивает набор сверяемых видов.
func WithKinds(kinds ...domain.Kind) Option {
	return func(s *Synchronizer) { s.kinds = kinds }
}

// WithConcurrency задаёт число параллельных запросов к хранилищу.
func WithConcurrency(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Synchronizer сверяет реестр идентификаторов с IdentifierRangeSource.
type Synchronizer struct {
	ids         *domain.IdentifierRegistry
	src         domain.IdentifierRangeSource
	logger      *log.Entry
	metrics     *metrics.TradingMetrics
	kinds       []domain.Kind
	concurrency int
}

// New создаёт Synchronizer для всех видов domain.Kinds().
func New(ids *domain.IdentifierRegistry, src domain.IdentifierRangeSource, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		ids:         ids,
		src:         src,
		kinds:       domain.Kinds(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "idsync")
	}
	return s
}

// Sync запрашивает диапазоны всех видов и вызывает ReconcileRange для каждого.
// Первая ошибка отменяет оставшиеся запросы; уже сверенные счётчики остаются поднятыми.
func (s *Synchronizer) Sync(ctx context.Context) (map[domain.Kind]int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var (
		mu     sync.Mutex
		result = make(map[domain.Kind]int64, len(s.kinds))
	)
	for _, kind := range s.kinds {
		g.Go(func() error {
			watermark, err := s.syncKind(gctx, kind)
			if err != nil {
				return err
			}
			mu.Lock()
			result[kind] = watermark
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	s.logger.WithField("watermarks", result).Info("identifier counters synchronised with storage")
	return result, nil
}

func (s *Synchronizer) syncKind(ctx context.Context, kind domain.Kind) (int64, error) {
	allocator := s.ids.Allocator(kind)

	r, err := s.src.IdentifierRange(ctx, kind)
	if err == nil {
		err = allocator.ReconcileRange(r.MinID, r.MaxID)
	}
	if s.metrics != nil {
		s.metrics.RecordSyncRun(string(kind), err)
	}
	if err != nil {
		return 0, fmt.Errorf("sync %s identifiers: %w", kind, err)
	}

	watermark := allocator.Watermark()
	if s.metrics != nil {
		s.metrics.SetWatermark(string(kind), watermark)
	}
	s.logger.WithFields(log.Fields{
		"kind":      kind,
		"min_id":    r.MinID,
		"max_id":    r.MaxID,
		"watermark": watermark,
	}).Debug("identifier range reconciled")
	return watermark, nil
}
