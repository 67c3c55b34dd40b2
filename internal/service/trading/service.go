// Package trading реализует прикладной слой: каталог, участники, заказы и отчёты поверх репозиториев.
package trading

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/metrics"
)

// ErrUnknownReport: отчёта с таким именем нет.
var ErrUnknownReport = errors.New("unknown report")

// Repositories: хранилища, с которыми работает сервис. Outbox необязателен.
type Repositories struct {
	Catalog  domain.CatalogRepository
	Parties  domain.PartyRepository
	Orders   domain.OrderRepository
	Timeline domain.TimelineRepository
	Outbox   domain.OutboxRepository
	Source   domain.QuerySource
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт метрики сервиса.
func WithMetrics(m *metrics.TradingMetrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Service выполняет сценарии торговли кофе.
//
// Каждая мутация заказа загружает агрегат, меняет его через методы агрегата,
// сохраняет с проверкой версии и только после этого пишет timeline и outbox.
type Service struct {
	ids     *domain.IdentifierRegistry
	repos   Repositories
	logger  *log.Entry
	metrics *metrics.TradingMetrics
}

// NewService создаёт сервис. ids: общий реестр идентификаторов процесса.
func NewService(ids *domain.IdentifierRegistry, repos Repositories, opts ...Option) *Service {
	s := &Service{
		ids:    ids,
		repos:  repos,
		logger: log.WithField("component", "trading-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewTradingMetricsWithRegisterer(prometheus.NewRegistry())
	}
	return s
}

// ParseOrderID разбирает идентификатор заказа любого вида по префиксу.
func ParseOrderID(raw string) (domain.Identifier, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, domain.KindSaleOrder.Prefix()):
		return domain.ParseIdentifier(domain.KindSaleOrder, raw)
	case strings.HasPrefix(raw, domain.KindImportOrder.Prefix()):
		return domain.ParseIdentifier(domain.KindImportOrder, raw)
	default:
		return domain.Identifier{}, &domain.InvalidIdentifierError{Kind: "order", Value: raw, Err: domain.ErrIdentifierPrefix}
	}
}

// change описывает, что записать в timeline и outbox после сохранения.
type change struct {
	timeline   string
	event      string
	lineItemID string
	reason     string
	noop       bool
}

// record пишет timeline и outbox. Заказ уже сохранён, поэтому ошибки только логируются.
func (s *Service) record(ctx context.Context, order *domain.Order, c change) {
	logger := s.logger.WithFields(log.Fields{
		"order_id": order.ID.String(),
		"event":    c.event,
	})

	if s.repos.Timeline != nil {
		err := s.repos.Timeline.Append(ctx, domain.TimelineEvent{
			OrderID:    order.ID,
			Type:       c.timeline,
			Reason:     c.reason,
			TotalAfter: order.TotalPrice(),
			Occurred:   order.UpdatedAt,
		})
		if err != nil {
			logger.WithError(err).Warn("failed to append timeline event")
		} else {
			s.metrics.RecordTimelineEvent()
		}
	}

	if s.repos.Outbox == nil {
		return
	}
	payload, err := json.Marshal(domain.NewOrderEvent(c.event, order, c.lineItemID))
	if err != nil {
		logger.WithError(err).Error("failed to marshal order event")
		return
	}
	if _, err := s.repos.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   order.ID.String(),
		EventType:     c.event,
		Payload:       payload,
	}); err != nil {
		logger.WithError(err).Error("failed to enqueue order event")
		return
	}
	s.metrics.RecordOutboxEvent()
}
