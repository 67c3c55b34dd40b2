package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TradingMetrics содержит метрики операций над заказами, отчётов и счётчиков идентификаторов.
type TradingMetrics struct {
	ordersCreated     *prometheus.CounterVec
	lineItemMutations *prometheus.CounterVec
	invariantFailures *prometheus.CounterVec

	reportRuns     *prometheus.CounterVec
	reportDuration *prometheus.HistogramVec
	reportResults  *prometheus.HistogramVec

	watermarks *prometheus.GaugeVec
	syncRuns   *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewTradingMetrics создаёт метрики в DefaultRegisterer.
func NewTradingMetrics() *TradingMetrics {
	return NewTradingMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewTradingMetricsWithRegisterer создаёт метрики в заданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewTradingMetricsWithRegisterer(registerer prometheus.Registerer) *TradingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &TradingMetrics{
		ordersCreated: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coffee_orders_created_total",
			Help: "Total number of orders created grouped by order kind.",
		}, []string{"kind"})),
		lineItemMutations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coffee_line_item_mutations_total",
			Help: "Total number of line item mutations grouped by operation and result.",
		}, []string{"op", "result"})),
		invariantFailures: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coffee_order_invariant_failures_total",
			Help: "Total number of loaded orders whose stored total or count drifted from line items.",
		}, []string{"kind"})),
		reportRuns: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coffee_report_runs_total",
			Help: "Total number of report runs grouped by report and result.",
		}, []string{"report", "result"})),
		reportDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coffee_report_duration_seconds",
			Help:    "Duration of report runs in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"report"})),
		reportResults: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coffee_report_results",
			Help:    "Number of entities returned by a report run.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 6),
		}, []string{"report"})),
		watermarks: register(registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coffee_identifier_watermark",
			Help: "Highest identifier sequence issued or observed per entity kind.",
		}, []string{"kind"})),
		syncRuns: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coffee_identifier_sync_runs_total",
			Help: "Total number of identifier counter reconciliations grouped by kind and result.",
		}, []string{"kind", "result"})),
		timelineEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coffee_timeline_events_total",
			Help: "Total number of order timeline events recorded.",
		})),
		outboxEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coffee_outbox_events_total",
			Help: "Total number of order events enqueued to the outbox.",
		})),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", already.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordOrderCreated учитывает созданный заказ.
func (m *TradingMetrics) RecordOrderCreated(kind string) {
	m.ordersCreated.WithLabelValues(kind).Inc()
}

// RecordLineItemMutation учитывает изменение позиций: op один из add/remove/update/replace.
func (m *TradingMetrics) RecordLineItemMutation(op string, err error) {
	m.lineItemMutations.WithLabelValues(op, result(err)).Inc()
}

// RecordInvariantFailure учитывает расхождение суммы или счётчика у загруженного заказа.
func (m *TradingMetrics) RecordInvariantFailure(kind string) {
	m.invariantFailures.WithLabelValues(kind).Inc()
}

// RecordReportRun записывает исход, длительность и размер выдачи отчёта.
func (m *TradingMetrics) RecordReportRun(report string, duration time.Duration, results int, err error) {
	m.reportRuns.WithLabelValues(report, result(err)).Inc()
	m.reportDuration.WithLabelValues(report).Observe(duration.Seconds())
	if err == nil {
		m.reportResults.WithLabelValues(report).Observe(float64(results))
	}
}

// SetWatermark публикует текущий watermark счётчика вида kind.
func (m *TradingMetrics) SetWatermark(kind string, watermark int64) {
	m.watermarks.WithLabelValues(kind).Set(float64(watermark))
}

// RecordSyncRun учитывает сверку счётчика вида kind с хранилищем.
func (m *TradingMetrics) RecordSyncRun(kind string, err error) {
	m.syncRuns.WithLabelValues(kind, result(err)).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *TradingMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *TradingMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
