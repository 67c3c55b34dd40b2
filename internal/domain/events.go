package domain

import (
	"encoding/json"
	"time"
)

// Типы событий заказа, уходящих через outbox.
const (
	OrderEventCreated           = "order.created"
	OrderEventLineItemAdded     = "order.line_item_added"
	OrderEventLineItemRemoved   = "order.line_item_removed"
	OrderEventLineItemUpdated   = "order.line_item_updated"
	OrderEventLineItemsReplaced = "order.line_items_replaced"
)

// OutboxAggregateOrder: значение OutboxMessage.AggregateType для событий заказа.
const OutboxAggregateOrder = "order"

// OrderEvent: полезная нагрузка события заказа.
type OrderEvent struct {
	EventType    string    `json:"event_type"`
	OrderID      string    `json:"order_id"`
	Kind         Kind      `json:"kind"`
	Counterparty string    `json:"counterparty_id"`
	Agent        string    `json:"agent_id"`
	LineItemID   string    `json:"line_item_id,omitempty"`
	ItemCount    int       `json:"item_count"`
	TotalMinor   int64     `json:"total_minor"`
	Version      int64     `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewOrderEvent снимает состояние заказа после изменения.
func NewOrderEvent(eventType string, order *Order, lineItemID string) OrderEvent {
	return OrderEvent{
		EventType:    eventType,
		OrderID:      order.ID.String(),
		Kind:         order.Kind(),
		Counterparty: order.Counterparty.String(),
		Agent:        order.Agent.String(),
		LineItemID:   lineItemID,
		ItemCount:    order.Count(),
		TotalMinor:   order.TotalPrice().Minor(),
		Version:      order.Version,
		Timestamp:    time.Now().UTC(),
	}
}

// OutboxDeadLetter: конверт события, не доставленного после всех попыток.
// Уходит в DLQ и читается обратно при повторной публикации.
type OutboxDeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// Message восстанавливает исходное outbox-сообщение.
func (l OutboxDeadLetter) Message() OutboxMessage {
	return OutboxMessage{
		ID:            l.OutboxID,
		AggregateType: l.AggregateType,
		AggregateID:   l.AggregateID,
		EventType:     l.EventType,
		Payload:       []byte(l.Payload),
	}
}
