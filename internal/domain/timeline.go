package domain

import "time"

// Типы событий timeline заказа.
const (
	TimelineOrderCreated      = "OrderCreated"
	TimelineLineItemAdded     = "LineItemAdded"
	TimelineLineItemRemoved   = "LineItemRemoved"
	TimelineLineItemUpdated   = "LineItemUpdated"
	TimelineLineItemsReplaced = "LineItemsReplaced"
)

// TimelineEvent описывает изменение заказа и сумму после него.
type TimelineEvent struct {
	OrderID    Identifier
	Type       string
	Reason     string
	TotalAfter Money
	Occurred   time.Time
}
