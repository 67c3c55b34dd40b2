package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// orderRepository: in-memory реализация OrderRepository поверх Store.
type orderRepository struct {
	s *Store
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r orderRepository) Create(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.orders[order.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, order.ID)
	}
	if err := r.s.checkItemsLocked(order); err != nil {
		return err
	}
	r.s.orders[order.ID] = recordFromOrder(order)
	return nil
}

// Get собирает заказ из записи или возвращает ErrNotFound.
func (r orderRepository) Get(ctx context.Context, id domain.Identifier) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return r.s.restoreOrderLocked(rec)
}

// Save перезаписывает заказ, проверяя версию (optimistic locking). При успехе
// версия переданного заказа увеличивается.
func (r orderRepository) Save(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, order.ID)
	}
	if current.version != order.Version {
		return fmt.Errorf("%w: %s expected version %d, stored %d", domain.ErrVersionConflict, order.ID, order.Version, current.version)
	}
	if err := r.s.checkItemsLocked(order); err != nil {
		return err
	}

	order.Version++
	order.UpdatedAt = time.Now().UTC()
	r.s.orders[order.ID] = recordFromOrder(order)
	return nil
}

func recordFromOrder(order *domain.Order) orderRecord {
	items := order.Items()
	rec := orderRecord{
		id:           order.ID,
		counterparty: order.Counterparty,
		agent:        order.Agent,
		date:         order.Date,
		total:        order.TotalPrice(),
		version:      order.Version,
		createdAt:    order.CreatedAt,
		updatedAt:    order.UpdatedAt,
		items:        make([]lineItemRecord, 0, len(items)),
	}
	for _, item := range items {
		rec.items = append(rec.items, lineItemRecord{
			id:        item.ID,
			coffeeID:  item.Coffee.ID,
			qty:       item.Qty,
			createdAt: item.CreatedAt,
		})
	}
	return rec
}

// checkItemsLocked проверяет, что позиции ссылаются на сохранённый каталог.
func (s *Store) checkItemsLocked(order *domain.Order) error {
	for _, item := range order.Items() {
		if _, ok := s.coffees[item.Coffee.ID]; !ok {
			return fmt.Errorf("%w: coffee %s", domain.ErrNotFound, item.Coffee.ID)
		}
	}
	return nil
}

// restoreOrderLocked собирает агрегат из записи. Вызывать под s.mu.
func (s *Store) restoreOrderLocked(rec orderRecord) (*domain.Order, error) {
	items := make([]*domain.LineItem, 0, len(rec.items))
	for _, ir := range rec.items {
		coffee, err := s.coffeeLocked(ir.coffeeID)
		if err != nil {
			return nil, fmt.Errorf("restore order %s: %w", rec.id, err)
		}
		items = append(items, &domain.LineItem{
			ID:        ir.id,
			OrderID:   rec.id,
			Coffee:    coffee,
			Qty:       ir.qty,
			CreatedAt: ir.createdAt,
		})
	}

	order, err := domain.RestoreOrder(s.ids, rec.id, rec.counterparty, rec.agent, rec.date, rec.total, items)
	if err != nil {
		return nil, fmt.Errorf("restore order %s: %w", rec.id, err)
	}
	order.Version = rec.version
	order.CreatedAt = rec.createdAt
	order.UpdatedAt = rec.updatedAt
	return order, nil
}

var _ domain.OrderRepository = orderRepository{}
