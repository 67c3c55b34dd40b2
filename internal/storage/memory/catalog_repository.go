package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

type catalogRepository struct {
	s *Store
}

func (r catalogRepository) CreateCoffeeType(ctx context.Context, t *domain.TypeOfCoffee) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.types[t.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, t.ID)
	}
	r.s.types[t.ID] = *t
	return nil
}

func (r catalogRepository) GetCoffeeType(ctx context.Context, id domain.Identifier) (*domain.TypeOfCoffee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.types[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return &t, nil
}

// SaveCoffee создаёт позицию или обновляет существующую. Сорт должен быть сохранён заранее.
func (r catalogRepository) SaveCoffee(ctx context.Context, c *domain.Coffee) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if c.Type == nil {
		return &domain.ValidationError{Entity: "coffee", Field: "Type", Rule: "required"}
	}
	typ, ok := r.s.types[c.Type.ID]
	if !ok {
		return fmt.Errorf("%w: coffee type %s", domain.ErrNotFound, c.Type.ID)
	}
	stored := *c
	stored.Type = &typ
	r.s.coffees[c.ID] = stored
	return nil
}

func (r catalogRepository) GetCoffee(ctx context.Context, id domain.Identifier) (*domain.Coffee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.coffeeLocked(id)
}

// coffeeLocked возвращает копию позиции с актуальным сортом. Вызывать под s.mu.
func (s *Store) coffeeLocked(id domain.Identifier) (*domain.Coffee, error) {
	c, ok := s.coffees[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if c.Type != nil {
		if typ, ok := s.types[c.Type.ID]; ok {
			c.Type = &typ
		}
	}
	return &c, nil
}

var _ domain.CatalogRepository = catalogRepository{}
