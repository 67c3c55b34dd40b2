package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

type partyRepository struct {
	s *Store
}

// put сохраняет значение, если ключ ещё не занят.
func put[V any](ctx context.Context, s *Store, m map[domain.Identifier]V, id domain.Identifier, v V) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := m[id]; exists {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, id)
	}
	m[id] = v
	return nil
}

// get возвращает копию значения или ErrNotFound.
func get[V any](ctx context.Context, s *Store, m map[domain.Identifier]V, id domain.Identifier) (*V, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return &v, nil
}

func (r partyRepository) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	return put(ctx, r.s, r.s.customers, c.ID, *c)
}

func (r partyRepository) GetCustomer(ctx context.Context, id domain.Identifier) (*domain.Customer, error) {
	return get(ctx, r.s, r.s.customers, id)
}

func (r partyRepository) CreateSupplier(ctx context.Context, s *domain.Supplier) error {
	return put(ctx, r.s, r.s.suppliers, s.ID, *s)
}

func (r partyRepository) GetSupplier(ctx context.Context, id domain.Identifier) (*domain.Supplier, error) {
	return get(ctx, r.s, r.s.suppliers, id)
}

func (r partyRepository) CreateImporter(ctx context.Context, im *domain.Importer) error {
	return put(ctx, r.s, r.s.importers, im.ID, *im)
}

func (r partyRepository) GetImporter(ctx context.Context, id domain.Identifier) (*domain.Importer, error) {
	return get(ctx, r.s, r.s.importers, id)
}

func (r partyRepository) CreateSeller(ctx context.Context, s *domain.Seller) error {
	return put(ctx, r.s, r.s.sellers, s.ID, *s)
}

func (r partyRepository) GetSeller(ctx context.Context, id domain.Identifier) (*domain.Seller, error) {
	return get(ctx, r.s, r.s.sellers, id)
}

func (r partyRepository) CreateDistrict(ctx context.Context, d *domain.District) error {
	return put(ctx, r.s, r.s.districts, d.ID, *d)
}

func (r partyRepository) CreateStreet(ctx context.Context, st *domain.Street) error {
	return put(ctx, r.s, r.s.streets, st.ID, *st)
}

var _ domain.PartyRepository = partyRepository{}
