package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// RetrieveByFuzzyMatch реализует domain.QuerySource: поиск подстроки (с учётом регистра).
func (s *Store) RetrieveByFuzzyMatch(ctx context.Context, kind domain.Kind, field, substring string) ([]domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDataSourceUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Entity
	match := func(value string) bool { return strings.Contains(value, substring) }

	switch {
	case kind == domain.KindTypeOfCoffee && field == domain.FieldTypeOfCoffeeName:
		for _, t := range s.types {
			if match(t.Name) {
				out = append(out, &t)
			}
		}
	case kind == domain.KindCoffee && field == domain.FieldCoffeeName:
		for id, c := range s.coffees {
			if match(c.Name) {
				coffee, err := s.coffeeLocked(id)
				if err != nil {
					return nil, err
				}
				out = append(out, coffee)
			}
		}
	case kind == domain.KindCustomer && field == domain.FieldCustomerName:
		for _, c := range s.customers {
			if match(c.FullName) {
				out = append(out, &c)
			}
		}
	case kind == domain.KindImporter && field == domain.FieldImporterName:
		for _, im := range s.importers {
			if match(im.FullName) {
				out = append(out, &im)
			}
		}
	case kind == domain.KindSeller && field == domain.FieldSellerName:
		for _, se := range s.sellers {
			if match(se.FullName) {
				out = append(out, &se)
			}
		}
	case kind == domain.KindSupplier && field == domain.FieldSupplierName:
		for _, sup := range s.suppliers {
			if match(sup.Name) {
				out = append(out, &sup)
			}
		}
	case (kind == domain.KindSaleOrder || kind == domain.KindImportOrder) && field == domain.FieldOrderDate:
		return s.ordersLocked(kind, func(rec orderRecord) bool { return match(rec.date) })
	default:
		return nil, fmt.Errorf("%w: fuzzy match on %s.%s", domain.ErrQueryNotConstructible, kind, field)
	}
	return out, nil
}

// RetrieveByExactForeignKey реализует domain.QuerySource: равенство внешнего ключа.
func (s *Store) RetrieveByExactForeignKey(ctx context.Context, kind domain.Kind, field string, value domain.Identifier) ([]domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDataSourceUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case kind == domain.KindCoffee && field == domain.FieldCoffeeType:
		var out []domain.Entity
		for id, c := range s.coffees {
			if c.Type != nil && c.Type.ID == value {
				coffee, err := s.coffeeLocked(id)
				if err != nil {
					return nil, err
				}
				out = append(out, coffee)
			}
		}
		return out, nil
	case kind == domain.KindSaleOrder && field == domain.FieldSaleOrderCustomer,
		kind == domain.KindImportOrder && field == domain.FieldImportOrderSupplier:
		return s.ordersLocked(kind, func(rec orderRecord) bool { return rec.counterparty == value })
	case kind == domain.KindSaleOrder && field == domain.FieldSaleOrderSeller,
		kind == domain.KindImportOrder && field == domain.FieldImportOrderImporter:
		return s.ordersLocked(kind, func(rec orderRecord) bool { return rec.agent == value })
	}
	return nil, fmt.Errorf("%w: exact match on %s.%s", domain.ErrQueryNotConstructible, kind, field)
}

func (s *Store) ordersLocked(kind domain.Kind, keep func(orderRecord) bool) ([]domain.Entity, error) {
	var out []domain.Entity
	for id, rec := range s.orders {
		if id.Kind != kind || !keep(rec) {
			continue
		}
		order, err := s.restoreOrderLocked(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, nil
}

var _ domain.QuerySource = (*Store)(nil)
