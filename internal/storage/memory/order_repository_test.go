package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/report"
	"github.com/vladislavdragonenkov/coffeetrade/internal/storage/memory"
)

type seeded struct {
	ids      *domain.IdentifierRegistry
	store    *memory.Store
	arabica  *domain.TypeOfCoffee
	robusta  *domain.TypeOfCoffee
	moka     *domain.Coffee
	culi     *domain.Coffee
	customer *domain.Customer
	seller   *domain.Seller
}

func seed(t *testing.T) seeded {
	t.Helper()
	ctx := context.Background()
	ids := domain.NewIdentifierRegistry()
	store := memory.NewStore(ids)

	arabica, err := domain.NewTypeOfCoffee(ids, "", "Arabica")
	require.NoError(t, err)
	robusta, err := domain.NewTypeOfCoffee(ids, "", "Robusta")
	require.NoError(t, err)
	require.NoError(t, store.Catalog().CreateCoffeeType(ctx, arabica))
	require.NoError(t, store.Catalog().CreateCoffeeType(ctx, robusta))

	moka, err := domain.NewCoffee(ids, "", "Moka", arabica, 350, 200)
	require.NoError(t, err)
	culi, err := domain.NewCoffee(ids, "", "Culi", robusta, 100, 60)
	require.NoError(t, err)
	require.NoError(t, store.Catalog().SaveCoffee(ctx, moka))
	require.NoError(t, store.Catalog().SaveCoffee(ctx, culi))

	customer, err := domain.NewCustomer(ids, "", "Nguyen Van A", "01/01/1990", nil, "a@gmail.com")
	require.NoError(t, err)
	require.NoError(t, store.Parties().CreateCustomer(ctx, customer))
	seller, err := domain.NewSeller(ids, "", "Tran B", "")
	require.NoError(t, err)
	require.NoError(t, store.Parties().CreateSeller(ctx, seller))

	return seeded{ids: ids, store: store, arabica: arabica, robusta: robusta, moka: moka, culi: culi, customer: customer, seller: seller}
}

func (s seeded) newSaleOrder(t *testing.T, date string, lines map[*domain.Coffee]int32) *domain.Order {
	t.Helper()
	order, err := domain.NewSaleOrder(s.ids, "", s.customer, s.seller, date)
	require.NoError(t, err)
	for coffee, qty := range lines {
		item, err := domain.NewLineItem("", order.ID, coffee, qty)
		require.NoError(t, err)
		require.NoError(t, order.AddNew(item))
	}
	require.NoError(t, s.store.Orders().Create(context.Background(), order))
	return order
}

func TestOrderRepository_CreateGet(t *testing.T) {
	s := seed(t)
	order := s.newSaleOrder(t, "01/10/2026", map[*domain.Coffee]int32{s.moka: 2})

	stored, err := s.store.Orders().Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)
	assert.Equal(t, 1, stored.Count())
	assert.EqualValues(t, 700, stored.TotalPrice())
	assert.Empty(t, stored.ValidateInvariants())

	err = s.store.Orders().Create(context.Background(), order)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = s.store.Orders().Get(context.Background(), domain.MustParseIdentifier(domain.KindSaleOrder, "SO99"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	order := s.newSaleOrder(t, "01/10/2026", map[*domain.Coffee]int32{s.moka: 1})

	first, err := s.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	second, err := s.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)

	item, err := domain.NewLineItem("", first.ID, s.culi, 1)
	require.NoError(t, err)
	require.NoError(t, first.AddNew(item))
	require.NoError(t, s.store.Orders().Save(ctx, first))
	assert.EqualValues(t, 1, first.Version)

	require.NoError(t, second.UpdateQuantity(second.Items()[0].ID, 5))
	err = s.store.Orders().Save(ctx, second)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	stored, err := s.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 450, stored.TotalPrice())
	assert.Equal(t, 2, stored.Count())
}

func TestOrderRepository_RestoredItemsSeeCurrentCatalogPrice(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	order := s.newSaleOrder(t, "01/10/2026", map[*domain.Coffee]int32{s.moka: 2})

	repriced := *s.moka
	repriced.Price = 400
	require.NoError(t, s.store.Catalog().SaveCoffee(ctx, &repriced))

	stored, err := s.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	// Сохранённая сумма принимается как есть, пока заказ не пересчитан.
	assert.EqualValues(t, 700, stored.TotalPrice())
	assert.EqualValues(t, 800, stored.Recompute())
}

func TestStore_ReportOverQuerySource(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	extra, err := domain.NewCoffee(s.ids, "", "Bourbon", s.arabica, 500, 300)
	require.NoError(t, err)
	require.NoError(t, s.store.Catalog().SaveCoffee(ctx, extra))

	q := report.NewQuery(s.store, report.CoffeesByType)
	require.NoError(t, q.SetSearchTerm(ctx, "rab"))
	var names []string
	for _, c := range report.Coffees(q.Results()) {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Moka", "Bourbon"}, names)

	require.NoError(t, q.SetSearchTerm(ctx, "zzz"))
	assert.Equal(t, 0, q.Count())
}

func TestStore_OrderReports(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	first := s.newSaleOrder(t, "01/10/2026", map[*domain.Coffee]int32{s.moka: 1})
	second := s.newSaleOrder(t, "15/10/2026", map[*domain.Coffee]int32{s.culi: 3})
	s.newSaleOrder(t, "02/11/2026", nil)

	byDate, err := report.Run(ctx, s.store, report.SaleOrdersByDate, "/10/")
	require.NoError(t, err)
	orders := report.Orders(byDate)
	require.Len(t, orders, 2)
	assert.Equal(t, first.ID, orders[0].ID)
	assert.Equal(t, second.ID, orders[1].ID)
	assert.EqualValues(t, 300, orders[1].TotalPrice())

	byCustomer, err := report.Run(ctx, s.store, report.SaleOrdersByCustomer, "Van")
	require.NoError(t, err)
	assert.Len(t, byCustomer, 3)

	imports, err := report.Run(ctx, s.store, report.ImportOrdersByDate, "/10/")
	require.NoError(t, err)
	assert.Empty(t, imports)
}

func TestStore_UnsupportedQueryIsNotConstructible(t *testing.T) {
	s := seed(t)

	_, err := s.store.RetrieveByFuzzyMatch(context.Background(), domain.KindCoffee, "price", "1")
	assert.ErrorIs(t, err, domain.ErrQueryNotConstructible)

	_, err = s.store.RetrieveByExactForeignKey(context.Background(), domain.KindCustomer, "seller", s.seller.ID)
	assert.ErrorIs(t, err, domain.ErrQueryNotConstructible)
}

func TestStore_CanceledContextIsUnavailable(t *testing.T) {
	s := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.store.RetrieveByFuzzyMatch(ctx, domain.KindTypeOfCoffee, domain.FieldTypeOfCoffeeName, "A")
	assert.ErrorIs(t, err, domain.ErrDataSourceUnavailable)
}

func TestStore_IdentifierRange(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	s.newSaleOrder(t, "01/10/2026", nil)
	s.newSaleOrder(t, "02/10/2026", nil)

	rng, err := s.store.IdentifierRange(ctx, domain.KindSaleOrder)
	require.NoError(t, err)
	assert.Equal(t, "SO1", rng.MinID)
	assert.Equal(t, "SO2", rng.MaxID)

	rng, err = s.store.IdentifierRange(ctx, domain.KindImportOrder)
	require.NoError(t, err)
	assert.True(t, rng.Empty())

	rng, err = s.store.IdentifierRange(ctx, domain.KindCoffee)
	require.NoError(t, err)
	assert.Equal(t, "C1", rng.MinID)
	assert.Equal(t, "C2", rng.MaxID)
}

func TestPartyRepository_DuplicateAndMissing(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	err := s.store.Parties().CreateCustomer(ctx, s.customer)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := s.store.Parties().GetCustomer(ctx, s.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, s.customer.FullName, got.FullName)

	_, err = s.store.Parties().GetSupplier(ctx, domain.MustParseIdentifier(domain.KindSupplier, "SUP1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
