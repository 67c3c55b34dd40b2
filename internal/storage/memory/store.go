package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// orderRecord: заказ в том виде, в каком его хранит база: ссылки вместо объектов.
type orderRecord struct {
	id           domain.Identifier
	counterparty domain.Identifier
	agent        domain.Identifier
	date         string
	total        domain.Money
	version      int64
	createdAt    time.Time
	updatedAt    time.Time
	items        []lineItemRecord
}

type lineItemRecord struct {
	id        string
	coffeeID  domain.Identifier
	qty       int32
	createdAt time.Time
}

// Store: in-memory хранилище каталога, участников и заказов для локальной разработки и тестов.
//
// Заказы хранятся как записи и собираются заново при чтении, поэтому позиции
// всегда ссылаются на актуальную цену каталога, как при чтении из Postgres.
type Store struct {
	ids *domain.IdentifierRegistry

	mu        sync.RWMutex
	types     map[domain.Identifier]domain.TypeOfCoffee
	coffees   map[domain.Identifier]domain.Coffee
	customers map[domain.Identifier]domain.Customer
	suppliers map[domain.Identifier]domain.Supplier
	importers map[domain.Identifier]domain.Importer
	sellers   map[domain.Identifier]domain.Seller
	districts map[domain.Identifier]domain.District
	streets   map[domain.Identifier]domain.Street
	orders    map[domain.Identifier]orderRecord
}

// NewStore создаёт пустое хранилище. ids используется при сборке заказов.
func NewStore(ids *domain.IdentifierRegistry) *Store {
	return &Store{
		ids:       ids,
		types:     make(map[domain.Identifier]domain.TypeOfCoffee),
		coffees:   make(map[domain.Identifier]domain.Coffee),
		customers: make(map[domain.Identifier]domain.Customer),
		suppliers: make(map[domain.Identifier]domain.Supplier),
		importers: make(map[domain.Identifier]domain.Importer),
		sellers:   make(map[domain.Identifier]domain.Seller),
		districts: make(map[domain.Identifier]domain.District),
		streets:   make(map[domain.Identifier]domain.Street),
		orders:    make(map[domain.Identifier]orderRecord),
	}
}

// Catalog возвращает репозиторий каталога поверх хранилища.
func (s *Store) Catalog() domain.CatalogRepository { return catalogRepository{s} }

// Parties возвращает репозиторий участников поверх хранилища.
func (s *Store) Parties() domain.PartyRepository { return partyRepository{s} }

// Orders возвращает репозиторий заказов поверх хранилища.
func (s *Store) Orders() domain.OrderRepository { return orderRepository{s} }

// Ping всегда успешен: хранилище в памяти доступно, пока жив процесс.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// IdentifierRange возвращает наименьший и наибольший идентификатор вида.
func (s *Store) IdentifierRange(ctx context.Context, kind domain.Kind) (domain.IdentifierRange, error) {
	if err := ctx.Err(); err != nil {
		return domain.IdentifierRange{}, fmt.Errorf("%w: %v", domain.ErrDataSourceUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []domain.Identifier
	switch kind {
	case domain.KindTypeOfCoffee:
		keys = keysOf(s.types)
	case domain.KindCoffee:
		keys = keysOf(s.coffees)
	case domain.KindCustomer:
		keys = keysOf(s.customers)
	case domain.KindSupplier:
		keys = keysOf(s.suppliers)
	case domain.KindImporter:
		keys = keysOf(s.importers)
	case domain.KindSeller:
		keys = keysOf(s.sellers)
	case domain.KindDistrict:
		keys = keysOf(s.districts)
	case domain.KindStreet:
		keys = keysOf(s.streets)
	case domain.KindSaleOrder, domain.KindImportOrder:
		for id := range s.orders {
			if id.Kind == kind {
				keys = append(keys, id)
			}
		}
	default:
		return domain.IdentifierRange{}, fmt.Errorf("%w: %s", domain.ErrUnknownKind, kind)
	}

	out := domain.IdentifierRange{Kind: kind}
	if len(keys) == 0 {
		return out, nil
	}
	lo, hi := keys[0], keys[0]
	for _, id := range keys[1:] {
		if id.Seq < lo.Seq {
			lo = id
		}
		if id.Seq > hi.Seq {
			hi = id
		}
	}
	out.MinID, out.MaxID = lo.String(), hi.String()
	return out, nil
}

func keysOf[V any](m map[domain.Identifier]V) []domain.Identifier {
	out := make([]domain.Identifier, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

var _ domain.IdentifierRangeSource = (*Store)(nil)
