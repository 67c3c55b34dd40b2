package report

import (
	"sort"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// FieldRef указывает на поле сущности определённого вида.
type FieldRef struct {
	Kind  domain.Kind
	Field string
}

// Definition описывает отчёт.
//
// Если Reference задан, отчёт двухэтапный: по нечёткому совпадению находится опорная
// сущность, затем выбираются сущности Target, у которых внешний ключ Target.Field равен
// её идентификатору. Без Reference отчёт одноэтапный: нечёткое совпадение по Target.
type Definition struct {
	Name      string
	Reference *FieldRef
	Target    FieldRef
}

// TwoStage сообщает, требует ли отчёт поиска опорной сущности.
func (d Definition) TwoStage() bool {
	return d.Reference != nil
}

var (
	CoffeesByType = Definition{
		Name:      "coffees-by-type",
		Reference: &FieldRef{Kind: domain.KindTypeOfCoffee, Field: domain.FieldTypeOfCoffeeName},
		Target:    FieldRef{Kind: domain.KindCoffee, Field: domain.FieldCoffeeType},
	}
	SaleOrdersByCustomer = Definition{
		Name:      "sale-orders-by-customer",
		Reference: &FieldRef{Kind: domain.KindCustomer, Field: domain.FieldCustomerName},
		Target:    FieldRef{Kind: domain.KindSaleOrder, Field: domain.FieldSaleOrderCustomer},
	}
	ImportOrdersBySupplier = Definition{
		Name:      "import-orders-by-supplier",
		Reference: &FieldRef{Kind: domain.KindSupplier, Field: domain.FieldSupplierName},
		Target:    FieldRef{Kind: domain.KindImportOrder, Field: domain.FieldImportOrderSupplier},
	}
	SaleOrdersByDate = Definition{
		Name:   "sale-orders-by-date",
		Target: FieldRef{Kind: domain.KindSaleOrder, Field: domain.FieldOrderDate},
	}
	ImportOrdersByDate = Definition{
		Name:   "import-orders-by-date",
		Target: FieldRef{Kind: domain.KindImportOrder, Field: domain.FieldOrderDate},
	}
	CustomersByName = Definition{
		Name:   "customers-by-name",
		Target: FieldRef{Kind: domain.KindCustomer, Field: domain.FieldCustomerName},
	}
	SuppliersByName = Definition{
		Name:   "suppliers-by-name",
		Target: FieldRef{Kind: domain.KindSupplier, Field: domain.FieldSupplierName},
	}
)

var catalog = map[string]Definition{
	CoffeesByType.Name:          CoffeesByType,
	SaleOrdersByCustomer.Name:   SaleOrdersByCustomer,
	ImportOrdersBySupplier.Name: ImportOrdersBySupplier,
	SaleOrdersByDate.Name:       SaleOrdersByDate,
	ImportOrdersByDate.Name:     ImportOrdersByDate,
	CustomersByName.Name:        CustomersByName,
	SuppliersByName.Name:        SuppliersByName,
}

// Lookup ищет отчёт по имени.
func Lookup(name string) (Definition, bool) {
	def, ok := catalog[name]
	return def, ok
}

// Names возвращает имена всех отчётов в алфавитном порядке.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
