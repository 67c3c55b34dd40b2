package domain

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Kind: тип сущности, для которой выдаются идентификаторы.
type Kind string

const (
	KindCustomer     Kind = "customer"
	KindSupplier     Kind = "supplier"
	KindImporter     Kind = "importer"
	KindSeller       Kind = "seller"
	KindSaleOrder    Kind = "sale_order"
	KindImportOrder  Kind = "import_order"
	KindTypeOfCoffee Kind = "type_of_coffee"
	KindCoffee       Kind = "coffee"
	KindDistrict     Kind = "district"
	KindStreet       Kind = "street"
)

// kindPrefixes задаёт префиксы строковых идентификаторов.
// District и Street используют «голые» целые числа.
var kindPrefixes = map[Kind]string{
	KindCustomer:     "Cus",
	KindSupplier:     "SUP",
	KindImporter:     "I",
	KindSeller:       "SE",
	KindSaleOrder:    "SO",
	KindImportOrder:  "IO",
	KindTypeOfCoffee: "T",
	KindCoffee:       "C",
	KindDistrict:     "",
	KindStreet:       "",
}

// Kinds возвращает все виды сущностей с собственным счётчиком.
func Kinds() []Kind {
	return []Kind{
		KindCustomer, KindSupplier, KindImporter, KindSeller,
		KindSaleOrder, KindImportOrder, KindTypeOfCoffee, KindCoffee,
		KindDistrict, KindStreet,
	}
}

// Prefix возвращает префикс идентификатора вида.
func (k Kind) Prefix() string {
	return kindPrefixes[k]
}

// Known сообщает, зарегистрирован ли вид.
func (k Kind) Known() bool {
	_, ok := kindPrefixes[k]
	return ok
}

// Identifier: типизированный идентификатор: вид + порядковый номер.
type Identifier struct {
	Kind Kind
	Seq  int64
}

// String рендерит идентификатор в виде "<prefix><n>", например "SO42".
func (id Identifier) String() string {
	if id.IsZero() {
		return ""
	}
	return id.Kind.Prefix() + strconv.FormatInt(id.Seq, 10)
}

// IsZero сообщает, что идентификатор не задан.
func (id Identifier) IsZero() bool {
	return id.Seq == 0
}

// ParseIdentifier разбирает строковое представление идентификатора вида kind.
// Префикс должен совпадать точно, а суффикс должен быть положительным десятичным числом
// без ведущих нулей, чтобы String() возвращал исходную строку.
func ParseIdentifier(kind Kind, raw string) (Identifier, error) {
	if !kind.Known() {
		return Identifier{}, &InvalidIdentifierError{Kind: kind, Value: raw, Err: ErrUnknownKind}
	}

	suffix, ok := strings.CutPrefix(raw, kind.Prefix())
	if !ok {
		return Identifier{}, &InvalidIdentifierError{Kind: kind, Value: raw, Err: ErrIdentifierPrefix}
	}
	if suffix == "" || suffix[0] == '0' || strings.TrimLeft(suffix, "0123456789") != "" {
		return Identifier{}, &InvalidIdentifierError{Kind: kind, Value: raw, Err: ErrIdentifierSuffix}
	}

	seq, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return Identifier{}, &InvalidIdentifierError{Kind: kind, Value: raw, Err: err}
	}
	if seq <= 0 {
		return Identifier{}, &InvalidIdentifierError{Kind: kind, Value: raw, Err: ErrIdentifierSuffix}
	}

	return Identifier{Kind: kind, Seq: seq}, nil
}

// MustParseIdentifier: вариант ParseIdentifier для констант в тестах и фикстурах.
func MustParseIdentifier(kind Kind, raw string) Identifier {
	id, err := ParseIdentifier(kind, raw)
	if err != nil {
		panic(err)
	}
	return id
}

// IdentifierAllocator выдаёт идентификаторы одного вида и отслеживает watermark,
// наибольший выданный или увиденный номер.
type IdentifierAllocator struct {
	kind Kind

	mu        sync.Mutex
	watermark int64
}

// NewIdentifierAllocator создаёт счётчик для вида kind с нулевым watermark.
func NewIdentifierAllocator(kind Kind) *IdentifierAllocator {
	return &IdentifierAllocator{kind: kind}
}

// Kind возвращает вид, обслуживаемый счётчиком.
func (a *IdentifierAllocator) Kind() Kind {
	return a.kind
}

// Watermark возвращает текущий watermark.
func (a *IdentifierAllocator) Watermark() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.watermark
}

// Next выдаёт новый идентификатор: watermark+1.
func (a *IdentifierAllocator) Next() Identifier {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.watermark++
	return Identifier{Kind: a.kind, Seq: a.watermark}
}

// Allocate выдаёт новый идентификатор, если existing пуст, иначе принимает existing
// как есть и поднимает watermark до его номера.
func (a *IdentifierAllocator) Allocate(existing string) (Identifier, error) {
	if existing == "" {
		return a.Next(), nil
	}

	id, err := ParseIdentifier(a.kind, existing)
	if err != nil {
		return Identifier{}, err
	}
	a.observe(id.Seq)
	return id, nil
}

// Accept принимает уже разобранный идентификатор (например, загруженный из хранилища).
func (a *IdentifierAllocator) Accept(id Identifier) (Identifier, error) {
	if id.IsZero() {
		return a.Next(), nil
	}
	if id.Kind != a.kind || id.Seq < 0 {
		return Identifier{}, &InvalidIdentifierError{Kind: a.kind, Value: id.String(), Err: ErrIdentifierPrefix}
	}
	a.observe(id.Seq)
	return id, nil
}

// ReconcileRange поднимает watermark до номера maxID после массовой загрузки.
// Пустые границы означают пустую таблицу и ничего не меняют.
func (a *IdentifierAllocator) ReconcileRange(minID, maxID string) error {
	if minID == "" || maxID == "" {
		return nil
	}

	id, err := ParseIdentifier(a.kind, maxID)
	if err != nil {
		return err
	}
	a.observe(id.Seq)
	return nil
}

func (a *IdentifierAllocator) observe(seq int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if seq > a.watermark {
		a.watermark = seq
	}
}

// IdentifierRegistry владеет счётчиками всех видов. Экземпляр создаётся при старте
// процесса и передаётся явно; в тестах каждый кейс получает свой реестр.
type IdentifierRegistry struct {
	allocators map[Kind]*IdentifierAllocator
}

// NewIdentifierRegistry создаёт реестр с независимым счётчиком на каждый вид.
func NewIdentifierRegistry() *IdentifierRegistry {
	kinds := Kinds()
	r := &IdentifierRegistry{allocators: make(map[Kind]*IdentifierAllocator, len(kinds))}
	for _, kind := range kinds {
		r.allocators[kind] = NewIdentifierAllocator(kind)
	}
	return r
}

// Allocator возвращает счётчик вида. Паникует для незарегистрированного вида:
// это ошибка программиста, а не входных данных.
func (r *IdentifierRegistry) Allocator(kind Kind) *IdentifierAllocator {
	a, ok := r.allocators[kind]
	if !ok {
		panic(fmt.Sprintf("identifier allocator for kind %q is not registered", kind))
	}
	return a
}

// Allocate: сокращение для Allocator(kind).Allocate(existing).
func (r *IdentifierRegistry) Allocate(kind Kind, existing string) (Identifier, error) {
	return r.Allocator(kind).Allocate(existing)
}

// Watermarks возвращает снимок watermark по всем видам.
func (r *IdentifierRegistry) Watermarks() map[Kind]int64 {
	out := make(map[Kind]int64, len(r.allocators))
	for kind, a := range r.allocators {
		out[kind] = a.Watermark()
	}
	return out
}
