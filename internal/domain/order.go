package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LineItem: позиция заказа: ровно один заказ, ровно одна позиция каталога.
// Меняется только количество, и только через родительский заказ.
type LineItem struct {
	ID        string
	OrderID   Identifier
	Coffee    *Coffee
	Qty       int32
	CreatedAt time.Time
}

// NewLineItem создаёт позицию для заказа orderID. Для пустого id генерируется UUID.
func NewLineItem(id string, orderID Identifier, coffee *Coffee, qty int32) (*LineItem, error) {
	if coffee == nil {
		return nil, &ValidationError{Entity: "line_item", Field: "Coffee", Rule: "required"}
	}
	if qty <= 0 {
		return nil, &ValidationError{Entity: "line_item", Field: "Qty", Rule: "gt=0", Value: fmt.Sprint(qty)}
	}
	if orderID.Kind != KindSaleOrder && orderID.Kind != KindImportOrder {
		return nil, &InvalidIdentifierError{Kind: orderID.Kind, Value: orderID.String(), Err: ErrUnknownKind}
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &LineItem{
		ID:        id,
		OrderID:   orderID,
		Coffee:    coffee,
		Qty:       qty,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// UnitPrice: текущая цена каталога для вида заказа.
func (li *LineItem) UnitPrice() Money {
	return li.Coffee.PriceFor(li.OrderID.Kind)
}

// LineTotal считается при каждом вызове, чтобы отражать текущие количество и цену каталога.
func (li *LineItem) LineTotal() Money {
	return li.UnitPrice().Mul(li.Qty)
}

// Order: агрегат заказа (продажа или закупка) с позициями и производной суммой.
//
// Для продажи Counterparty это покупатель, Agent это продавец; для закупки
// поставщик и импортёр соответственно. Все мутации позиций идут через методы
// агрегата под его мьютексом, поэтому после возврата из любого публичного
// мутатора TotalPrice равен сумме LineTotal.
type Order struct {
	ID           Identifier
	Counterparty Identifier
	Agent        Identifier
	Date         string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time

	mu    sync.RWMutex
	items []*LineItem
	count int
	total Money
}

// NewSaleOrder создаёт заказ на продажу. Для пустого id выдаётся новый.
func NewSaleOrder(ids *IdentifierRegistry, id string, customer *Customer, seller *Seller, date string) (*Order, error) {
	if customer == nil {
		return nil, &ValidationError{Entity: "sale_order", Field: "Customer", Rule: "required"}
	}
	if seller == nil {
		return nil, &ValidationError{Entity: "sale_order", Field: "Seller", Rule: "required"}
	}
	return newOrder(ids, KindSaleOrder, id, customer.ID, seller.ID, date)
}

// NewImportOrder создаёт заказ на закупку. Для пустого id выдаётся новый.
func NewImportOrder(ids *IdentifierRegistry, id string, supplier *Supplier, importer *Importer, date string) (*Order, error) {
	if supplier == nil {
		return nil, &ValidationError{Entity: "import_order", Field: "Supplier", Rule: "required"}
	}
	if importer == nil {
		return nil, &ValidationError{Entity: "import_order", Field: "Importer", Rule: "required"}
	}
	return newOrder(ids, KindImportOrder, id, supplier.ID, importer.ID, date)
}

func newOrder(ids *IdentifierRegistry, kind Kind, id string, counterparty, agent Identifier, date string) (*Order, error) {
	if err := validateVar(string(kind), "Date", date, "required,dmy"); err != nil {
		return nil, err
	}
	allocated, err := ids.Allocate(kind, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Order{
		ID:           allocated,
		Counterparty: counterparty,
		Agent:        agent,
		Date:         date,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// RestoreOrder собирает агрегат из хранилища. Сохранённая сумма принимается как есть,
// позиции подключаются через AddExisting; расхождение покажет ValidateInvariants.
func RestoreOrder(ids *IdentifierRegistry, id Identifier, counterparty, agent Identifier, date string, total Money, items []*LineItem) (*Order, error) {
	if id.Kind != KindSaleOrder && id.Kind != KindImportOrder {
		return nil, &InvalidIdentifierError{Kind: id.Kind, Value: id.String(), Err: ErrUnknownKind}
	}
	accepted, err := ids.Allocator(id.Kind).Accept(id)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:           accepted,
		Counterparty: counterparty,
		Agent:        agent,
		Date:         date,
		total:        total,
	}
	for _, item := range items {
		if err := o.AddExisting(item); err != nil {
			return nil, err
		}
	}
	o.count = len(o.items)
	return o, nil
}

// Kind: вид заказа (KindSaleOrder или KindImportOrder).
func (o *Order) Kind() Kind {
	return o.ID.Kind
}

func (o *Order) EntityID() Identifier { return o.ID }

// TotalPrice возвращает производную сумму заказа.
func (o *Order) TotalPrice() Money {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.total
}

// Count возвращает число позиций, учтённых агрегатом.
func (o *Order) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.count
}

// Items возвращает копии позиций: изменить коллекцию в обход агрегата нельзя.
func (o *Order) Items() []LineItem {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]LineItem, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, *item)
	}
	return out
}

// Item возвращает копию позиции по ID.
func (o *Order) Item(itemID string) (LineItem, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if idx := o.indexOf(itemID); idx >= 0 {
		return *o.items[idx], true
	}
	return LineItem{}, false
}

// AddExisting подключает позицию, восстановленную из хранилища. Повторное
// подключение той же позиции ничего не меняет. Сумма и счётчик не пересчитываются:
// сохранённая сумма уже учитывает эти позиции.
func (o *Order) AddExisting(item *LineItem) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkOwnership(item); err != nil {
		return err
	}
	if o.indexOf(item.ID) >= 0 {
		return nil
	}
	cp := *item
	o.items = append(o.items, &cp)
	return nil
}

// AddNew добавляет новую позицию и пересчитывает сумму.
func (o *Order) AddNew(item *LineItem) error {
	return o.AddNewBatch([]*LineItem{item})
}

// AddNewBatch добавляет позиции пачкой. Пачка применяется целиком или не применяется вовсе.
func (o *Order) AddNewBatch(items []*LineItem) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if err := o.checkOwnership(item); err != nil {
			return err
		}
		if _, dup := seen[item.ID]; dup || o.indexOf(item.ID) >= 0 {
			return fmt.Errorf("%w: %s", ErrLineItemExists, item.ID)
		}
		seen[item.ID] = struct{}{}
	}

	next := make([]*LineItem, 0, len(o.items)+len(items))
	next = append(next, o.items...)
	next = append(next, copyItems(items)...)
	total, err := sumItems(next)
	if err != nil {
		return err
	}
	o.items = next
	o.count += len(items)
	o.total = total
	return nil
}

// Remove удаляет позицию. Возвращает false, если позиции в заказе нет.
func (o *Order) Remove(itemID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	idx := o.indexOf(itemID)
	if idx < 0 {
		return false
	}
	o.items = append(o.items[:idx], o.items[idx+1:]...)
	o.count--
	o.recompute()
	return true
}

// ReplaceAll заменяет все позиции, выставляет счётчик в новый размер и пересчитывает сумму.
func (o *Order) ReplaceAll(items []*LineItem) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if err := o.checkOwnership(item); err != nil {
			return err
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("%w: %s", ErrLineItemExists, item.ID)
		}
		seen[item.ID] = struct{}{}
	}

	replaced := copyItems(items)
	total, err := sumItems(replaced)
	if err != nil {
		return err
	}
	o.items = replaced
	o.count = len(replaced)
	o.total = total
	return nil
}

// UpdateQuantity меняет количество позиции и пересчитывает сумму целиком.
func (o *Order) UpdateQuantity(itemID string, qty int32) error {
	if qty <= 0 {
		return &ValidationError{Entity: "line_item", Field: "Qty", Rule: "gt=0", Value: fmt.Sprint(qty)}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	idx := o.indexOf(itemID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrLineItemNotFound, itemID)
	}
	updated := *o.items[idx]
	updated.Qty = qty
	next := make([]*LineItem, len(o.items))
	copy(next, o.items)
	next[idx] = &updated
	total, err := sumItems(next)
	if err != nil {
		return err
	}
	o.items = next
	o.total = total
	return nil
}

// Recompute пересчитывает сумму по текущим позициям. Нужен после изменения цен каталога.
// Если новая сумма переполняет Money, прежняя сумма остаётся, а ValidateInvariants
// сообщит о расхождении.
func (o *Order) Recompute() Money {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recompute()
	return o.total
}

// ValidateInvariants проверяет согласованность агрегата и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var errs []error
	if o.ID.Kind != KindSaleOrder && o.ID.Kind != KindImportOrder {
		errs = append(errs, ErrUnknownKind)
	}
	if o.Counterparty.IsZero() || o.Agent.IsZero() {
		errs = append(errs, &ValidationError{Entity: string(o.ID.Kind), Field: "Counterparty", Rule: "required"})
	}
	if o.count != len(o.items) {
		errs = append(errs, ErrCountMismatch)
	}
	if total, err := sumItems(o.items); err != nil {
		errs = append(errs, err)
	} else if total != o.total {
		errs = append(errs, ErrTotalMismatch)
	}
	return errs
}

// Clone возвращает независимую копию агрегата (позиции копируются, каталог общий).
func (o *Order) Clone() *Order {
	o.mu.RLock()
	defer o.mu.RUnlock()

	items := copyItems(o.items)
	return &Order{
		ID:           o.ID,
		Counterparty: o.Counterparty,
		Agent:        o.Agent,
		Date:         o.Date,
		Version:      o.Version,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		items:        items,
		count:        o.count,
		total:        o.total,
	}
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(%s,%s,%s,%s)", o.ID, o.Counterparty, o.Agent, o.Date)
}

func (o *Order) recompute() {
	if total, err := sumItems(o.items); err == nil {
		o.total = total
	}
}

// sumItems складывает LineTotal с проверкой переполнения.
func sumItems(items []*LineItem) (Money, error) {
	var total Money
	for _, item := range items {
		line, err := item.UnitPrice().MulChecked(item.Qty)
		if err != nil {
			return 0, fmt.Errorf("line item %s: %w", item.ID, err)
		}
		if total, err = total.AddChecked(line); err != nil {
			return 0, fmt.Errorf("order total: %w", err)
		}
	}
	return total, nil
}

// copyItems копирует позиции, чтобы вызывающий не мог менять их в обход агрегата.
func copyItems(items []*LineItem) []*LineItem {
	out := make([]*LineItem, 0, len(items))
	for _, item := range items {
		cp := *item
		out = append(out, &cp)
	}
	return out
}

func (o *Order) indexOf(itemID string) int {
	for i, item := range o.items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

func (o *Order) checkOwnership(item *LineItem) error {
	if item == nil {
		return &ValidationError{Entity: "line_item", Field: "LineItem", Rule: "required"}
	}
	if item.OrderID != o.ID {
		return fmt.Errorf("%w: item %s belongs to %s, not %s", ErrForeignLineItem, item.ID, item.OrderID, o.ID)
	}
	return nil
}
