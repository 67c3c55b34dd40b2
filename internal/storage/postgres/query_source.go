package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// likeEscaper экранирует служебные символы LIKE, чтобы поиск оставался поиском подстроки.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type fieldKey struct {
	kind  domain.Kind
	field string
}

// entityQuery описывает SELECT и функцию чтения строки в сущность.
type entityQuery struct {
	sql  string
	scan func(rowScanner) (domain.Entity, error)
}

// orderColumn: колонка таблицы orders, по которой ищется заказ.
type orderColumn struct {
	kind   domain.Kind
	column string
}

var fuzzyQueries = map[fieldKey]entityQuery{
	{domain.KindTypeOfCoffee, domain.FieldTypeOfCoffeeName}: {
		sql:  `SELECT id, name FROM coffee_types WHERE name LIKE $1 ESCAPE '\'`,
		scan: scanCoffeeTypeEntity,
	},
	{domain.KindCoffee, domain.FieldCoffeeName}: {
		sql:  selectCoffeeSQL + ` WHERE c.name LIKE $1 ESCAPE '\'`,
		scan: entity(scanCoffee),
	},
	{domain.KindCustomer, domain.FieldCustomerName}: {
		sql:  selectCustomerSQL + ` WHERE p.full_name LIKE $1 ESCAPE '\'`,
		scan: entity(scanCustomer),
	},
	{domain.KindImporter, domain.FieldImporterName}: {
		sql:  selectImporterSQL + ` WHERE p.full_name LIKE $1 ESCAPE '\'`,
		scan: entity(scanImporter),
	},
	{domain.KindSupplier, domain.FieldSupplierName}: {
		sql:  selectSupplierSQL + ` WHERE p.name LIKE $1 ESCAPE '\'`,
		scan: entity(scanSupplier),
	},
	{domain.KindSeller, domain.FieldSellerName}: {
		sql:  selectSellerSQL + ` WHERE full_name LIKE $1 ESCAPE '\'`,
		scan: entity(scanSeller),
	},
}

var fuzzyOrderColumns = map[fieldKey]orderColumn{
	{domain.KindSaleOrder, domain.FieldOrderDate}:   {domain.KindSaleOrder, "order_date"},
	{domain.KindImportOrder, domain.FieldOrderDate}: {domain.KindImportOrder, "order_date"},
}

var exactOrderColumns = map[fieldKey]orderColumn{
	{domain.KindSaleOrder, domain.FieldSaleOrderCustomer}:     {domain.KindSaleOrder, "counterparty_id"},
	{domain.KindSaleOrder, domain.FieldSaleOrderSeller}:       {domain.KindSaleOrder, "agent_id"},
	{domain.KindImportOrder, domain.FieldImportOrderSupplier}: {domain.KindImportOrder, "counterparty_id"},
	{domain.KindImportOrder, domain.FieldImportOrderImporter}: {domain.KindImportOrder, "agent_id"},
}

// QuerySource: PostgreSQL-реализация domain.QuerySource и domain.IdentifierRangeSource.
type QuerySource struct {
	db     *sql.DB
	orders *orderRepository
}

// NewQuerySource создаёт источник данных для отчётов поверх store.
func NewQuerySource(store *Store, ids *domain.IdentifierRegistry) *QuerySource {
	return &QuerySource{db: store.DB(), orders: newOrderRepository(store, ids)}
}

// RetrieveByFuzzyMatch ищет подстроку через LIKE (с учётом регистра).
func (q *QuerySource) RetrieveByFuzzyMatch(ctx context.Context, kind domain.Kind, field, substring string) ([]domain.Entity, error) {
	key := fieldKey{kind, field}
	pattern := "%" + likeEscaper.Replace(substring) + "%"

	if col, ok := fuzzyOrderColumns[key]; ok {
		return q.selectOrders(ctx, col, `LIKE $2 ESCAPE '\'`, pattern)
	}
	query, ok := fuzzyQueries[key]
	if !ok {
		return nil, fmt.Errorf("%w: fuzzy match on %s.%s", domain.ErrQueryNotConstructible, kind, field)
	}
	return q.selectEntities(ctx, query, pattern)
}

// RetrieveByExactForeignKey ищет сущности по равенству внешнего ключа.
func (q *QuerySource) RetrieveByExactForeignKey(ctx context.Context, kind domain.Kind, field string, value domain.Identifier) ([]domain.Entity, error) {
	key := fieldKey{kind, field}

	if col, ok := exactOrderColumns[key]; ok {
		return q.selectOrders(ctx, col, `= $2`, value.String())
	}
	if key == (fieldKey{domain.KindCoffee, domain.FieldCoffeeType}) {
		return q.selectEntities(ctx, entityQuery{
			sql:  selectCoffeeSQL + ` WHERE c.type_id = $1`,
			scan: entity(scanCoffee),
		}, value.String())
	}
	return nil, fmt.Errorf("%w: exact match on %s.%s", domain.ErrQueryNotConstructible, kind, field)
}

func (q *QuerySource) selectEntities(ctx context.Context, query entityQuery, arg any) ([]domain.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := q.db.QueryContext(ctx, query.sql, arg)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []domain.Entity
	for rows.Next() {
		e, err := query.scan(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// selectOrders выбирает строки подходящих заказов, затем собирает каждый агрегат.
func (q *QuerySource) selectOrders(ctx context.Context, col orderColumn, predicate string, arg any) ([]domain.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := q.db.QueryContext(ctx,
		selectOrderSQL+` WHERE kind = $1 AND `+col.column+` `+predicate+` ORDER BY seq ASC`,
		string(col.kind), arg,
	)
	if err != nil {
		return nil, unavailable(err)
	}

	var recs []orderRow
	for rows.Next() {
		rec, err := scanOrderRow(rows)
		if err != nil {
			_ = rows.Close()
			return nil, unavailable(err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, unavailable(err)
	}
	// Позиции грузятся только после закрытия курсора.
	_ = rows.Close()

	out := make([]domain.Entity, 0, len(recs))
	for _, rec := range recs {
		order, err := q.orders.restore(ctx, col.kind, rec)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, order)
	}
	return out, nil
}

// IdentifierRange возвращает наименьший и наибольший сохранённые идентификаторы вида.
func (q *QuerySource) IdentifierRange(ctx context.Context, kind domain.Kind) (domain.IdentifierRange, error) {
	query, args, ok := rangeQuery(kind)
	if !ok {
		return domain.IdentifierRange{}, fmt.Errorf("%w: %s", domain.ErrUnknownKind, kind)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var lo, hi sql.NullInt64
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&lo, &hi); err != nil {
		return domain.IdentifierRange{}, unavailable(err)
	}

	out := domain.IdentifierRange{Kind: kind}
	if !lo.Valid || !hi.Valid {
		return out, nil
	}
	out.MinID = domain.Identifier{Kind: kind, Seq: lo.Int64}.String()
	out.MaxID = domain.Identifier{Kind: kind, Seq: hi.Int64}.String()
	return out, nil
}

func rangeQuery(kind domain.Kind) (string, []any, bool) {
	switch kind {
	case domain.KindDistrict:
		return `SELECT MIN(id), MAX(id) FROM districts`, nil, true
	case domain.KindStreet:
		return `SELECT MIN(id), MAX(id) FROM streets`, nil, true
	case domain.KindSaleOrder, domain.KindImportOrder:
		return `SELECT MIN(seq), MAX(seq) FROM orders WHERE kind = $1`, []any{string(kind)}, true
	}
	table, ok := rangeTables[kind]
	if !ok {
		return "", nil, false
	}
	return `SELECT MIN(seq), MAX(seq) FROM ` + table, nil, true
}

var rangeTables = map[domain.Kind]string{
	domain.KindTypeOfCoffee: "coffee_types",
	domain.KindCoffee:       "coffees",
	domain.KindCustomer:     "customers",
	domain.KindSupplier:     "suppliers",
	domain.KindImporter:     "importers",
	domain.KindSeller:       "sellers",
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrDataSourceUnavailable, err)
}

func entity[T domain.Entity](scan func(rowScanner) (T, error)) func(rowScanner) (domain.Entity, error) {
	return func(row rowScanner) (domain.Entity, error) {
		v, err := scan(row)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func scanCoffeeTypeEntity(row rowScanner) (domain.Entity, error) {
	var rawID string
	t := &domain.TypeOfCoffee{}
	if err := row.Scan(&rawID, &t.Name); err != nil {
		return nil, err
	}
	var err error
	if t.ID, err = domain.ParseIdentifier(domain.KindTypeOfCoffee, rawID); err != nil {
		return nil, err
	}
	return t, nil
}

var (
	_ domain.QuerySource           = (*QuerySource)(nil)
	_ domain.IdentifierRangeSource = (*QuerySource)(nil)
)
