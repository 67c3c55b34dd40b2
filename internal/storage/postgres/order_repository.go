package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

const selectOrderSQL = `
	SELECT id, counterparty_id, agent_id, order_date, total_minor, version, created_at, updated_at
	FROM orders
`

type orderRepository struct {
	db  *sql.DB
	ids *domain.IdentifierRegistry
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository. ids нужен для
// сборки агрегатов из строк: загруженные идентификаторы поднимают watermark.
func NewOrderRepository(store *Store, ids *domain.IdentifierRegistry) domain.OrderRepository {
	return newOrderRepository(store, ids)
}

func newOrderRepository(store *Store, ids *domain.IdentifierRegistry) *orderRepository {
	return &orderRepository{db: store.DB(), ids: ids}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, kind, seq, counterparty_id, agent_id, order_date, total_minor, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.ID.String(), string(order.Kind()), order.ID.Seq,
		order.Counterparty.String(), order.Agent.String(), order.Date,
		order.TotalPrice().Minor(), order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, order.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if err = insertLineItems(ctx, tx, order); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id domain.Identifier) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := r.scanOrder(ctx, r.db.QueryRowContext(ctx, selectOrderSQL+` WHERE id = $1`, id.String()), id.Kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

// Save обновляет заказ и заменяет его позиции в одной транзакции. Версия
// проверяется через WHERE version = $n; при успехе версия заказа увеличивается.
func (r *orderRepository) Save(ctx context.Context, order *domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	updatedAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET total_minor = $1,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3
		  AND version = $4
	`, order.TotalPrice().Minor(), updatedAt, order.ID.String(), order.Version)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, existsErr := orderExistsTx(ctx, tx, order.ID)
		if existsErr != nil {
			err = existsErr
			return err
		}
		if !exists {
			err = fmt.Errorf("%w: %s", domain.ErrNotFound, order.ID)
			return err
		}
		err = fmt.Errorf("%w: %s at version %d", domain.ErrVersionConflict, order.ID, order.Version)
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM order_line_items WHERE order_id = $1`, order.ID.String()); err != nil {
		return fmt.Errorf("delete order line items: %w", err)
	}
	if err = insertLineItems(ctx, tx, order); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}

	order.Version++
	order.UpdatedAt = updatedAt
	return nil
}

func insertLineItems(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	for _, item := range order.Items() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_line_items (id, order_id, coffee_id, qty, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, item.ID, order.ID.String(), item.Coffee.ID.String(), item.Qty, item.CreatedAt); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: coffee %s", domain.ErrNotFound, item.Coffee.ID)
			}
			return fmt.Errorf("insert order line item: %w", err)
		}
	}
	return nil
}

// orderRow: колонки таблицы orders до сборки агрегата.
type orderRow struct {
	id, counterparty, agent, date string
	total, version                int64
	createdAt, updatedAt          time.Time
}

func scanOrderRow(row rowScanner) (orderRow, error) {
	var o orderRow
	err := row.Scan(&o.id, &o.counterparty, &o.agent, &o.date, &o.total, &o.version, &o.createdAt, &o.updatedAt)
	return o, err
}

func (r *orderRepository) scanOrder(ctx context.Context, row rowScanner, kind domain.Kind) (*domain.Order, error) {
	rec, err := scanOrderRow(row)
	if err != nil {
		return nil, err
	}
	return r.restore(ctx, kind, rec)
}

// restore подгружает позиции заказа вместе с актуальным каталогом и собирает агрегат.
func (r *orderRepository) restore(ctx context.Context, kind domain.Kind, rec orderRow) (*domain.Order, error) {
	counterpartyKind, agentKind := domain.KindCustomer, domain.KindSeller
	if kind == domain.KindImportOrder {
		counterpartyKind, agentKind = domain.KindSupplier, domain.KindImporter
	}

	id, err := domain.ParseIdentifier(kind, rec.id)
	if err != nil {
		return nil, err
	}
	counterparty, err := domain.ParseIdentifier(counterpartyKind, rec.counterparty)
	if err != nil {
		return nil, err
	}
	agent, err := domain.ParseIdentifier(agentKind, rec.agent)
	if err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}

	order, err := domain.RestoreOrder(r.ids, id, counterparty, agent, rec.date, domain.MoneyFromMinor(rec.total), items)
	if err != nil {
		return nil, err
	}
	order.Version = rec.version
	order.CreatedAt = rec.createdAt.UTC()
	order.UpdatedAt = rec.updatedAt.UTC()
	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID domain.Identifier) ([]*domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT li.id, li.qty, li.created_at,
		       c.id, c.name, c.price_minor, c.import_price_minor, t.id, t.name
		FROM order_line_items li
		JOIN coffees c ON c.id = li.coffee_id
		JOIN coffee_types t ON t.id = c.type_id
		WHERE li.order_id = $1
		ORDER BY li.created_at ASC, li.id ASC
	`, orderID.String())
	if err != nil {
		return nil, fmt.Errorf("load order line items: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.LineItem, 0)
	for rows.Next() {
		item := &domain.LineItem{OrderID: orderID}
		coffee, err := scanCoffee(prefixScanner{rows: rows, prefix: []any{&item.ID, &item.Qty, &item.CreatedAt}})
		if err != nil {
			return nil, fmt.Errorf("scan order line item: %w", err)
		}
		item.Coffee = coffee
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order line items: %w", err)
	}
	return items, nil
}

// prefixScanner добавляет колонки перед теми, что читает вложенный scan-хелпер.
type prefixScanner struct {
	rows   *sql.Rows
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.rows.Scan(append(append([]any{}, p.prefix...), dest...)...)
}

func orderExistsTx(ctx context.Context, tx *sql.Tx, id domain.Identifier) (bool, error) {
	var found string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, id.String()).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
