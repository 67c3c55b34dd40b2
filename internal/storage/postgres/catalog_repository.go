package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

const selectCoffeeSQL = `
	SELECT c.id, c.name, c.price_minor, c.import_price_minor, t.id, t.name
	FROM coffees c
	JOIN coffee_types t ON t.id = c.type_id
`

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.DB()}
}

func (r *catalogRepository) CreateCoffeeType(ctx context.Context, t *domain.TypeOfCoffee) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO coffee_types (id, seq, name) VALUES ($1,$2,$3)
	`, t.ID.String(), t.ID.Seq, t.Name); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, t.ID)
		}
		return fmt.Errorf("insert coffee type: %w", err)
	}
	return nil
}

func (r *catalogRepository) GetCoffeeType(ctx context.Context, id domain.Identifier) (*domain.TypeOfCoffee, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rawID string
	t := &domain.TypeOfCoffee{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name FROM coffee_types WHERE id = $1
	`, id.String()).Scan(&rawID, &t.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("select coffee type: %w", err)
	}
	if t.ID, err = domain.ParseIdentifier(domain.KindTypeOfCoffee, rawID); err != nil {
		return nil, err
	}
	return t, nil
}

// SaveCoffee делает upsert позиции каталога.
func (r *catalogRepository) SaveCoffee(ctx context.Context, c *domain.Coffee) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if c.Type == nil {
		return &domain.ValidationError{Entity: "coffee", Field: "Type", Rule: "required"}
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO coffees (id, seq, name, type_id, price_minor, import_price_minor)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    type_id = EXCLUDED.type_id,
		    price_minor = EXCLUDED.price_minor,
		    import_price_minor = EXCLUDED.import_price_minor
	`, c.ID.String(), c.ID.Seq, c.Name, c.Type.ID.String(), c.Price.Minor(), c.ImportPrice.Minor()); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: coffee type %s", domain.ErrNotFound, c.Type.ID)
		}
		return fmt.Errorf("upsert coffee: %w", err)
	}
	return nil
}

func (r *catalogRepository) GetCoffee(ctx context.Context, id domain.Identifier) (*domain.Coffee, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	c, err := scanCoffee(r.db.QueryRowContext(ctx, selectCoffeeSQL+` WHERE c.id = $1`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("select coffee: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoffee(row rowScanner) (*domain.Coffee, error) {
	var (
		id, typeID, typeName string
		price, importPrice   int64
		c                    domain.Coffee
	)
	if err := row.Scan(&id, &c.Name, &price, &importPrice, &typeID, &typeName); err != nil {
		return nil, err
	}

	var err error
	if c.ID, err = domain.ParseIdentifier(domain.KindCoffee, id); err != nil {
		return nil, err
	}
	typ := &domain.TypeOfCoffee{Name: typeName}
	if typ.ID, err = domain.ParseIdentifier(domain.KindTypeOfCoffee, typeID); err != nil {
		return nil, err
	}
	c.Type = typ
	c.Price = domain.MoneyFromMinor(price)
	c.ImportPrice = domain.MoneyFromMinor(importPrice)
	return &c, nil
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
