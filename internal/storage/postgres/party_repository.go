package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

const (
	selectCustomerSQL = `
	SELECT p.id, p.full_name, p.dob, p.email, p.address_detail, s.id, s.name, d.id, d.name
	FROM customers p
	LEFT JOIN streets s ON s.id = p.street_id
	LEFT JOIN districts d ON d.id = p.district_id
`
	selectImporterSQL = `
	SELECT p.id, p.full_name, p.dob, p.email, p.address_detail, s.id, s.name, d.id, d.name
	FROM importers p
	LEFT JOIN streets s ON s.id = p.street_id
	LEFT JOIN districts d ON d.id = p.district_id
`
	selectSupplierSQL = `
	SELECT p.id, p.name, p.phone, p.email, p.address_detail, s.id, s.name, d.id, d.name
	FROM suppliers p
	LEFT JOIN streets s ON s.id = p.street_id
	LEFT JOIN districts d ON d.id = p.district_id
`
	selectSellerSQL = `SELECT id, full_name, phone FROM sellers`
)

type partyRepository struct {
	db *sql.DB
}

// NewPartyRepository создаёт PostgreSQL-реализацию PartyRepository.
func NewPartyRepository(store *Store) domain.PartyRepository {
	return &partyRepository{db: store.DB()}
}

func (r *partyRepository) exec(ctx context.Context, what string, id domain.Identifier, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %s", domain.ErrAlreadyExists, what, id)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: address of %s %s", domain.ErrNotFound, what, id)
		}
		return fmt.Errorf("insert %s: %w", what, err)
	}
	return nil
}

func (r *partyRepository) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	detail, street, district := addressColumns(c.Address)
	return r.exec(ctx, "customer", c.ID, `
		INSERT INTO customers (id, seq, full_name, dob, email, address_detail, street_id, district_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID.String(), c.ID.Seq, c.FullName, c.DOB, c.Email, detail, street, district)
}

func (r *partyRepository) GetCustomer(ctx context.Context, id domain.Identifier) (*domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	c, err := scanCustomer(r.db.QueryRowContext(ctx, selectCustomerSQL+` WHERE p.id = $1`, id.String()))
	return c, notFound(err, "customer", id)
}

func (r *partyRepository) CreateSupplier(ctx context.Context, s *domain.Supplier) error {
	detail, street, district := addressColumns(s.Address)
	return r.exec(ctx, "supplier", s.ID, `
		INSERT INTO suppliers (id, seq, name, phone, email, address_detail, street_id, district_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, s.ID.String(), s.ID.Seq, s.Name, s.Phone, s.Email, detail, street, district)
}

func (r *partyRepository) GetSupplier(ctx context.Context, id domain.Identifier) (*domain.Supplier, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s, err := scanSupplier(r.db.QueryRowContext(ctx, selectSupplierSQL+` WHERE p.id = $1`, id.String()))
	return s, notFound(err, "supplier", id)
}

func (r *partyRepository) CreateImporter(ctx context.Context, im *domain.Importer) error {
	detail, street, district := addressColumns(im.Address)
	return r.exec(ctx, "importer", im.ID, `
		INSERT INTO importers (id, seq, full_name, dob, email, address_detail, street_id, district_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, im.ID.String(), im.ID.Seq, im.FullName, im.DOB, im.Email, detail, street, district)
}

func (r *partyRepository) GetImporter(ctx context.Context, id domain.Identifier) (*domain.Importer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	im, err := scanImporter(r.db.QueryRowContext(ctx, selectImporterSQL+` WHERE p.id = $1`, id.String()))
	return im, notFound(err, "importer", id)
}

func (r *partyRepository) CreateSeller(ctx context.Context, s *domain.Seller) error {
	return r.exec(ctx, "seller", s.ID, `
		INSERT INTO sellers (id, seq, full_name, phone) VALUES ($1,$2,$3,$4)
	`, s.ID.String(), s.ID.Seq, s.FullName, s.Phone)
}

func (r *partyRepository) GetSeller(ctx context.Context, id domain.Identifier) (*domain.Seller, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s, err := scanSeller(r.db.QueryRowContext(ctx, selectSellerSQL+` WHERE id = $1`, id.String()))
	return s, notFound(err, "seller", id)
}

func (r *partyRepository) CreateDistrict(ctx context.Context, d *domain.District) error {
	return r.exec(ctx, "district", d.ID, `
		INSERT INTO districts (id, name) VALUES ($1,$2)
	`, d.ID.Seq, d.Name)
}

func (r *partyRepository) CreateStreet(ctx context.Context, s *domain.Street) error {
	return r.exec(ctx, "street", s.ID, `
		INSERT INTO streets (id, name) VALUES ($1,$2)
	`, s.ID.Seq, s.Name)
}

// notFound переводит sql.ErrNoRows в доменную ошибку, прочие ошибки оборачивает.
func notFound(err error, what string, id domain.Identifier) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, what, id)
	default:
		return fmt.Errorf("select %s: %w", what, err)
	}
}

func addressColumns(a *domain.Address) (string, sql.NullInt64, sql.NullInt64) {
	if a == nil {
		return "", sql.NullInt64{}, sql.NullInt64{}
	}
	var street, district sql.NullInt64
	if a.Street != nil {
		street = sql.NullInt64{Int64: a.Street.ID.Seq, Valid: true}
	}
	if a.District != nil {
		district = sql.NullInt64{Int64: a.District.ID.Seq, Valid: true}
	}
	return a.Detail, street, district
}

// addressScan собирает колонки адреса из LEFT JOIN.
type addressScan struct {
	detail       string
	streetID     sql.NullInt64
	streetName   sql.NullString
	districtID   sql.NullInt64
	districtName sql.NullString
}

func (a *addressScan) dest() []any {
	return []any{&a.detail, &a.streetID, &a.streetName, &a.districtID, &a.districtName}
}

func (a *addressScan) address() *domain.Address {
	if !a.streetID.Valid || !a.districtID.Valid {
		return nil
	}
	return &domain.Address{
		Detail:   a.detail,
		Street:   &domain.Street{ID: domain.Identifier{Kind: domain.KindStreet, Seq: a.streetID.Int64}, Name: a.streetName.String},
		District: &domain.District{ID: domain.Identifier{Kind: domain.KindDistrict, Seq: a.districtID.Int64}, Name: a.districtName.String},
	}
}

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var (
		id   string
		addr addressScan
		c    domain.Customer
	)
	if err := row.Scan(append([]any{&id, &c.FullName, &c.DOB, &c.Email}, addr.dest()...)...); err != nil {
		return nil, err
	}
	var err error
	if c.ID, err = domain.ParseIdentifier(domain.KindCustomer, id); err != nil {
		return nil, err
	}
	c.Address = addr.address()
	return &c, nil
}

func scanImporter(row rowScanner) (*domain.Importer, error) {
	var (
		id   string
		addr addressScan
		im   domain.Importer
	)
	if err := row.Scan(append([]any{&id, &im.FullName, &im.DOB, &im.Email}, addr.dest()...)...); err != nil {
		return nil, err
	}
	var err error
	if im.ID, err = domain.ParseIdentifier(domain.KindImporter, id); err != nil {
		return nil, err
	}
	im.Address = addr.address()
	return &im, nil
}

func scanSupplier(row rowScanner) (*domain.Supplier, error) {
	var (
		id   string
		addr addressScan
		s    domain.Supplier
	)
	if err := row.Scan(append([]any{&id, &s.Name, &s.Phone, &s.Email}, addr.dest()...)...); err != nil {
		return nil, err
	}
	var err error
	if s.ID, err = domain.ParseIdentifier(domain.KindSupplier, id); err != nil {
		return nil, err
	}
	s.Address = addr.address()
	return &s, nil
}

func scanSeller(row rowScanner) (*domain.Seller, error) {
	var (
		id string
		s  domain.Seller
	)
	if err := row.Scan(&id, &s.FullName, &s.Phone); err != nil {
		return nil, err
	}
	var err error
	if s.ID, err = domain.ParseIdentifier(domain.KindSeller, id); err != nil {
		return nil, err
	}
	return &s, nil
}

var _ domain.PartyRepository = (*partyRepository)(nil)
