package domain

import "context"

// CatalogRepository хранит сорта кофе и позиции каталога.
type CatalogRepository interface {
	CreateCoffeeType(ctx context.Context, t *TypeOfCoffee) error
	GetCoffeeType(ctx context.Context, id Identifier) (*TypeOfCoffee, error)
	// SaveCoffee создаёт или обновляет позицию каталога (например, новую цену).
	SaveCoffee(ctx context.Context, c *Coffee) error
	GetCoffee(ctx context.Context, id Identifier) (*Coffee, error)
}

// PartyRepository хранит участников сделок и справочник адресов.
type PartyRepository interface {
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, id Identifier) (*Customer, error)
	CreateSupplier(ctx context.Context, s *Supplier) error
	GetSupplier(ctx context.Context, id Identifier) (*Supplier, error)
	CreateImporter(ctx context.Context, im *Importer) error
	GetImporter(ctx context.Context, id Identifier) (*Importer, error)
	CreateSeller(ctx context.Context, s *Seller) error
	GetSeller(ctx context.Context, id Identifier) (*Seller, error)
	CreateDistrict(ctx context.Context, d *District) error
	CreateStreet(ctx context.Context, s *Street) error
}

// OrderRepository описывает требования к хранилищу заказов обоих видов.
type OrderRepository interface {
	// Create сохраняет новый заказ. ErrAlreadyExists, если ID занят.
	Create(ctx context.Context, order *Order) error
	// Get возвращает заказ или ErrNotFound.
	Get(ctx context.Context, id Identifier) (*Order, error)
	// Save применяет изменения с учётом optimistic locking (ErrVersionConflict).
	Save(ctx context.Context, order *Order) error
}
