package domain

import (
	"fmt"
	"strconv"
)

// Entity: любая сущность с идентификатором.
type Entity interface {
	EntityID() Identifier
}

// Имена полей, по которым строятся отчёты.
const (
	FieldTypeOfCoffeeName    = "typeOfCoffee"
	FieldCoffeeName          = "name"
	FieldCoffeeType          = "type"
	FieldCustomerName        = "fullName"
	FieldImporterName        = "fullName"
	FieldSellerName          = "fullName"
	FieldSupplierName        = "supplierName"
	FieldOrderDate           = "date"
	FieldSaleOrderCustomer   = "customer"
	FieldSaleOrderSeller     = "seller"
	FieldImportOrderSupplier = "supplier"
	FieldImportOrderImporter = "importer"
)

// District: район адреса. Идентификатор задаётся голым целым числом.
type District struct {
	ID   Identifier
	Name string `validate:"required,max=20"`
}

// NewDistrict создаёт район. id == 0 означает «выдать новый идентификатор».
func NewDistrict(ids *IdentifierRegistry, id int64, name string) (*District, error) {
	d := &District{Name: name}
	if err := validateStruct("district", d); err != nil {
		return nil, err
	}
	allocated, err := ids.Allocate(KindDistrict, intIdentifier(id))
	if err != nil {
		return nil, err
	}
	d.ID = allocated
	return d, nil
}

func (d *District) EntityID() Identifier { return d.ID }

func (d *District) String() string { return d.Name }

// Street: улица адреса. Идентификатор задаётся голым целым числом.
type Street struct {
	ID   Identifier
	Name string `validate:"required,max=20"`
}

// NewStreet создаёт улицу. id == 0 означает «выдать новый идентификатор».
func NewStreet(ids *IdentifierRegistry, id int64, name string) (*Street, error) {
	s := &Street{Name: name}
	if err := validateStruct("street", s); err != nil {
		return nil, err
	}
	allocated, err := ids.Allocate(KindStreet, intIdentifier(id))
	if err != nil {
		return nil, err
	}
	s.ID = allocated
	return s, nil
}

func (s *Street) EntityID() Identifier { return s.ID }

func (s *Street) String() string { return s.Name }

// Address: цепочка «дом, улица, район». Собственного идентификатора нет.
type Address struct {
	Detail   string `validate:"max=30"`
	Street   *Street
	District *District
}

// NewAddress собирает адрес; улица и район обязательны.
func NewAddress(detail string, street *Street, district *District) (*Address, error) {
	if street == nil {
		return nil, &ValidationError{Entity: "address", Field: "Street", Rule: "required"}
	}
	if district == nil {
		return nil, &ValidationError{Entity: "address", Field: "District", Rule: "required"}
	}
	a := &Address{Detail: detail, Street: street, District: district}
	if err := validateStruct("address", a); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Address) String() string {
	if a == nil {
		return ""
	}
	if a.Detail == "" {
		return fmt.Sprintf("%s, %s", a.Street, a.District)
	}
	return fmt.Sprintf("%s %s, %s", a.Detail, a.Street, a.District)
}

// Customer: покупатель кофе.
type Customer struct {
	ID       Identifier
	FullName string `validate:"required,max=20"`
	DOB      string `validate:"required,dmy"`
	Address  *Address
	Email    string `validate:"required,max=30,contains=@gmail.com"`
}

// NewCustomer создаёт покупателя. Для пустого id выдаётся новый, иначе id принимается как есть.
func NewCustomer(ids *IdentifierRegistry, id, fullName, dob string, address *Address, email string) (*Customer, error) {
	c := &Customer{FullName: fullName, DOB: dob, Address: address, Email: email}
	if err := validateStruct("customer", c); err != nil {
		return nil, err
	}
	allocated, err := ids.Allocate(KindCustomer, id)
	if err != nil {
		return nil, err
	}
	c.ID = allocated
	return c, nil
}

func (c *Customer) EntityID() Identifier { return c.ID }

// SetEmail меняет почту, отклоняя адреса вне RequiredEmailDomain.
func (c *Customer) SetEmail(email string) error {
	if err := validateVar("customer", "Email", email, "required,max=30,contains="+RequiredEmailDomain); err != nil {
		return err
	}
	c.Email = email
	return nil
}

// SetDOB меняет дату рождения (dd/MM/yyyy).
func (c *Customer) SetDOB(dob string) error {
	if err := validateVar("customer", "DOB", dob, "required,dmy"); err != nil {
		return err
	}
	c.DOB = dob
	return nil
}

func (c *Customer) String() string {
	return fmt.Sprintf("Customer(%s,%s,%s,%s,%s)", c.ID, c.FullName, c.DOB, c.Address, c.Email)
}

// Importer: сотрудник, оформляющий закупки.
type Importer struct {
	ID       Identifier
	FullName string `validate:"required,max=15"`
	DOB      string `validate:"required,dmy"`
	Address  *Address
	Email    string `validate:"required,max=30,contains=@gmail.com"`
}

// NewImporter создаёт импортёра.
func NewImporter(ids *IdentifierRegistry, id, fullName, dob string, address *Address, email string) (*Importer, error) {
	im := &Importer{FullName: fullName, DOB: dob, Address: address, Email: email}
	if err := validateStruct("importer", im); err != nil {
		return nil, err
	}
	allocated, err := ids.Allocate(KindImporter, id)
	if err != nil {
		return nil, err
	}
	im.ID = allocated
	return im, nil
}

func (im *Importer) EntityID() Identifier { return im.ID }

// SetEmail меняет почту импортёра.
func (im *Importer) SetEmail(email string) error {
	if err := validateVar("importer", "Email", email, "required,max=30,contains="+RequiredEmailDomain); err != nil {
		return err
	}
	im.Email = email
	return nil
}

// SetDOB меняет дату рождения импортёра.
func (im *Importer) SetDOB(dob string) error {
	if err := validateVar("importer", "DOB", dob, "required,dmy"); err != nil {
		return err
	}
	im.DOB = dob
	return nil
}

// Supplier: поставщик кофе.
type Supplier struct {
	ID      Identifier
	Name    string `validate:"required,max=15"`
	Phone   string `validate:"required,max=15"`
	Email   string `validate:"required,max=30,contains=@gmail.com"`
	Address *Address
}

// NewSupplier создаёт поставщика.
func NewSupplier(ids *IdentifierRegistry, id, name, phone, email string, address *Address) (*Supplier, error) {
	s := &Supplier{Name: name, Phone: phone, Email: email, Address: address}
	if err := validateStruct("supplier", s); err != nil {
		return nil, err
	}
	allocated, err := ids.Allocate(KindSupplier, id)
	if err != nil {
		return nil, err
	}
	s.ID = allocated
	return s, nil
}

func (s *Supplier) EntityID() Identifier { return s.ID }

// SetEmail меняет почту поставщика.
func (s *Supplier) SetEmail(email string) error {
	if err := validateVar("supplier", "Email", email, "required,max=30,contains="+RequiredEmailDomain); err != nil {
		return err
	}
	s.Email = email
	return nil
}

// Seller: продавец, оформляющий продажи.
type Seller struct {
	ID       Identifier
	FullName string `validate:"required,max=20"`
	Phone    string `validate:"omitempty,max=15"`
}

// NewSeller создаёт продавца.
func NewSeller(ids *IdentifierRegistry, id, fullName, phone string) (*Seller, error) {
	s := &Seller{FullName: fullName, Phone: phone}
	if err := validateStruct("seller", s); err != nil {
		return nil, err
	}
	allocated, err := ids.Allocate(KindSeller, id)
	if err != nil {
		return nil, err
	}
	s.ID = allocated
	return s, nil
}

func (s *Seller) EntityID() Identifier { return s.ID }

// TypeOfCoffee: сорт кофе (Arabica, Robusta, ...).
type TypeOfCoffee struct {
	ID   Identifier
	Name string `validate:"required,max=10"`
}

// NewTypeOfCoffee создаёт сорт кофе.
func NewTypeOfCoffee(ids *IdentifierRegistry, id, name string) (*TypeOfCoffee, error) {
	t := &TypeOfCoffee{Name: name}
	if err := validateStruct("type_of_coffee", t); err != nil {
		return nil, err
	}
	allocated, err := ids.Allocate(KindTypeOfCoffee, id)
	if err != nil {
		return nil, err
	}
	t.ID = allocated
	return t, nil
}

func (t *TypeOfCoffee) EntityID() Identifier { return t.ID }

func (t *TypeOfCoffee) String() string {
	return fmt.Sprintf("TypeOfCoffee(%s,%s)", t.ID, t.Name)
}

// Coffee: позиция каталога с ценой продажи и ценой закупки.
type Coffee struct {
	ID          Identifier
	Name        string        `validate:"required,max=30"`
	Type        *TypeOfCoffee `validate:"required"`
	Price       Money         `validate:"gte=0"`
	ImportPrice Money         `validate:"gte=0"`
}

// NewCoffee создаёт позицию каталога.
func NewCoffee(ids *IdentifierRegistry, id, name string, typ *TypeOfCoffee, price, importPrice Money) (*Coffee, error) {
	c := &Coffee{Name: name, Type: typ, Price: price, ImportPrice: importPrice}
	if err := validateStruct("coffee", c); err != nil {
		return nil, err
	}
	allocated, err := ids.Allocate(KindCoffee, id)
	if err != nil {
		return nil, err
	}
	c.ID = allocated
	return c, nil
}

func (c *Coffee) EntityID() Identifier { return c.ID }

// PriceFor возвращает цену единицы для заказа вида kind: для продажи Price, для закупки ImportPrice.
func (c *Coffee) PriceFor(kind Kind) Money {
	if kind == KindImportOrder {
		return c.ImportPrice
	}
	return c.Price
}

func intIdentifier(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
