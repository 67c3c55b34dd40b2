package trading

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// CoffeeInput: данные новой позиции каталога. Для пустого ID выдаётся новый.
type CoffeeInput struct {
	ID          string
	Name        string
	TypeID      string
	Price       domain.Money
	ImportPrice domain.Money
}

// AddressInput: адрес участника. Нулевой StreetID/DistrictID заводит новую запись.
type AddressInput struct {
	Detail       string
	StreetID     int64
	StreetName   string
	DistrictID   int64
	DistrictName string
}

// PartyInput: данные участника сделки. Набор обязательных полей зависит от Kind:
// Name: ФИО покупателя, импортёра и продавца или название поставщика.
type PartyInput struct {
	Kind    domain.Kind
	ID      string
	Name    string
	DOB     string
	Email   string
	Phone   string
	Address *AddressInput
}

// CreateCoffeeType заводит сорт кофе.
func (s *Service) CreateCoffeeType(ctx context.Context, id, name string) (*domain.TypeOfCoffee, error) {
	t, err := domain.NewTypeOfCoffee(s.ids, id, name)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Catalog.CreateCoffeeType(ctx, t); err != nil {
		return nil, err
	}
	s.logger.WithField("type_id", t.ID.String()).Info("coffee type created")
	return t, nil
}

// CreateCoffee заводит позицию каталога указанного сорта.
func (s *Service) CreateCoffee(ctx context.Context, in CoffeeInput) (*domain.Coffee, error) {
	typeID, err := domain.ParseIdentifier(domain.KindTypeOfCoffee, in.TypeID)
	if err != nil {
		return nil, err
	}
	typ, err := s.repos.Catalog.GetCoffeeType(ctx, typeID)
	if err != nil {
		return nil, err
	}
	coffee, err := domain.NewCoffee(s.ids, in.ID, in.Name, typ, in.Price, in.ImportPrice)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Catalog.SaveCoffee(ctx, coffee); err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{
		"coffee_id": coffee.ID.String(),
		"type_id":   typ.ID.String(),
	}).Info("coffee created")
	return coffee, nil
}

// CreateParty заводит покупателя, поставщика, импортёра или продавца.
func (s *Service) CreateParty(ctx context.Context, in PartyInput) (domain.Entity, error) {
	var address *domain.Address
	if in.Address != nil && in.Kind != domain.KindSeller {
		var err error
		if address, err = s.resolveAddress(ctx, *in.Address); err != nil {
			return nil, err
		}
	}

	party, err := s.createParty(ctx, in, address)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"kind":     string(in.Kind),
		"party_id": party.EntityID().String(),
	}).Info("party created")
	return party, nil
}

func (s *Service) createParty(ctx context.Context, in PartyInput, address *domain.Address) (domain.Entity, error) {
	switch in.Kind {
	case domain.KindCustomer:
		c, err := domain.NewCustomer(s.ids, in.ID, in.Name, in.DOB, address, in.Email)
		if err != nil {
			return nil, err
		}
		return c, s.repos.Parties.CreateCustomer(ctx, c)
	case domain.KindSupplier:
		sup, err := domain.NewSupplier(s.ids, in.ID, in.Name, in.Phone, in.Email, address)
		if err != nil {
			return nil, err
		}
		return sup, s.repos.Parties.CreateSupplier(ctx, sup)
	case domain.KindImporter:
		im, err := domain.NewImporter(s.ids, in.ID, in.Name, in.DOB, address, in.Email)
		if err != nil {
			return nil, err
		}
		return im, s.repos.Parties.CreateImporter(ctx, im)
	case domain.KindSeller:
		sel, err := domain.NewSeller(s.ids, in.ID, in.Name, in.Phone)
		if err != nil {
			return nil, err
		}
		return sel, s.repos.Parties.CreateSeller(ctx, sel)
	default:
		return nil, &domain.InvalidIdentifierError{Kind: in.Kind, Value: in.ID, Err: domain.ErrUnknownKind}
	}
}

// resolveAddress заводит улицу и район. Уже сохранённые записи переиспользуются.
func (s *Service) resolveAddress(ctx context.Context, in AddressInput) (*domain.Address, error) {
	street, err := domain.NewStreet(s.ids, in.StreetID, in.StreetName)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Parties.CreateStreet(ctx, street); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return nil, fmt.Errorf("create street: %w", err)
	}

	district, err := domain.NewDistrict(s.ids, in.DistrictID, in.DistrictName)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Parties.CreateDistrict(ctx, district); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return nil, fmt.Errorf("create district: %w", err)
	}

	return domain.NewAddress(in.Detail, street, district)
}
