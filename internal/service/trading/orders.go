package trading

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/report"
)

// Операции над позициями, под которыми считаются метрики мутаций.
const (
	opAdd     = "add"
	opRemove  = "remove"
	opUpdate  = "update"
	opReplace = "replace"
)

// LineInput: позиция в запросе. Для пустого ID генерируется новый.
type LineInput struct {
	ID       string
	CoffeeID string
	Qty      int32
}

// OrderInput: данные нового заказа. Для продажи Counterparty это покупатель, Agent это продавец;
// для закупки поставщик и импортёр.
type OrderInput struct {
	Kind           domain.Kind
	ID             string
	CounterpartyID string
	AgentID        string
	Date           string
	Lines          []LineInput
}

// CreateOrder создаёт заказ вместе с начальными позициями.
func (s *Service) CreateOrder(ctx context.Context, in OrderInput) (*domain.Order, error) {
	order, err := s.newOrder(ctx, in)
	if err != nil {
		return nil, err
	}

	items, err := s.lineItems(ctx, order.ID, in.Lines)
	if err != nil {
		return nil, err
	}
	if err := order.AddNewBatch(items); err != nil {
		return nil, err
	}

	if err := s.repos.Orders.Create(ctx, order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID.String()).Error("failed to create order")
		return nil, err
	}

	s.metrics.RecordOrderCreated(string(order.Kind()))
	s.record(ctx, order, change{
		timeline: domain.TimelineOrderCreated,
		event:    domain.OrderEventCreated,
	})
	s.logger.WithFields(log.Fields{
		"order_id": order.ID.String(),
		"items":    order.Count(),
		"total":    order.TotalPrice().String(),
	}).Info("order created")
	return order, nil
}

func (s *Service) newOrder(ctx context.Context, in OrderInput) (*domain.Order, error) {
	switch in.Kind {
	case domain.KindSaleOrder:
		customerID, err := domain.ParseIdentifier(domain.KindCustomer, in.CounterpartyID)
		if err != nil {
			return nil, err
		}
		sellerID, err := domain.ParseIdentifier(domain.KindSeller, in.AgentID)
		if err != nil {
			return nil, err
		}
		customer, err := s.repos.Parties.GetCustomer(ctx, customerID)
		if err != nil {
			return nil, err
		}
		seller, err := s.repos.Parties.GetSeller(ctx, sellerID)
		if err != nil {
			return nil, err
		}
		return domain.NewSaleOrder(s.ids, in.ID, customer, seller, in.Date)
	case domain.KindImportOrder:
		supplierID, err := domain.ParseIdentifier(domain.KindSupplier, in.CounterpartyID)
		if err != nil {
			return nil, err
		}
		importerID, err := domain.ParseIdentifier(domain.KindImporter, in.AgentID)
		if err != nil {
			return nil, err
		}
		supplier, err := s.repos.Parties.GetSupplier(ctx, supplierID)
		if err != nil {
			return nil, err
		}
		importer, err := s.repos.Parties.GetImporter(ctx, importerID)
		if err != nil {
			return nil, err
		}
		return domain.NewImportOrder(s.ids, in.ID, supplier, importer, in.Date)
	default:
		return nil, &domain.InvalidIdentifierError{Kind: in.Kind, Value: in.ID, Err: domain.ErrUnknownKind}
	}
}

// lineItems собирает позиции для заказа orderID по текущему каталогу.
func (s *Service) lineItems(ctx context.Context, orderID domain.Identifier, lines []LineInput) ([]*domain.LineItem, error) {
	items := make([]*domain.LineItem, 0, len(lines))
	for _, line := range lines {
		coffeeID, err := domain.ParseIdentifier(domain.KindCoffee, line.CoffeeID)
		if err != nil {
			return nil, err
		}
		coffee, err := s.repos.Catalog.GetCoffee(ctx, coffeeID)
		if err != nil {
			return nil, err
		}
		item, err := domain.NewLineItem(line.ID, orderID, coffee, line.Qty)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// GetOrder загружает заказ. Расхождение сохранённой суммы с позициями не ошибка:
// оно логируется и учитывается в метриках.
func (s *Service) GetOrder(ctx context.Context, rawID string) (*domain.Order, error) {
	id, err := ParseOrderID(rawID)
	if err != nil {
		return nil, err
	}
	order, err := s.repos.Orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if violations := order.ValidateInvariants(); len(violations) > 0 {
		s.metrics.RecordInvariantFailure(string(order.Kind()))
		s.logger.WithFields(log.Fields{
			"order_id":   order.ID.String(),
			"violations": len(violations),
		}).WithError(violations[0]).Warn("loaded order violates invariants")
	}
	return order, nil
}

// AddLineItem добавляет позицию в заказ.
func (s *Service) AddLineItem(ctx context.Context, orderID string, line LineInput) (*domain.Order, error) {
	return s.mutate(ctx, orderID, opAdd, func(order *domain.Order) (change, error) {
		items, err := s.lineItems(ctx, order.ID, []LineInput{line})
		if err != nil {
			return change{}, err
		}
		if err := order.AddNew(items[0]); err != nil {
			return change{}, err
		}
		return change{
			timeline:   domain.TimelineLineItemAdded,
			event:      domain.OrderEventLineItemAdded,
			lineItemID: items[0].ID,
		}, nil
	})
}

// RemoveLineItem удаляет позицию. Удаление отсутствующей позиции ничего не меняет.
func (s *Service) RemoveLineItem(ctx context.Context, orderID, itemID string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, opRemove, func(order *domain.Order) (change, error) {
		if !order.Remove(itemID) {
			return change{noop: true}, nil
		}
		return change{
			timeline:   domain.TimelineLineItemRemoved,
			event:      domain.OrderEventLineItemRemoved,
			lineItemID: itemID,
		}, nil
	})
}

// UpdateLineItem меняет количество позиции.
func (s *Service) UpdateLineItem(ctx context.Context, orderID, itemID string, qty int32) (*domain.Order, error) {
	return s.mutate(ctx, orderID, opUpdate, func(order *domain.Order) (change, error) {
		if err := order.UpdateQuantity(itemID, qty); err != nil {
			return change{}, err
		}
		return change{
			timeline:   domain.TimelineLineItemUpdated,
			event:      domain.OrderEventLineItemUpdated,
			lineItemID: itemID,
		}, nil
	})
}

// ReplaceLineItems заменяет все позиции заказа.
func (s *Service) ReplaceLineItems(ctx context.Context, orderID string, lines []LineInput) (*domain.Order, error) {
	return s.mutate(ctx, orderID, opReplace, func(order *domain.Order) (change, error) {
		items, err := s.lineItems(ctx, order.ID, lines)
		if err != nil {
			return change{}, err
		}
		if err := order.ReplaceAll(items); err != nil {
			return change{}, err
		}
		return change{
			timeline: domain.TimelineLineItemsReplaced,
			event:    domain.OrderEventLineItemsReplaced,
		}, nil
	})
}

// mutate загружает заказ, применяет apply и сохраняет результат с проверкой версии.
func (s *Service) mutate(ctx context.Context, rawID, op string, apply func(*domain.Order) (change, error)) (order *domain.Order, err error) {
	defer func() { s.metrics.RecordLineItemMutation(op, err) }()

	order, err = s.GetOrder(ctx, rawID)
	if err != nil {
		return nil, err
	}

	c, err := apply(order)
	if err != nil {
		return nil, err
	}
	if c.noop {
		return order, nil
	}

	if err = s.repos.Orders.Save(ctx, order); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"operation": op,
			"order_id":  order.ID.String(),
		}).Warn("failed to save order")
		return nil, err
	}

	s.record(ctx, order, c)
	return order, nil
}

// OrderTimeline возвращает события заказа в порядке записи.
func (s *Service) OrderTimeline(ctx context.Context, rawID string) ([]domain.TimelineEvent, error) {
	id, err := ParseOrderID(rawID)
	if err != nil {
		return nil, err
	}
	if s.repos.Timeline == nil {
		return nil, nil
	}
	return s.repos.Timeline.List(ctx, id)
}

// RunReport выполняет отчёт по имени. Пустой результат не считается ошибкой.
func (s *Service) RunReport(ctx context.Context, name, term string) ([]domain.Entity, error) {
	def, ok := report.Lookup(name)
	if !ok {
		return nil, &domain.ReportQueryError{Report: name, Term: term, Err: ErrUnknownReport}
	}

	started := time.Now()
	results, err := report.Run(ctx, s.repos.Source, def, term)
	s.metrics.RecordReportRun(def.Name, time.Since(started), len(results), err)
	if err != nil {
		s.logger.WithError(err).WithField("report", def.Name).Warn("report failed")
		return nil, err
	}
	return results, nil
}
