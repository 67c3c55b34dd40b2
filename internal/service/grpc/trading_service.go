// Package grpcsvc реализует coffee.v1.TradingService поверх прикладного сервиса trading.
package grpcsvc

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/service/trading"
)

// TradingService реализует gRPC API торговли кофе.
type TradingService struct {
	svc      *trading.Service
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry
}

// NewTradingService конструирует сервис. idemRepo может быть nil: тогда CreateOrder
// не дедуплицируется.
func NewTradingService(svc *trading.Service, idemRepo domain.IdempotencyRepository, logger *log.Entry) *TradingService {
	if logger == nil {
		logger = log.New().WithField("component", "trading-grpc")
	}
	return &TradingService{svc: svc, idemRepo: idemRepo, logger: logger}
}

// CreateCoffeeType заводит сорт кофе: {id?, name}.
func (s *TradingService) CreateCoffeeType(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)
	name, err := f.required("name")
	if err != nil {
		return nil, err
	}
	t, err := s.svc.CreateCoffeeType(ctx, f.str("id"), name)
	if err != nil {
		return nil, s.toStatus(err, "CreateCoffeeType")
	}
	return s.entityResponse(t)
}

// CreateCoffee заводит позицию каталога: {id?, name, type_id, price, import_price}.
func (s *TradingService) CreateCoffee(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)
	typeID, err := f.required("type_id")
	if err != nil {
		return nil, err
	}
	price, err := f.money("price")
	if err != nil {
		return nil, s.toStatus(err, "CreateCoffee")
	}
	importPrice, err := f.money("import_price")
	if err != nil {
		return nil, s.toStatus(err, "CreateCoffee")
	}

	coffee, err := s.svc.CreateCoffee(ctx, trading.CoffeeInput{
		ID:          f.str("id"),
		Name:        f.str("name"),
		TypeID:      typeID,
		Price:       price,
		ImportPrice: importPrice,
	})
	if err != nil {
		return nil, s.toStatus(err, "CreateCoffee")
	}
	return s.entityResponse(coffee)
}

// CreateParty заводит участника: {kind, id?, name, dob?, email?, phone?, address?}.
func (s *TradingService) CreateParty(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)
	kind, err := f.required("kind")
	if err != nil {
		return nil, err
	}
	address, err := f.addressInput()
	if err != nil {
		return nil, err
	}

	party, err := s.svc.CreateParty(ctx, trading.PartyInput{
		Kind:    domain.Kind(kind),
		ID:      f.str("id"),
		Name:    f.str("name"),
		DOB:     f.str("dob"),
		Email:   f.str("email"),
		Phone:   f.str("phone"),
		Address: address,
	})
	if err != nil {
		return nil, s.toStatus(err, "CreateParty")
	}
	return s.entityResponse(party)
}

// CreateOrder создаёт заказ: {kind, id?, counterparty_id, agent_id, date, lines:[{id?, coffee_id, qty}]}.
// Повтор с тем же idempotency-key возвращает сохранённый ответ.
func (s *TradingService) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, MethodCreateOrder, req, func(ctx context.Context) (*structpb.Struct, error) {
		return s.createOrderInternal(ctx, req)
	})
}

func (s *TradingService) createOrderInternal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)
	kind, err := f.required("kind")
	if err != nil {
		return nil, err
	}
	counterparty, err := f.required("counterparty_id")
	if err != nil {
		return nil, err
	}
	agent, err := f.required("agent_id")
	if err != nil {
		return nil, err
	}
	lines, err := f.lineInputs("lines")
	if err != nil {
		return nil, err
	}

	order, err := s.svc.CreateOrder(ctx, trading.OrderInput{
		Kind:           domain.Kind(kind),
		ID:             f.str("id"),
		CounterpartyID: counterparty,
		AgentID:        agent,
		Date:           f.str("date"),
		Lines:          lines,
	})
	if err != nil {
		return nil, s.toStatus(err, "CreateOrder")
	}
	return orderResponse(order)
}

// GetOrder возвращает заказ: {order_id}.
func (s *TradingService) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	orderID, err := requestFields(req).required("order_id")
	if err != nil {
		return nil, err
	}
	order, err := s.svc.GetOrder(ctx, orderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder")
	}
	return orderResponse(order)
}

// AddLineItem добавляет позицию: {order_id, line:{id?, coffee_id, qty}}.
func (s *TradingService) AddLineItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)
	orderID, err := f.required("order_id")
	if err != nil {
		return nil, err
	}
	lineFields, ok := f.sub("line")
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "line is required")
	}
	line, err := lineFields.lineInput()
	if err != nil {
		return nil, err
	}

	order, err := s.svc.AddLineItem(ctx, orderID, line)
	if err != nil {
		return nil, s.toStatus(err, "AddLineItem")
	}
	return orderResponse(order)
}

// RemoveLineItem удаляет позицию: {order_id, line_item_id}.
func (s *TradingService) RemoveLineItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)
	orderID, err := f.required("order_id")
	if err != nil {
		return nil, err
	}
	itemID, err := f.required("line_item_id")
	if err != nil {
		return nil, err
	}

	order, err := s.svc.RemoveLineItem(ctx, orderID, itemID)
	if err != nil {
		return nil, s.toStatus(err, "RemoveLineItem")
	}
	return orderResponse(order)
}

// UpdateLineItem меняет количество: {order_id, line_item_id, qty}.
func (s *TradingService) UpdateLineItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)
	orderID, err := f.required("order_id")
	if err != nil {
		return nil, err
	}
	itemID, err := f.required("line_item_id")
	if err != nil {
		return nil, err
	}
	qty, err := f.qty("qty")
	if err != nil {
		return nil, err
	}

	order, err := s.svc.UpdateLineItem(ctx, orderID, itemID, qty)
	if err != nil {
		return nil, s.toStatus(err, "UpdateLineItem")
	}
	return orderResponse(order)
}

// ReplaceLineItems заменяет все позиции: {order_id, lines:[...]}.
func (s *TradingService) ReplaceLineItems(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)
	orderID, err := f.required("order_id")
	if err != nil {
		return nil, err
	}
	lines, err := f.lineInputs("lines")
	if err != nil {
		return nil, err
	}

	order, err := s.svc.ReplaceLineItems(ctx, orderID, lines)
	if err != nil {
		return nil, s.toStatus(err, "ReplaceLineItems")
	}
	return orderResponse(order)
}

// RunReport выполняет отчёт: {report, term}. Пустой term допустим и совпадает со всем.
func (s *TradingService) RunReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)
	name, err := f.required("report")
	if err != nil {
		return nil, err
	}
	term := ""
	if v, ok := f["term"]; ok {
		term = v.GetStringValue()
	}

	results, err := s.svc.RunReport(ctx, name, term)
	if err != nil {
		return nil, s.toStatus(err, "RunReport")
	}

	items := make([]any, 0, len(results))
	for _, e := range results {
		v, err := entityValue(e)
		if err != nil {
			return nil, s.toStatus(err, "RunReport")
		}
		items = append(items, v)
	}
	return newStruct(map[string]any{
		"report":  name,
		"term":    term,
		"count":   int64(len(items)),
		"results": items,
	})
}

// GetOrderTimeline возвращает события заказа: {order_id}.
func (s *TradingService) GetOrderTimeline(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	orderID, err := requestFields(req).required("order_id")
	if err != nil {
		return nil, err
	}
	events, err := s.svc.OrderTimeline(ctx, orderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrderTimeline")
	}

	out := make([]any, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]any{
			"type":        e.Type,
			"reason":      e.Reason,
			"total_after": e.TotalAfter.String(),
			"occurred_at": timestamp(e.Occurred),
		})
	}
	return newStruct(map[string]any{
		"order_id": orderID,
		"events":   out,
	})
}

func (s *TradingService) entityResponse(e domain.Entity) (*structpb.Struct, error) {
	v, err := entityValue(e)
	if err != nil {
		return nil, s.toStatus(err, "encode")
	}
	return newStruct(v)
}

func orderResponse(order *domain.Order) (*structpb.Struct, error) {
	return newStruct(map[string]any{"order": orderValue(order)})
}

var _ TradingServer = (*TradingService)(nil)
