package grpcsvc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/service/trading"
)

// fields читает поля запроса. Отсутствующее поле читается как нулевое значение.
type fields map[string]*structpb.Value

func requestFields(req *structpb.Struct) fields {
	if req == nil {
		return fields{}
	}
	return req.GetFields()
}

func (f fields) str(name string) string {
	v, ok := f[name]
	if !ok {
		return ""
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return strings.TrimSpace(kind.StringValue)
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
	default:
		return ""
	}
}

func (f fields) required(name string) (string, error) {
	if v := f.str(name); v != "" {
		return v, nil
	}
	return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
}

func (f fields) integer(name string) (int64, error) {
	v, ok := f[name]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
		}
		return int64(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(strings.TrimSpace(kind.StringValue), 10, 64)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
		}
		return n, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
}

func (f fields) qty(name string) (int32, error) {
	n, err := f.integer(name)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, status.Errorf(codes.InvalidArgument, "%s is out of range", name)
	}
	return int32(n), nil
}

// money читает сумму: строку "3.50" или число.
func (f fields) money(name string) (domain.Money, error) {
	raw := f.str(name)
	if raw == "" {
		return 0, nil
	}
	return domain.ParseMoney(raw)
}

func (f fields) sub(name string) (fields, bool) {
	v, ok := f[name]
	if !ok {
		return nil, false
	}
	s := v.GetStructValue()
	if s == nil {
		return nil, false
	}
	return s.GetFields(), true
}

func (f fields) list(name string) ([]fields, error) {
	v, ok := f[name]
	if !ok {
		return nil, nil
	}
	lv := v.GetListValue()
	if lv == nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be a list", name)
	}
	out := make([]fields, 0, len(lv.GetValues()))
	for idx, item := range lv.GetValues() {
		s := item.GetStructValue()
		if s == nil {
			return nil, status.Errorf(codes.InvalidArgument, "%s[%d] must be an object", name, idx)
		}
		out = append(out, s.GetFields())
	}
	return out, nil
}

func (f fields) lineInput() (trading.LineInput, error) {
	coffeeID, err := f.required("coffee_id")
	if err != nil {
		return trading.LineInput{}, err
	}
	qty, err := f.qty("qty")
	if err != nil {
		return trading.LineInput{}, err
	}
	return trading.LineInput{ID: f.str("id"), CoffeeID: coffeeID, Qty: qty}, nil
}

func (f fields) lineInputs(name string) ([]trading.LineInput, error) {
	items, err := f.list(name)
	if err != nil {
		return nil, err
	}
	lines := make([]trading.LineInput, 0, len(items))
	for idx, item := range items {
		line, err := item.lineInput()
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "%s[%d]: %s", name, idx, status.Convert(err).Message())
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (f fields) addressInput() (*trading.AddressInput, error) {
	addr, ok := f.sub("address")
	if !ok {
		return nil, nil
	}
	streetID, err := addr.integer("street_id")
	if err != nil {
		return nil, err
	}
	districtID, err := addr.integer("district_id")
	if err != nil {
		return nil, err
	}
	return &trading.AddressInput{
		Detail:       addr.str("detail"),
		StreetID:     streetID,
		StreetName:   addr.str("street_name"),
		DistrictID:   districtID,
		DistrictName: addr.str("district_name"),
	}, nil
}

// newStruct собирает ответ; ошибка сборки считается внутренней ошибкой сервера.
func newStruct(values map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func orderValue(order *domain.Order) map[string]any {
	items := make([]any, 0, order.Count())
	for _, item := range order.Items() {
		items = append(items, map[string]any{
			"id":          item.ID,
			"coffee_id":   item.Coffee.ID.String(),
			"coffee_name": item.Coffee.Name,
			"qty":         int64(item.Qty),
			"unit_price":  item.UnitPrice().String(),
			"line_total":  item.LineTotal().String(),
		})
	}
	return map[string]any{
		"id":              order.ID.String(),
		"kind":            string(order.Kind()),
		"counterparty_id": order.Counterparty.String(),
		"agent_id":        order.Agent.String(),
		"date":            order.Date,
		"version":         order.Version,
		"total":           order.TotalPrice().String(),
		"total_minor":     order.TotalPrice().Minor(),
		"item_count":      int64(order.Count()),
		"items":           items,
		"created_at":      timestamp(order.CreatedAt),
		"updated_at":      timestamp(order.UpdatedAt),
	}
}

func addressValue(a *domain.Address) any {
	if a == nil {
		return nil
	}
	return map[string]any{
		"detail":        a.Detail,
		"street_id":     a.Street.ID.Seq,
		"street_name":   a.Street.Name,
		"district_id":   a.District.ID.Seq,
		"district_name": a.District.Name,
	}
}

// entityValue переводит сущность отчёта или созданную сущность в JSON-объект.
func entityValue(e domain.Entity) (map[string]any, error) {
	switch v := e.(type) {
	case *domain.TypeOfCoffee:
		return map[string]any{"id": v.ID.String(), "name": v.Name}, nil
	case *domain.Coffee:
		return map[string]any{
			"id":           v.ID.String(),
			"name":         v.Name,
			"type_id":      v.Type.ID.String(),
			"type_name":    v.Type.Name,
			"price":        v.Price.String(),
			"import_price": v.ImportPrice.String(),
		}, nil
	case *domain.Customer:
		return map[string]any{
			"id": v.ID.String(), "kind": string(domain.KindCustomer), "name": v.FullName,
			"dob": v.DOB, "email": v.Email, "address": addressValue(v.Address),
		}, nil
	case *domain.Importer:
		return map[string]any{
			"id": v.ID.String(), "kind": string(domain.KindImporter), "name": v.FullName,
			"dob": v.DOB, "email": v.Email, "address": addressValue(v.Address),
		}, nil
	case *domain.Supplier:
		return map[string]any{
			"id": v.ID.String(), "kind": string(domain.KindSupplier), "name": v.Name,
			"phone": v.Phone, "email": v.Email, "address": addressValue(v.Address),
		}, nil
	case *domain.Seller:
		return map[string]any{
			"id": v.ID.String(), "kind": string(domain.KindSeller), "name": v.FullName, "phone": v.Phone,
		}, nil
	case *domain.Order:
		return orderValue(v), nil
	default:
		return nil, fmt.Errorf("unsupported entity %T", e)
	}
}
