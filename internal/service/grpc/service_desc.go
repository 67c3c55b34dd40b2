package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName: полное имя gRPC-сервиса.
const ServiceName = "coffee.v1.TradingService"

// Полные имена методов, как их видят интерсепторы.
const (
	MethodCreateCoffeeType = "/" + ServiceName + "/CreateCoffeeType"
	MethodCreateCoffee     = "/" + ServiceName + "/CreateCoffee"
	MethodCreateParty      = "/" + ServiceName + "/CreateParty"
	MethodCreateOrder      = "/" + ServiceName + "/CreateOrder"
	MethodGetOrder         = "/" + ServiceName + "/GetOrder"
	MethodAddLineItem      = "/" + ServiceName + "/AddLineItem"
	MethodRemoveLineItem   = "/" + ServiceName + "/RemoveLineItem"
	MethodUpdateLineItem   = "/" + ServiceName + "/UpdateLineItem"
	MethodReplaceLineItems = "/" + ServiceName + "/ReplaceLineItems"
	MethodRunReport        = "/" + ServiceName + "/RunReport"
	MethodGetOrderTimeline = "/" + ServiceName + "/GetOrderTimeline"
)

// TradingServer: серверная сторона coffee.v1.TradingService. Запросы и ответы
// передаются как google.protobuf.Struct.
type TradingServer interface {
	CreateCoffeeType(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateCoffee(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateParty(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddLineItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveLineItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateLineItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReplaceLineItems(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrderTimeline(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(TradingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TradingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TradingServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TradingServiceDesc описывает сервис для grpc.Server.RegisterService.
var TradingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TradingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateCoffeeType", Handler: unaryHandler(MethodCreateCoffeeType, TradingServer.CreateCoffeeType)},
		{MethodName: "CreateCoffee", Handler: unaryHandler(MethodCreateCoffee, TradingServer.CreateCoffee)},
		{MethodName: "CreateParty", Handler: unaryHandler(MethodCreateParty, TradingServer.CreateParty)},
		{MethodName: "CreateOrder", Handler: unaryHandler(MethodCreateOrder, TradingServer.CreateOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(MethodGetOrder, TradingServer.GetOrder)},
		{MethodName: "AddLineItem", Handler: unaryHandler(MethodAddLineItem, TradingServer.AddLineItem)},
		{MethodName: "RemoveLineItem", Handler: unaryHandler(MethodRemoveLineItem, TradingServer.RemoveLineItem)},
		{MethodName: "UpdateLineItem", Handler: unaryHandler(MethodUpdateLineItem, TradingServer.UpdateLineItem)},
		{MethodName: "ReplaceLineItems", Handler: unaryHandler(MethodReplaceLineItems, TradingServer.ReplaceLineItems)},
		{MethodName: "RunReport", Handler: unaryHandler(MethodRunReport, TradingServer.RunReport)},
		{MethodName: "GetOrderTimeline", Handler: unaryHandler(MethodGetOrderTimeline, TradingServer.GetOrderTimeline)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coffee/v1/trading.proto",
}

// RegisterTradingServer регистрирует реализацию на сервере.
func RegisterTradingServer(registrar grpc.ServiceRegistrar, srv TradingServer) {
	registrar.RegisterService(&TradingServiceDesc, srv)
}

// TradingClient: клиент coffee.v1.TradingService поверх произвольного соединения.
type TradingClient struct {
	cc grpc.ClientConnInterface
}

// NewTradingClient создаёт клиента.
func NewTradingClient(cc grpc.ClientConnInterface) *TradingClient {
	return &TradingClient{cc: cc}
}

// Call вызывает метод fullMethod (например, MethodCreateOrder).
func (c *TradingClient) Call(ctx context.Context, fullMethod string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
