package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/cafe-pos/internal/adapter/contracts"
	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/core/service"
)

type OrderServiceServer interface {
	Submit(context.Context, *contracts.CreateOrderRequest) (*contracts.CreateOrderResponse, error)
	SetStatus(context.Context, *contracts.UpdateStatusRequest) (*contracts.UpdateStatusResponse, error)
	List(context.Context, *contracts.ListOrdersRequest) (*contracts.ListOrdersResponse, error)
	Get(context.Context, *contracts.GetOrderRequest) (*contracts.Order, error)
}

var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: contracts.GRPCService,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Submit", OrderServiceServer.Submit),
		unary("SetStatus", OrderServiceServer.SetStatus),
		unary("List", OrderServiceServer.List),
		unary("Get", OrderServiceServer.Get),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pos/v1/orders",
}

func unary[Req, Resp any](method string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(OrderServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: contracts.FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

type GRPCHandler struct {
	orderService *service.OrderService
	catalog      *domain.Catalog
	logger       *slog.Logger
}

func NewGRPCHandler(orderService *service.OrderService, catalog *domain.Catalog, logger *slog.Logger) *GRPCHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GRPCHandler{orderService: orderService, catalog: catalog, logger: logger}
}

func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&OrderServiceDesc, h)
}

func (h *GRPCHandler) Submit(ctx context.Context, req *contracts.CreateOrderRequest) (*contracts.CreateOrderResponse, error) {
	key := strings.TrimSpace(req.TempID)
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(contracts.IdempotencyMetadataKey); len(v) > 0 && strings.TrimSpace(v[0]) != "" {
			key = strings.TrimSpace(v[0])
		}
	}

	res, err := h.orderService.Submit(ctx, req.OrderRequest(), key)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &contracts.CreateOrderResponse{Message: contracts.MsgOrderCreated, ID: res.OrderID}, nil
}

func (h *GRPCHandler) SetStatus(ctx context.Context, req *contracts.UpdateStatusRequest) (*contracts.UpdateStatusResponse, error) {
	order, err := h.orderService.SetStatus(ctx, req.ID, req.Status)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &contracts.UpdateStatusResponse{Message: contracts.MsgStatusUpdated, Status: string(order.Status)}, nil
}

func (h *GRPCHandler) List(ctx context.Context, _ *contracts.ListOrdersRequest) (*contracts.ListOrdersResponse, error) {
	orders, err := h.orderService.List(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &contracts.ListOrdersResponse{Orders: contracts.NewOrders(orders, h.catalog)}, nil
}

func (h *GRPCHandler) Get(ctx context.Context, req *contracts.GetOrderRequest) (*contracts.Order, error) {
	order, err := h.orderService.Get(ctx, req.ID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	o := contracts.NewOrder(order, h.catalog)
	return &o, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, contracts.MsgOrderNotFound)
	case errors.Is(err, service.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrIllegalTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, "duplicate request")
	default:
		h.logger.Error("rpc failed", "err", err)
		return status.Error(codes.Internal, "internal error")
	}
}
