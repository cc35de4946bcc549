package gateway

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/cafe-pos/internal/adapter/contracts"
	"github.com/rl1809/cafe-pos/internal/core/domain"
)

type GRPCClient struct {
	conn *grpc.ClientConn
}

// NewGRPCClient connects lazily; an unreachable server surfaces on the first
// call as ErrConnectivity.
func NewGRPCClient(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(contracts.CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", target, err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) Submit(ctx context.Context, req domain.OrderRequest, key string) (int64, error) {
	if key != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, contracts.IdempotencyMetadataKey, key)
	}

	var res contracts.CreateOrderResponse
	if err := c.invoke(ctx, "Submit", &contracts.CreateOrderRequest{
		Products: req.Products,
		Total:    req.Total,
		Mode:     req.Mode,
	}, &res); err != nil {
		return 0, err
	}
	return res.ID, nil
}

func (c *GRPCClient) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var res contracts.ListOrdersResponse
	if err := c.invoke(ctx, "List", &contracts.ListOrdersRequest{}, &res); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, len(res.Orders))
	for i, o := range res.Orders {
		orders[i] = o.Domain()
	}
	return orders, nil
}

func (c *GRPCClient) SetStatus(ctx context.Context, id int64, s domain.OrderStatus) (domain.OrderStatus, error) {
	var res contracts.UpdateStatusResponse
	if err := c.invoke(ctx, "SetStatus", &contracts.UpdateStatusRequest{ID: id, Status: string(s)}, &res); err != nil {
		return "", err
	}
	parsed, _ := domain.ParseOrderStatus(res.Status)
	return parsed, nil
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in, out any) error {
	err := c.conn.Invoke(ctx, contracts.FullMethod(method), in, out)
	if err == nil {
		return nil
	}

	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Internal, codes.Unknown, codes.ResourceExhausted:
		return connectivity(method, err)
	default:
		return fmt.Errorf("%s: %w: %s %s", method, ErrRejected, st.Code(), st.Message())
	}
}
