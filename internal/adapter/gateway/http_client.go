package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rl1809/cafe-pos/internal/adapter/contracts"
	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/pkg/idempotency"
)

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient talks to the API rooted at baseURL, e.g.
// http://localhost:8080/api. Per-call deadlines come from the context; the
// client timeout only bounds calls made without one.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) Submit(ctx context.Context, req domain.OrderRequest, key string) (int64, error) {
	var res contracts.CreateOrderResponse
	body := contracts.NewCreateOrderRequest(req, "")
	if err := c.do(ctx, http.MethodPost, "/pedidos", key, body, &res); err != nil {
		return 0, err
	}
	return res.ID, nil
}

func (c *HTTPClient) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var res []contracts.Order
	if err := c.do(ctx, http.MethodGet, "/pedidos", "", nil, &res); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, len(res))
	for i, o := range res {
		orders[i] = o.Domain()
	}
	return orders, nil
}

func (c *HTTPClient) SetStatus(ctx context.Context, id int64, status domain.OrderStatus) (domain.OrderStatus, error) {
	var res contracts.UpdateStatusResponse
	path := fmt.Sprintf("/pedidos/%d/estado", id)
	if err := c.do(ctx, http.MethodPut, path, "", contracts.UpdateStatusRequest{Status: string(status)}, &res); err != nil {
		return "", err
	}
	s, _ := domain.ParseOrderStatus(res.Status)
	return s, nil
}

// SubmitBatch pushes offline orders through /pedidos/sync in one request.
func (c *HTTPClient) SubmitBatch(ctx context.Context, entries []domain.OutboxEntry) (domain.BatchResult, error) {
	req := contracts.SyncRequest{Orders: make([]contracts.CreateOrderRequest, len(entries))}
	for i, e := range entries {
		req.Orders[i] = contracts.NewCreateOrderRequest(e.Payload, e.LocalID)
	}

	var res contracts.SyncResponse
	if err := c.do(ctx, http.MethodPost, "/pedidos/sync", "", req, &res); err != nil {
		return domain.BatchResult{}, err
	}
	return domain.BatchResult{IDs: res.IDs, Rejected: res.Rejected}, nil
}

func (c *HTTPClient) Menu(ctx context.Context) ([]contracts.MenuItem, error) {
	var res []contracts.MenuItem
	if err := c.do(ctx, http.MethodGet, "/menu", "", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, key string, in, out any) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	idempotency.Set(req, key)

	resp, err := c.client.Do(req)
	if err != nil {
		return connectivity(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return connectivity(op, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e contracts.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&e)
		return rejected(op, resp.StatusCode, e.Detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTransportError(err) {
			return connectivity(op, err)
		}
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
