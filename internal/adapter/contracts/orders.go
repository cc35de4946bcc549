// Package contracts holds the JSON shapes exchanged between the order server
// and its clients. The HTTP API and the gRPC JSON codec share them.
package contracts

import (
	"time"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

const (
	MsgOrderCreated  = "Pedido creado"
	MsgStatusUpdated = "Estado actualizado"
	MsgOrdersSynced  = "Pedidos sincronizados"
	MsgOrderNotFound = "Pedido no encontrado"
	MsgInvalidStatus = "Estado inválido"
)

// CreatedAtLayout is the ISO-8601 form used on the wire.
const CreatedAtLayout = time.RFC3339Nano

type MenuItem struct {
	ID          int64   `json:"id"`
	Name        string  `json:"nombre"`
	Price       float64 `json:"precio"`
	Section     string  `json:"seccion"`
	Description string  `json:"descripcion"`
}

func NewMenu(c *domain.Catalog) []MenuItem {
	items := c.Items()
	out := make([]MenuItem, len(items))
	for i, it := range items {
		out[i] = MenuItem{
			ID:          it.ID,
			Name:        it.Name,
			Price:       it.UnitPrice,
			Section:     it.Section,
			Description: it.Description,
		}
	}
	return out
}

// NewCatalog rebuilds a catalog from a menu fetched from the server.
func NewCatalog(menu []MenuItem) *domain.Catalog {
	items := make([]domain.CatalogItem, len(menu))
	for i, m := range menu {
		items[i] = domain.CatalogItem{
			ID:          m.ID,
			Name:        m.Name,
			UnitPrice:   m.Price,
			Section:     m.Section,
			Description: m.Description,
		}
	}
	return domain.NewCatalog(items)
}

// CreateOrderRequest is the body of POST /pedidos and one element of a sync
// batch. Estado is accepted for compatibility and ignored.
type CreateOrderRequest struct {
	Products []int64 `json:"productos"`
	Total    float64 `json:"total"`
	Status   string  `json:"estado,omitempty"`
	Mode     *string `json:"modo"`
	TempID   string  `json:"temp_id,omitempty"`
}

func (r CreateOrderRequest) OrderRequest() domain.OrderRequest {
	return domain.OrderRequest{Products: r.Products, Total: r.Total, Mode: r.Mode}
}

func NewCreateOrderRequest(req domain.OrderRequest, tempID string) CreateOrderRequest {
	return CreateOrderRequest{
		Products: req.Products,
		Total:    req.Total,
		Status:   string(domain.OrderStatusPending),
		Mode:     req.Mode,
		TempID:   tempID,
	}
}

type CreateOrderResponse struct {
	Message string `json:"mensaje"`
	ID      int64  `json:"id"`
}

type Order struct {
	ID           int64    `json:"id"`
	Products     []int64  `json:"productos"`
	Total        float64  `json:"total"`
	Status       string   `json:"estado"`
	Mode         *string  `json:"modo"`
	CreatedAt    string   `json:"created_at"`
	ProductNames []string `json:"productos_nombres"`
}

func NewOrder(o domain.Order, c *domain.Catalog) Order {
	products := o.Products
	if products == nil {
		products = []int64{}
	}
	return Order{
		ID:           o.ID,
		Products:     products,
		Total:        o.Total,
		Status:       string(o.Status),
		Mode:         o.Mode,
		CreatedAt:    o.CreatedAt.UTC().Format(CreatedAtLayout),
		ProductNames: c.Names(products),
	}
}

func NewOrders(orders []domain.Order, c *domain.Catalog) []Order {
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = NewOrder(o, c)
	}
	return out
}

// Domain converts back to the domain shape. Unknown status strings are kept
// verbatim so viewers still see them; an unparsable timestamp becomes zero.
func (o Order) Domain() domain.Order {
	status, ok := domain.ParseOrderStatus(o.Status)
	if !ok {
		status = domain.OrderStatus(o.Status)
	}
	created, _ := time.Parse(CreatedAtLayout, o.CreatedAt)
	return domain.Order{
		ID:        o.ID,
		Products:  o.Products,
		Total:     o.Total,
		Status:    status,
		Mode:      o.Mode,
		CreatedAt: created,
	}
}

type UpdateStatusRequest struct {
	ID     int64  `json:"id,omitempty"`
	Status string `json:"estado"`
}

type UpdateStatusResponse struct {
	Message string `json:"mensaje"`
	Status  string `json:"estado"`
}

type SyncRequest struct {
	Orders []CreateOrderRequest `json:"pedidos"`
}

type SyncResponse struct {
	Message  string            `json:"mensaje"`
	IDs      map[string]int64  `json:"ids"`
	Rejected map[string]string `json:"rechazados,omitempty"`
}

type GetOrderRequest struct {
	ID int64 `json:"id"`
}

type ListOrdersRequest struct{}

type ListOrdersResponse struct {
	Orders []Order `json:"pedidos"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
