package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rl1809/cafe-pos/internal/adapter/contracts"
	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/core/service"
	"github.com/rl1809/cafe-pos/pkg/idempotency"
	"github.com/rl1809/cafe-pos/pkg/metrics"
)

const maxBodyBytes = 1 << 20

type HTTPHandler struct {
	orderService *service.OrderService
	catalog      *domain.Catalog
	logger       *slog.Logger
}

func NewHTTPHandler(orderService *service.OrderService, catalog *domain.Catalog, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPHandler{orderService: orderService, catalog: catalog, logger: logger}
}

// Router serves the API both at the root and under /api. m and exposition
// are optional.
func (h *HTTPHandler) Router(m *metrics.ServerMetrics, exposition http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
	}

	r.Get("/health", h.HealthCheck)
	if exposition != nil {
		r.Method(http.MethodGet, "/metrics", exposition)
	}

	h.routes(r)
	r.Route("/api", h.routes)
	return r
}

func (h *HTTPHandler) routes(r chi.Router) {
	r.Get("/menu", h.Menu)
	r.Route("/pedidos", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.CreateOrder)
		r.Post("/sync", h.SyncOrders)
		r.Get("/{id}", h.GetOrder)
		r.Put("/{id}/estado", h.UpdateStatus)
	})
}

func (h *HTTPHandler) Menu(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, contracts.NewMenu(h.catalog))
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	key := idempotency.Key(r)
	if key == "" {
		key = strings.TrimSpace(req.TempID)
	}

	res, err := h.orderService.Submit(r.Context(), req.OrderRequest(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, contracts.CreateOrderResponse{
		Message: contracts.MsgOrderCreated,
		ID:      res.OrderID,
	})
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contracts.NewOrders(orders, h.catalog))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.orderService.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contracts.NewOrder(order, h.catalog))
}

func (h *HTTPHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req contracts.UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeJSON(w, http.StatusBadRequest, contracts.ErrorResponse{Detail: contracts.MsgInvalidStatus})
		return
	}

	order, err := h.orderService.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, contracts.UpdateStatusResponse{
		Message: contracts.MsgStatusUpdated,
		Status:  string(order.Status),
	})
}

func (h *HTTPHandler) SyncOrders(w http.ResponseWriter, r *http.Request) {
	var req contracts.SyncRequest
	if !h.decode(w, r, &req) {
		return
	}

	items := make([]service.SyncItem, len(req.Orders))
	for i, o := range req.Orders {
		items[i] = service.SyncItem{Request: o.OrderRequest(), TempID: strings.TrimSpace(o.TempID)}
	}

	res, err := h.orderService.Sync(r.Context(), items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, contracts.SyncResponse{
		Message:  contracts.MsgOrdersSynced,
		IDs:      res.IDs,
		Rejected: res.Rejected,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, contracts.ErrorResponse{Detail: "invalid request body"})
		return false
	}
	return true
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, contracts.ErrorResponse{Detail: "invalid order id"})
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := http.StatusInternalServerError, "internal error"

	switch {
	case errors.Is(err, service.ErrNotFound):
		status, detail = http.StatusNotFound, contracts.MsgOrderNotFound
	case errors.Is(err, service.ErrValidation):
		status, detail = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrIllegalTransition):
		status, detail = http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrDuplicateRequest):
		status, detail = http.StatusConflict, "duplicate request"
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}

	writeJSON(w, status, contracts.ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
