package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/amelbenhazem/SmartShopTn/internal/service"
	"github.com/amelbenhazem/SmartShopTn/pkg/httputil"
	"github.com/amelbenhazem/SmartShopTn/pkg/validator"
)

// OrderHandler handles HTTP requests for checkout and order endpoints.
type OrderHandler struct {
	checkout *service.CheckoutService
	orders   *service.OrderService
	logger   *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(checkout *service.CheckoutService, orders *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		checkout: checkout,
		orders:   orders,
		logger:   logger,
	}
}

// --- Request DTOs ---

// CheckoutRequest is the JSON request body for placing an order.
type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"omitempty,max=500"`
}

// UpdateStatusRequest is the JSON request body for the admin status update.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// listResponse wraps a page of orders with its total.
type listResponse struct {
	Orders  any `json:"orders"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// --- Handlers ---

// Checkout handles POST /api/v1/checkout
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
		})
		return
	}

	var req CheckoutRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
			})
			return
		}
		if err := validator.Validate(req); err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
	}

	order, err := h.checkout.Checkout(r.Context(), userID, service.CheckoutInput{
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: order})
}

// ListMyOrders handles GET /api/v1/orders
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
		})
		return
	}

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)

	orders, total, err := h.orders.ListMyOrders(r.Context(), userID, page, perPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: listResponse{
		Orders:  orders,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}})
}

// GetOrder handles GET /api/v1/orders/{orderID}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
		})
		return
	}

	orderID := chi.URLParam(r, "orderID")
	order, err := h.orders.GetOrder(r.Context(), orderID, userID, userRoleFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// UpdateStatus handles PATCH /api/v1/orders/{orderID}/status (admin only).
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
