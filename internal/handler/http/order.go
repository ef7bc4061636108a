package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/service"
	"github.com/utafrali/mobileshop/pkg/httputil"
	"github.com/utafrali/mobileshop/pkg/pagination"
)

// OrderHandler handles HTTP requests for the customer order endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateOrderRequest is the JSON request body for placing an order.
type CreateOrderRequest struct {
	LineIDs         []string `json:"line_ids" validate:"omitempty,max=50,dive,required"`
	PaymentMethod   string   `json:"payment_method" validate:"omitempty,oneof=cod e_wallet bank_transfer credit_card"`
	ShippingAddress string   `json:"shipping_address" validate:"omitempty,max=1024"`
	PointsToRedeem  int64    `json:"points_to_redeem" validate:"gte=0"`
	UseAllPoints    bool     `json:"use_all_points"`
}

// VersionRequest carries the order version the caller last saw. Zero skips
// the check.
type VersionRequest struct {
	Version int64 `json:"version" validate:"gte=0"`
}

// --- Handlers ---

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.service.CreateOrder(r.Context(), service.CreateOrderInput{
		UserID:          userID(r),
		LineIDs:         req.LineIDs,
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		ShippingAddress: req.ShippingAddress,
		PointsToRedeem:  req.PointsToRedeem,
		UseAllPoints:    req.UseAllPoints,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, newOrderView(order, domain.ActorUser))
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListOrders(r.Context(), userID(r), orderFilter(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, orderViews(page, domain.ActorUser))
}

// Groups handles GET /api/v1/orders/groups
func (h *OrderHandler) Groups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.UserGroups(r.Context(), userID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, groups)
}

// GetOrder handles GET /api/v1/orders/{orderID}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), userID(r), chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newOrderView(order, domain.ActorUser))
}

// CancelOrder handles POST /api/v1/orders/{orderID}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req VersionRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	order, err := h.service.Cancel(r.Context(), userID(r), chi.URLParam(r, "orderID"), req.Version)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newOrderView(order, domain.ActorUser))
}

func orderFilter(r *http.Request) service.OrderFilter {
	q := r.URL.Query()
	return service.OrderFilter{
		Status: domain.OrderStatus(q.Get("status")),
		Group:  domain.StatusGroup(q.Get("group")),
		Page:   pagination.FromRequest(r),
	}
}
