package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/service"
	"github.com/utafrali/mobileshop/pkg/httputil"
)

// AdminHandler handles the back-office endpoints.
type AdminHandler struct {
	orders *service.OrderService
	ledger *service.LedgerService
	logger *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(orders *service.OrderService, ledger *service.LedgerService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		orders: orders,
		ledger: ledger,
		logger: logger,
	}
}

// AdvanceStatusRequest is the JSON request body for moving an order forward.
type AdvanceStatusRequest struct {
	Status  string `json:"status" validate:"required"`
	Version int64  `json:"version" validate:"gte=0"`
}

// CreditPointsRequest is the JSON request body for a manual points grant.
type CreditPointsRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"omitempty,max=64"`
}

// ListOrders handles GET /api/v1/admin/orders
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.orders.AdminListOrders(r.Context(), orderFilter(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, indexViews(page))
}

// Groups handles GET /api/v1/admin/orders/groups
func (h *AdminHandler) Groups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.orders.AdminGroups(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, groups)
}

// GetOrder handles GET /api/v1/admin/orders/{orderID}
func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.AdminGetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newOrderView(order, domain.ActorAdmin))
}

// AdvanceStatus handles POST /api/v1/admin/orders/{orderID}/status
func (h *AdminHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	var req AdvanceStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.orders.AdvanceStatus(r.Context(), chi.URLParam(r, "orderID"), domain.OrderStatus(req.Status), req.Version)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newOrderView(order, domain.ActorAdmin))
}

// CancelOrder handles POST /api/v1/admin/orders/{orderID}/cancel
func (h *AdminHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req VersionRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	order, err := h.orders.AdminCancel(r.Context(), chi.URLParam(r, "orderID"), req.Version)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newOrderView(order, domain.ActorAdmin))
}

// CreditPoints handles POST /api/v1/admin/users/{userID}/points
func (h *AdminHandler) CreditPoints(w http.ResponseWriter, r *http.Request) {
	var req CreditPointsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	acct, err := h.ledger.Credit(r.Context(), chi.URLParam(r, "userID"), req.Amount, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, acct)
}
