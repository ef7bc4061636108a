package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/service"
	"github.com/utafrali/mobileshop/pkg/httputil"
)

// AccountHandler serves the caller's points balance and profile.
type AccountHandler struct {
	ledger   *service.LedgerService
	profiles *service.ProfileService
	logger   *slog.Logger
}

// NewAccountHandler creates a new account HTTP handler.
func NewAccountHandler(ledger *service.LedgerService, profiles *service.ProfileService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		ledger:   ledger,
		profiles: profiles,
		logger:   logger,
	}
}

// GetPoints handles GET /api/v1/points
func (h *AccountHandler) GetPoints(w http.ResponseWriter, r *http.Request) {
	acct, err := h.ledger.Balance(r.Context(), userID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, acct)
}

// GetProfile handles GET /api/v1/profile
func (h *AccountHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.GetProfile(r.Context(), userID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, profile)
}

// UpdateProfile handles PATCH /api/v1/profile
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.ProfilePatch
	if !decodeBody(w, r, &req) {
		return
	}

	profile, err := h.profiles.UpdateProfile(r.Context(), userID(r), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, profile)
}
