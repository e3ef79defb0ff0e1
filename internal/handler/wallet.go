package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"chainpay/internal/domain"
	"chainpay/internal/middleware"
	"chainpay/internal/wallet"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
	"chainpay/pkg/validator"
)

// WalletHandler exposes wallet registration and lookup. Private key material
// never leaves the service layer.
type WalletHandler struct {
	service   *wallet.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewWalletHandler(service *wallet.Service, val *validator.Validator, log logger.Logger) *WalletHandler {
	return &WalletHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

type registerWalletRequest struct {
	Chain   string `json:"chain" validate:"required"`
	Network string `json:"network" validate:"required"`
	Label   string `json:"label" validate:"max=64"`
}

type walletResponse struct {
	ID        uuid.UUID      `json:"id"`
	Chain     domain.Chain   `json:"chain"`
	Network   domain.Network `json:"network"`
	Address   string         `json:"address"`
	Label     string         `json:"label,omitempty"`
	IsDefault bool           `json:"is_default"`
}

func toWalletResponse(w *domain.Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID,
		Chain:     w.Chain,
		Network:   w.Network,
		Address:   w.Address,
		Label:     w.Label,
		IsDefault: w.IsDefault,
	}
}

// Register creates a wallet for the authenticated user.
func (h *WalletHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req registerWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":             "Validation failed",
			"validation_errors": errs,
		})
		return
	}

	wlt, err := h.service.Register(r.Context(), wallet.RegisterParams{
		UserID:  userID,
		Chain:   domain.Chain(req.Chain),
		Network: domain.Network(req.Network),
		Label:   req.Label,
	})
	if err != nil {
		switch {
		case pkgerrors.IsValidation(err):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case pkgerrors.Is(err, pkgerrors.ErrWalletAlreadyExists):
			h.respondError(w, http.StatusConflict, "Wallet already exists")
		default:
			h.logger.Error("Wallet registration failed", map[string]interface{}{
				"error":   err.Error(),
				"user_id": userID,
			})
			h.respondError(w, http.StatusInternalServerError, "Failed to register wallet")
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, toWalletResponse(wlt))
}

// Get returns one of the caller's wallets.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid wallet ID")
		return
	}

	wlt, err := h.service.Get(r.Context(), id)
	if err != nil || wlt.UserID != userID {
		h.respondError(w, http.StatusNotFound, "Wallet not found")
		return
	}
	h.respondJSON(w, http.StatusOK, toWalletResponse(wlt))
}

// List returns all of the caller's wallets.
func (h *WalletHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	wallets, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch wallets")
		return
	}

	out := make([]walletResponse, 0, len(wallets))
	for _, wlt := range wallets {
		out = append(out, toWalletResponse(wlt))
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallets": out,
	})
}

func (h *WalletHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("json encode failed", map[string]interface{}{"error": err.Error()})
	}
}

func (h *WalletHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
