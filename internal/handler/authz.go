package handler

import (
	"encoding/json"
	"net/http"

	"chainpay/internal/authz"
	"chainpay/internal/middleware"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
	"chainpay/pkg/validator"
)

// AuthzHandler exposes transaction PIN setup and TOTP enrollment.
type AuthzHandler struct {
	service   *authz.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewAuthzHandler(service *authz.Service, val *validator.Validator, log logger.Logger) *AuthzHandler {
	return &AuthzHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

type setPinRequest struct {
	Pin string `json:"pin" validate:"required,min=4,max=12"`
}

// SetPin creates or replaces the caller's transaction PIN.
func (h *AuthzHandler) SetPin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req setPinRequest
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

	if err := h.service.SetPin(r.Context(), userID, req.Pin); err != nil {
		if pkgerrors.IsValidation(err) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to set transaction pin", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		h.respondError(w, http.StatusInternalServerError, "Failed to set transaction PIN")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Transaction PIN set"})
}

// EnrollTOTP issues a TOTP secret and returns the provisioning URL. Requires
// a transaction PIN to be set first.
func (h *AuthzHandler) EnrollTOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	account, _ := middleware.EmailFromContext(r.Context())
	if account == "" {
		account = userID.String()
	}

	url, err := h.service.EnrollTOTP(r.Context(), userID, account)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrPinNotSet) {
			h.respondError(w, http.StatusPreconditionFailed, "Set a transaction PIN before enrolling TOTP")
			return
		}
		h.logger.Error("TOTP enrollment failed", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		h.respondError(w, http.StatusInternalServerError, "Failed to enroll TOTP")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{
		"otpauth_url": url,
	})
}

func (h *AuthzHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("json encode failed", map[string]interface{}{"error": err.Error()})
	}
}

func (h *AuthzHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
