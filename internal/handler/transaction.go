package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"chainpay/internal/domain"
	"chainpay/internal/middleware"
	"chainpay/internal/pipeline"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
	"chainpay/pkg/validator"
)

// TransactionReader serves ledger reads for the HTTP surface.
type TransactionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error)
}

// TransactionHandler exposes the send path and ledger reads.
type TransactionHandler struct {
	pipeline  *pipeline.Pipeline
	ledger    TransactionReader
	validator *validator.Validator
	logger    logger.Logger
}

func NewTransactionHandler(p *pipeline.Pipeline, ledger TransactionReader, val *validator.Validator, log logger.Logger) *TransactionHandler {
	return &TransactionHandler{pipeline: p, ledger: ledger, validator: val, logger: log}
}

type sendRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"required,gt=0"`
	ToAddress string          `json:"to_address" validate:"required,chain_address"`
	Chain     string          `json:"chain" validate:"required"`
	Network   string          `json:"network" validate:"required,oneof=mainnet testnet"`
}

// Send runs one transfer through the transaction pipeline.
func (h *TransactionHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		h.respondValidationErrors(w, errs)
		return
	}

	receipt, err := h.pipeline.Send(r.Context(), pipeline.SendRequest{
		UserID:    userID,
		Amount:    req.Amount,
		ToAddress: req.ToAddress,
		Chain:     domain.Chain(req.Chain),
		Network:   domain.Network(req.Network),
	})
	if err != nil {
		h.respondSendError(w, userID, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": receipt,
	})
}

// respondSendError maps the pipeline error taxonomy onto HTTP statuses.
func (h *TransactionHandler) respondSendError(w http.ResponseWriter, userID uuid.UUID, err error) {
	switch {
	case pkgerrors.IsValidation(err):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case pkgerrors.IsConfiguration(err):
		h.respondError(w, http.StatusServiceUnavailable, err.Error())
	case pkgerrors.IsInsufficientBalance(err):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case pkgerrors.Is(err, pkgerrors.ErrWalletNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("Send failed", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		h.respondError(w, http.StatusInternalServerError, "Transfer failed")
	}
}

// Get returns one ledger row owned by the caller.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	tx, err := h.ledger.GetByID(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if tx.UserID != userID {
		h.respondError(w, http.StatusNotFound, "Transaction not found")
		return
	}

	h.respondJSON(w, http.StatusOK, tx)
}

// List returns the caller's ledger rows, newest first.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit := 50
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	txs, err := h.ledger.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"limit":        limit,
		"offset":       offset,
	})
}

func (h *TransactionHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("json encode failed", map[string]interface{}{"error": err.Error()})
	}
}

func (h *TransactionHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func (h *TransactionHandler) respondValidationErrors(w http.ResponseWriter, errors map[string]string) {
	h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":             "Validation failed",
		"validation_errors": errors,
	})
}
