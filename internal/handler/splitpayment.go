package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"chainpay/internal/authz"
	"chainpay/internal/domain"
	"chainpay/internal/middleware"
	"chainpay/internal/splitpayment"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
	"chainpay/pkg/validator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now (CORS)
	},
}

// SplitPaymentHandler exposes template CRUD, execution, and the live
// execution progress stream.
type SplitPaymentHandler struct {
	service   *splitpayment.Service
	executor  *splitpayment.Executor
	authz     *authz.Service
	hub       *ProgressHub
	validator *validator.Validator
	logger    logger.Logger
}

func NewSplitPaymentHandler(
	service *splitpayment.Service,
	executor *splitpayment.Executor,
	authzSvc *authz.Service,
	hub *ProgressHub,
	val *validator.Validator,
	log logger.Logger,
) *SplitPaymentHandler {
	return &SplitPaymentHandler{
		service:   service,
		executor:  executor,
		authz:     authzSvc,
		hub:       hub,
		validator: val,
		logger:    log,
	}
}

type createSplitPaymentRequest struct {
	Title      string `json:"title" validate:"required,min=1,max=128"`
	Chain      string `json:"chain" validate:"required"`
	Network    string `json:"network" validate:"required"`
	Recipients []struct {
		Address string          `json:"address" validate:"required,chain_address"`
		Name    string          `json:"name"`
		Amount  decimal.Decimal `json:"amount"`
	} `json:"recipients" validate:"required,min=1,dive"`
}

// Create registers a new split payment template.
func (h *SplitPaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createSplitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		h.respondValidationErrors(w, errs)
		return
	}

	params := splitpayment.CreateParams{
		UserID:  userID,
		Title:   req.Title,
		Chain:   domain.Chain(req.Chain),
		Network: domain.Network(req.Network),
	}
	for _, rec := range req.Recipients {
		params.Recipients = append(params.Recipients, splitpayment.RecipientParams{
			Address: rec.Address,
			Name:    rec.Name,
			Amount:  rec.Amount,
		})
	}

	sp, err := h.service.Create(r.Context(), params)
	if err != nil {
		if pkgerrors.IsValidation(err) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Split payment creation failed", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		h.respondError(w, http.StatusInternalServerError, "Failed to create split payment")
		return
	}

	h.respondJSON(w, http.StatusCreated, sp)
}

// Get returns one template with recipients, owner only.
func (h *SplitPaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.ownedTemplate(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, sp)
}

// List returns the caller's templates.
func (h *SplitPaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sps, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch split payments")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"split_payments": sps,
	})
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// UpdateStatus flips a template between active and inactive.
func (h *SplitPaymentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.ownedTemplate(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		h.respondValidationErrors(w, errs)
		return
	}

	if err := h.service.SetStatus(r.Context(), sp.ID, domain.SplitPaymentStatus(req.Status)); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Status updated"})
}

// Delete soft-deletes a template.
func (h *SplitPaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.ownedTemplate(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), sp.ID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Split payment deleted"})
}

type setRecipientActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// SetRecipientActive soft-removes or restores one recipient.
func (h *SplitPaymentHandler) SetRecipientActive(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.ownedTemplate(w, r)
	if !ok {
		return
	}

	recipientID, err := uuid.Parse(mux.Vars(r)["recipientId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid recipient ID")
		return
	}

	var req setRecipientActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		h.respondValidationErrors(w, errs)
		return
	}

	if err := h.service.SetRecipientActive(r.Context(), sp.ID, recipientID, *req.IsActive); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Recipient updated"})
}

type executeRequest struct {
	TransactionPin string `json:"transaction_pin"`
	TOTPCode       string `json:"totp_code"`
}

// Execute runs a template. When the user has a transaction PIN configured,
// the request must carry it (and a TOTP code if enrolled).
func (h *SplitPaymentHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	sp, ok := h.ownedTemplate(w, r)
	if !ok {
		return
	}

	var req executeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	hasPin, err := h.authz.HasPin(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Authorization check failed")
		return
	}
	if hasPin {
		if err := h.authz.Authorize(r.Context(), userID, req.TransactionPin, req.TOTPCode); err != nil {
			h.respondError(w, http.StatusForbidden, err.Error())
			return
		}
	}

	exec, err := h.executor.Execute(r.Context(), sp.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	results := make([]map[string]interface{}, 0, len(exec.Results))
	for _, res := range exec.Results {
		entry := map[string]interface{}{
			"recipient": res.RecipientAddress,
			"status":    res.Status,
		}
		if res.TxHash != "" {
			entry["tx_hash"] = res.TxHash
		}
		if res.ErrorMessage != "" {
			entry["error"] = res.ErrorMessage
		}
		results = append(results, entry)
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":      exec.Status != domain.ExecutionStatusFailed,
		"execution_id": exec.ID,
		"status":       exec.Status,
		"successful":   exec.SuccessfulPayments,
		"failed":       exec.FailedPayments,
		"total_fees":   exec.TotalFees,
		"results":      results,
	})
}

// GetExecution returns one execution with results, owner only.
func (h *SplitPaymentHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.ownedTemplate(w, r)
	if !ok {
		return
	}

	executionID, err := uuid.Parse(mux.Vars(r)["executionId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid execution ID")
		return
	}

	exec, err := h.service.GetExecution(r.Context(), executionID)
	if err != nil || exec.SplitPaymentID != sp.ID {
		h.respondError(w, http.StatusNotFound, "Execution not found")
		return
	}
	h.respondJSON(w, http.StatusOK, exec)
}

// ListExecutions returns a template's execution history.
func (h *SplitPaymentHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.ownedTemplate(w, r)
	if !ok {
		return
	}

	execs, err := h.service.ListExecutions(r.Context(), sp.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"executions": execs,
	})
}

// StreamExecution upgrades to a websocket and relays per-recipient progress
// for one execution until it is terminal or the client leaves.
func (h *SplitPaymentHandler) StreamExecution(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.ownedTemplate(w, r)
	if !ok {
		return
	}

	executionID, err := uuid.Parse(mux.Vars(r)["executionId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid execution ID")
		return
	}
	exec, err := h.service.GetExecution(r.Context(), executionID)
	if err != nil || exec.SplitPaymentID != sp.ID {
		h.respondError(w, http.StatusNotFound, "Execution not found")
		return
	}

	events, cancel := h.hub.Subscribe(executionID)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	// Snapshot first so late subscribers see the current state.
	if err := conn.WriteJSON(map[string]interface{}{
		"type":      "execution_snapshot",
		"timestamp": time.Now(),
		"execution": exec,
	}); err != nil {
		return
	}
	if exec.Status.Terminal() {
		return
	}

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if err := conn.WriteJSON(map[string]interface{}{
				"type":      "recipient_update",
				"timestamp": time.Now(),
				"event":     ev,
			}); err != nil {
				return
			}
			if ev.Completed == ev.Total {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// ownedTemplate loads the {id} template and enforces ownership. A template
// belonging to someone else reads as not found.
func (h *SplitPaymentHandler) ownedTemplate(w http.ResponseWriter, r *http.Request) (*domain.SplitPayment, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid split payment ID")
		return nil, false
	}

	sp, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Split payment not found")
		return nil, false
	}
	if sp.UserID != userID {
		h.respondError(w, http.StatusNotFound, "Split payment not found")
		return nil, false
	}
	return sp, true
}

func (h *SplitPaymentHandler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case pkgerrors.IsValidation(err):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case pkgerrors.Is(err, pkgerrors.ErrSplitPaymentNotFound),
		pkgerrors.Is(err, pkgerrors.ErrExecutionNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case pkgerrors.Is(err, pkgerrors.ErrSplitPaymentInactive),
		pkgerrors.Is(err, pkgerrors.ErrNoActiveRecipients):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("Split payment operation failed", map[string]interface{}{
			"error": err.Error(),
		})
		h.respondError(w, http.StatusInternalServerError, "Operation failed")
	}
}

func (h *SplitPaymentHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("json encode failed", map[string]interface{}{"error": err.Error()})
	}
}

func (h *SplitPaymentHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func (h *SplitPaymentHandler) respondValidationErrors(w http.ResponseWriter, errors map[string]string) {
	h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":             "Validation failed",
		"validation_errors": errors,
	})
}
