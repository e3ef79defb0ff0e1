// Package handler provides the HTTP surface of the chainpay services.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"chainpay/internal/domain"
	"chainpay/internal/fee"
	"chainpay/pkg/logger"
)

// FeeHandler serves fee configuration, quoting, and analytics endpoints.
type FeeHandler struct {
	calculator *fee.Calculator
	collector  *fee.Collector
	logger     logger.Logger
}

func NewFeeHandler(calculator *fee.Calculator, collector *fee.Collector, log logger.Logger) *FeeHandler {
	return &FeeHandler{calculator: calculator, collector: collector, logger: log}
}

// GetConfig returns the active tier table. Pure config, no side effects.
func (h *FeeHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tiers":                      h.calculator.Tiers(),
		"minimum_transaction_amount": h.calculator.MinimumTransactionAmount(),
	})
}

// Calculate quotes the fee for ?amount= or, with ?total=, inverts a
// fee-inclusive total back to the base amount.
func (h *FeeHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if totalStr := q.Get("total"); totalStr != "" {
		total, err := decimal.NewFromString(totalStr)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid total")
			return
		}
		calc, err := h.calculator.CalculateFromTotal(total)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondJSON(w, http.StatusOK, calc)
		return
	}

	amountStr := q.Get("amount")
	if amountStr == "" {
		h.respondError(w, http.StatusBadRequest, "amount or total query parameter is required")
		return
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	calc, err := h.calculator.Calculate(amount)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, calc)
}

// BatchSummary quotes a set of amounts at once.
func (h *FeeHandler) BatchSummary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amounts []decimal.Decimal `json:"amounts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Amounts) == 0 {
		h.respondError(w, http.StatusBadRequest, "amounts is required")
		return
	}

	summary, err := h.calculator.CalculateBatchSummary(req.Amounts)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, summary)
}

// Stats aggregates collected fees over an optional chain/network/date window.
func (h *FeeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := fee.StatsFilter{
		Chain:   domain.Chain(q.Get("chain")),
		Network: domain.Network(q.Get("network")),
	}
	if fromStr := q.Get("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid from timestamp")
			return
		}
		filter.From = &from
	}
	if toStr := q.Get("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid to timestamp")
			return
		}
		filter.To = &to
	}

	stats, err := h.collector.FeeStats(r.Context(), filter)
	if err != nil {
		h.logger.Error("Fee stats failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch fee stats")
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

func (h *FeeHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("json encode failed", map[string]interface{}{"error": err.Error()})
	}
}

func (h *FeeHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
