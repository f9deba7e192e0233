package http

import (
	"errors"
	"net/http"

	"github.com/sparklab-cy/sparklab.cy/internal/payments"
)

type paymentRequest struct {
	Action          string            `json:"action"`
	PaymentIntentID string            `json:"paymentIntentId"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
}

// handlePayments is the mock payment API the web client drives directly:
// create an intent, confirm it, or refund it. Amounts are integer cents.
func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	switch req.Action {
	case "create-payment-intent":
		if req.Amount <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		if req.Currency == "" {
			req.Currency = "usd"
		}
		intent, err := s.payments.CreateIntent(r.Context(), claims.UserID, req.Amount, req.Currency, req.Metadata)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "payment_error")
			return
		}
		writeJSON(w, http.StatusCreated, intent)

	case "confirm-payment":
		intent, err := s.payments.Confirm(r.Context(), req.PaymentIntentID)
		if err != nil {
			if errors.Is(err, payments.ErrIntentNotFound) {
				writeError(w, http.StatusNotFound, "intent_not_found")
				return
			}
			writeError(w, http.StatusInternalServerError, "payment_error")
			return
		}
		writeJSON(w, http.StatusOK, intent)

	case "refund":
		refund, err := s.payments.Refund(r.Context(), req.PaymentIntentID, req.Amount)
		if err != nil {
			if errors.Is(err, payments.ErrIntentNotFound) {
				writeError(w, http.StatusNotFound, "intent_not_found")
				return
			}
			writeError(w, http.StatusInternalServerError, "payment_error")
			return
		}
		writeJSON(w, http.StatusOK, refund)

	default:
		writeError(w, http.StatusBadRequest, "unknown_action")
	}
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	intentID := r.URL.Query().Get("paymentIntentId")
	if intentID == "" {
		writeError(w, http.StatusBadRequest, "missing_payment_intent_id")
		return
	}

	intent, err := s.payments.Status(r.Context(), intentID)
	if err != nil {
		if errors.Is(err, payments.ErrIntentNotFound) {
			writeError(w, http.StatusNotFound, "intent_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "payment_error")
		return
	}
	writeJSON(w, http.StatusOK, intent)
}
