package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/service"
)

type createPaymentRequest struct {
	ReceiverAccountID int64           `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
}

// CreatePayment creates a pending payment from the caller's account
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	var req createPaymentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	payment, err := h.svc.CreatePayment(r.Context(), caller, service.PaymentRequest{
		SenderAccount:   caller,
		ReceiverAccount: req.ReceiverAccountID,
		Amount:          req.Amount,
		Description:     req.Description,
	})
	if err != nil {
		// a payment stored without its code is still reported to the payer
		var payload any
		if payment != nil {
			payload = payment
		}
		h.writeError(w, r, err, payload)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// GetPayment returns a payment the caller takes part in
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	payment, err := h.svc.GetPayment(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// ResolvePaymentCode returns the payment a scanned code belongs to
func (h *Handler) ResolvePaymentCode(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	payment, err := h.svc.ResolvePaymentByCode(r.Context(), caller, mux.Vars(r)["code"])
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// ProcessPayment accepts or denies a payment addressed to the caller
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	var req decisionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	if req.Accept == nil {
		h.writeError(w, r, apperrors.New(apperrors.CodeValidation, "accept is required"), nil)
		return
	}
	payment, err := h.svc.ProcessPayment(r.Context(), caller, id, *req.Accept)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}
