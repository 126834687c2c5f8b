package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/service"
)

type createDonationRequest struct {
	BeneficiaryAccountID int64           `json:"beneficiary_account_id"`
	Amount               decimal.Decimal `json:"amount"`
}

// CreateDonation reserves a donation from the caller
func (h *Handler) CreateDonation(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	var req createDonationRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	donation, err := h.svc.CreateDonation(r.Context(), caller, service.DonationRequest{
		DonorAccount:       caller,
		BeneficiaryAccount: req.BeneficiaryAccountID,
		Amount:             req.Amount,
	})
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, donation)
}

// GetDonation returns a donation the caller takes part in
func (h *Handler) GetDonation(w http.ResponseWriter, r *http.Request) {
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
	donation, err := h.svc.GetDonation(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, donation)
}

// ProcessDonation accepts or denies a donation addressed to the caller
func (h *Handler) ProcessDonation(w http.ResponseWriter, r *http.Request) {
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
	donation, err := h.svc.ProcessDonation(r.Context(), caller, id, *req.Accept)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, donation)
}
