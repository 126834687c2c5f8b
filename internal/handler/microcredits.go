package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/microfin/internal/service"
)

type createMicrocreditRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	ExpirationDate string          `json:"expiration_date"`
	Installments   int             `json:"installments"`
	Description    string          `json:"description"`
}

// CreateMicrocredit opens a microcredit for the caller
func (h *Handler) CreateMicrocredit(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	var req createMicrocreditRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	expires, err := parseDate(req.ExpirationDate)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	mc, err := h.svc.CreateMicrocredit(r.Context(), caller, service.MicrocreditRequest{
		BorrowerAccount: caller,
		Amount:          req.Amount,
		ExpirationDate:  expires,
		Installments:    req.Installments,
		Description:     req.Description,
	})
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, mc)
}

// ListMicrocredits returns microcredits open for contributions
func (h *Handler) ListMicrocredits(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListOpenMicrocredits(r.Context())
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetMicrocredit returns one microcredit
func (h *Handler) GetMicrocredit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	mc, err := h.svc.GetMicrocredit(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, mc)
}

// ListContributions returns the contributions of a microcredit
func (h *Handler) ListContributions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	list, err := h.svc.ListContributions(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Contribute pledges funds from the caller to a microcredit
func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
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
	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	contribution, err := h.svc.CreateContribution(r.Context(), caller, service.ContributionRequest{
		LenderAccount: caller,
		MicrocreditID: id,
		Amount:        req.Amount,
	})
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, contribution)
}
