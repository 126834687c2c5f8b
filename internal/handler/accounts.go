package handler

import (
	"net/http"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/middleware"
)

// CreateAccount opens an account for the authenticated user
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.New(apperrors.CodeIdentityMismatch, "no authenticated user"), nil)
		return
	}
	if _, err := h.svc.ResolveAccount(r.Context(), userID); err == nil {
		h.writeError(w, r, apperrors.New(apperrors.CodeInvalidState, "user already has an account"), nil)
		return
	} else if !apperrors.Is(err, apperrors.CodeNotFound) {
		h.writeError(w, r, err, nil)
		return
	}
	account, err := h.svc.CreateAccount(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// GetAccount returns the caller's account
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	account, err := h.svc.GetAccount(r.Context(), caller, caller)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Deposit credits the caller's account
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	account, err := h.svc.Deposit(r.Context(), caller, caller, req.Amount)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// DisableAccount disables the caller's account
func (h *Handler) DisableAccount(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	account, err := h.svc.DisableAccount(r.Context(), caller, caller)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// ListTransactions returns the caller's ledger entries
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	entries, err := h.svc.ListTransactions(r.Context(), caller, caller)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
