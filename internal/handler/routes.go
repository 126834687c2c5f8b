package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/microfin/internal/config"
	"github.com/Dan9191/microfin/internal/middleware"
)

// NewRouter wires the public and authenticated routes. metrics may be nil.
func NewRouter(h *Handler, cfg *config.Config, log *logrus.Logger, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Logging(log))

	// Public routes
	r.HandleFunc("/key-rate", h.KeyRate).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	// Protected routes
	auth := r.PathPrefix("/").Subrouter()
	auth.Use(middleware.AuthMiddleware(cfg, log))

	auth.HandleFunc("/accounts", h.CreateAccount).Methods(http.MethodPost)
	auth.HandleFunc("/accounts/me", h.GetAccount).Methods(http.MethodGet)
	auth.HandleFunc("/accounts/me/deposit", h.Deposit).Methods(http.MethodPost)
	auth.HandleFunc("/accounts/me/disable", h.DisableAccount).Methods(http.MethodPost)
	auth.HandleFunc("/accounts/me/transactions", h.ListTransactions).Methods(http.MethodGet)

	auth.HandleFunc("/payments", h.CreatePayment).Methods(http.MethodPost)
	auth.HandleFunc("/payments/code/{code}", h.ResolvePaymentCode).Methods(http.MethodGet)
	auth.HandleFunc("/payments/{id:[0-9]+}", h.GetPayment).Methods(http.MethodGet)
	auth.HandleFunc("/payments/{id:[0-9]+}/process", h.ProcessPayment).Methods(http.MethodPost)

	auth.HandleFunc("/microcredits", h.CreateMicrocredit).Methods(http.MethodPost)
	auth.HandleFunc("/microcredits", h.ListMicrocredits).Methods(http.MethodGet)
	auth.HandleFunc("/microcredits/{id:[0-9]+}", h.GetMicrocredit).Methods(http.MethodGet)
	auth.HandleFunc("/microcredits/{id:[0-9]+}/contributions", h.ListContributions).Methods(http.MethodGet)
	auth.HandleFunc("/microcredits/{id:[0-9]+}/contributions", h.Contribute).Methods(http.MethodPost)

	auth.HandleFunc("/donations", h.CreateDonation).Methods(http.MethodPost)
	auth.HandleFunc("/donations/{id:[0-9]+}", h.GetDonation).Methods(http.MethodGet)
	auth.HandleFunc("/donations/{id:[0-9]+}/process", h.ProcessDonation).Methods(http.MethodPost)

	return r
}
