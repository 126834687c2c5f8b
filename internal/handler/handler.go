package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/middleware"
	"github.com/Dan9191/microfin/internal/service"
)

// RateProvider reports the interest rate offered for new microcredits.
type RateProvider interface {
	GetKeyRate(ctx context.Context) (float64, error)
}

type Handler struct {
	svc   *service.Service
	rates RateProvider
	log   *logrus.Logger
}

func NewHandler(svc *service.Service, rates RateProvider, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, rates: rates, log: log}
}

type errorResponse struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
	Payload any            `json:"payload,omitempty"`
}

type decisionRequest struct {
	Accept *bool `json:"accept"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps an engine error to its HTTP status. Unclassified errors are hidden
// behind the internal error message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, payload any) {
	code := apperrors.CodeOf(err)
	meta := apperrors.MetadataFor(code)
	message := meta.PublicMessage
	if typed := apperrors.As(err); typed != nil && code != apperrors.CodeInternal {
		message = typed.Message()
	}
	entry := h.log.WithError(err).WithFields(logrus.Fields{
		"request_id": middleware.RequestIDFromContext(r.Context()),
		"code":       code,
	})
	if meta.HTTPStatus >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}
	writeJSON(w, meta.HTTPStatus, errorResponse{Code: code, Message: message, Payload: payload})
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, err, "invalid request body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Newf(apperrors.CodeValidation, "invalid %s", name)
	}
	return id, nil
}

// caller resolves the authenticated user's account id.
func (h *Handler) caller(r *http.Request) (int64, error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return 0, apperrors.New(apperrors.CodeIdentityMismatch, "no authenticated user")
	}
	account, err := h.svc.ResolveAccount(r.Context(), userID)
	if err != nil {
		return 0, err
	}
	return account.ID, nil
}

func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "expiration_date must be YYYY-MM-DD")
	}
	return &t, nil
}

// KeyRate returns the current interest rate for new microcredits
func (h *Handler) KeyRate(w http.ResponseWriter, r *http.Request) {
	if h.rates == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Code: apperrors.CodeInternal, Message: "key rate source not configured"})
		return
	}
	rate, err := h.rates.GetKeyRate(r.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to get key rate")
		writeJSON(w, http.StatusBadGateway, errorResponse{Code: apperrors.CodeInternal, Message: "key rate unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"key_rate": rate})
}
