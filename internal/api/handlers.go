/**
 * @description
 * This file contains the HTTP handlers for the intent lifecycle endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer. The provider webhook lives in webhook.go.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/everestfin1/samanaffa-backend/internal/app"
	"github.com/everestfin1/samanaffa-backend/internal/domain"
	"github.com/everestfin1/samanaffa-backend/internal/store"
)

// IntentHandlers holds the application service that handlers will use.
type IntentHandlers struct {
	service *app.Service
}

// NewIntentHandlers creates a new instance of IntentHandlers.
func NewIntentHandlers(service *app.Service) *IntentHandlers {
	return &IntentHandlers{service: service}
}

type createIntentRequest struct {
	AccountID            string          `json:"account_id"`
	IntentType           string          `json:"intent_type"`
	Amount               decimal.Decimal `json:"amount"`
	PaymentMethod        string          `json:"payment_method"`
	InvestmentTranche    *string         `json:"investment_tranche,omitempty"`
	InvestmentTermMonths *int            `json:"investment_term_months,omitempty"`
}

// intentResponse mirrors the shape the web client expects: amounts as decimal
// strings, optional fields omitted when unset.
type intentResponse struct {
	ID                    string  `json:"id"`
	AccountID             string  `json:"account_id"`
	AccountType           string  `json:"account_type"`
	IntentType            string  `json:"intent_type"`
	Amount                string  `json:"amount"`
	PaymentMethod         string  `json:"payment_method"`
	Status                string  `json:"status"`
	ReferenceNumber       string  `json:"reference_number"`
	ProviderTransactionID *string `json:"provider_transaction_id,omitempty"`
	ProviderStatus        *string `json:"provider_status,omitempty"`
	FailureReason         *string `json:"failure_reason,omitempty"`
	InvestmentTranche     *string `json:"investment_tranche,omitempty"`
	InvestmentTermMonths  *int    `json:"investment_term_months,omitempty"`
	CreatedAt             string  `json:"created_at"`
	UpdatedAt             string  `json:"updated_at"`
}

func buildIntentResponse(intent *domain.TransactionIntent) intentResponse {
	return intentResponse{
		ID:                    intent.ID.String(),
		AccountID:             intent.AccountID.String(),
		AccountType:           string(intent.AccountType),
		IntentType:            string(intent.IntentType),
		Amount:                intent.Amount.String(),
		PaymentMethod:         intent.PaymentMethod,
		Status:                string(intent.Status),
		ReferenceNumber:       intent.ReferenceNumber,
		ProviderTransactionID: intent.ProviderTransactionID,
		ProviderStatus:        intent.ProviderStatus,
		FailureReason:         intent.FailureReason,
		InvestmentTranche:     intent.InvestmentTranche,
		InvestmentTermMonths:  intent.InvestmentTermMonths,
		CreatedAt:             intent.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:             intent.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// CreateIntentHandler handles POST /intents.
func (h *IntentHandlers) CreateIntentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID format")
		return
	}

	intent, err := h.service.CreateIntent(r.Context(), app.CreateIntentParams{
		UserID:               userID,
		AccountID:            accountID,
		IntentType:           domain.IntentType(req.IntentType),
		Amount:               req.Amount,
		PaymentMethod:        req.PaymentMethod,
		InvestmentTranche:    req.InvestmentTranche,
		InvestmentTermMonths: req.InvestmentTermMonths,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, buildIntentResponse(intent))
}

// ListIntentsHandler handles GET /intents.
func (h *IntentHandlers) ListIntentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	intents, err := h.service.ListIntents(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	out := make([]intentResponse, 0, len(intents))
	for i := range intents {
		out = append(out, buildIntentResponse(&intents[i]))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"intents": out})
}

// GetIntentHandler handles GET /intents/{reference}.
func (h *IntentHandlers) GetIntentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	reference := chi.URLParam(r, "reference")
	intent, err := h.service.GetIntentByReference(r.Context(), reference, &userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildIntentResponse(intent))
}

// CancelIntentHandler handles POST /intents/{reference}/cancel.
func (h *IntentHandlers) CancelIntentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	reference := chi.URLParam(r, "reference")
	intent, err := h.service.CancelIntent(r.Context(), reference, "user:"+userID.String(), &userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildIntentResponse(intent))
}

// ListAccountsHandler handles GET /accounts.
func (h *IntentHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	accounts, err := h.service.ListAccounts(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// AdminGetIntentHandler handles GET /admin/intents/{reference}: no ownership
// restriction, includes admin notes.
func (h *IntentHandlers) AdminGetIntentHandler(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	intent, err := h.service.GetIntentByReference(r.Context(), reference, nil)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, intent)
}

// AdminGetIntentByProviderIDHandler handles GET /admin/intents/by-provider/{providerTxID}.
func (h *IntentHandlers) AdminGetIntentByProviderIDHandler(w http.ResponseWriter, r *http.Request) {
	providerTxID := chi.URLParam(r, "providerTxID")
	intent, err := h.service.GetIntentByProviderTransactionID(r.Context(), providerTxID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, intent)
}

// AdminListCallbackLogsHandler handles GET /admin/intents/{reference}/callbacks.
func (h *IntentHandlers) AdminListCallbackLogsHandler(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	logs, err := h.service.ListCallbackLogs(r.Context(), reference)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"callbacks": logs})
}

// AdminCancelIntentHandler handles POST /admin/intents/{reference}/cancel.
func (h *IntentHandlers) AdminCancelIntentHandler(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	var req struct {
		RequestedBy string `json:"requested_by"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.RequestedBy == "" {
		req.RequestedBy = "admin"
	}
	intent, err := h.service.CancelIntent(r.Context(), reference, req.RequestedBy, nil)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, intent)
}

// AdminUpdateNotesHandler handles PUT /admin/intents/{reference}/notes.
func (h *IntentHandlers) AdminUpdateNotesHandler(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	intent, err := h.service.AppendAdminNotes(r.Context(), reference, req.Notes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, intent)
}

// writeServiceError maps service and store sentinel errors onto HTTP statuses.
func (h *IntentHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidIntentType),
		errors.Is(err, app.ErrInvalidPaymentMethod),
		errors.Is(err, app.ErrIntentAccountMismatch):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrAccountNotFound), errors.Is(err, store.ErrIntentNotFound):
		h.writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, app.ErrAccountLocked):
		h.writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, app.ErrAccountNotEligible),
		errors.Is(err, app.ErrInsufficientFunds):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrInvalidStateTransition),
		errors.Is(err, store.ErrDuplicateProviderReference):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *IntentHandlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *IntentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
