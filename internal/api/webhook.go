/**
 * @description
 * This file contains the handler for the inbound Intouch payment webhook.
 *
 * Key features:
 * - Security: Validates the HMAC signature of incoming webhooks to ensure authenticity.
 * - Durability: Acknowledges the provider with 200 only after the audit log
 *   row is durable; a failed append returns 500 so the provider retries.
 * - Idempotence: Duplicate, stale and conflicting deliveries are acknowledged
 *   with 200 just like applied ones; the provider must never retry a delivery
 *   we have already recorded.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/base64, encoding/hex: Signature validation.
 * - internal/app, internal/domain: Reconciliation and payload types.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/everestfin1/samanaffa-backend/internal/app"
	"github.com/everestfin1/samanaffa-backend/internal/domain"
	"github.com/everestfin1/samanaffa-backend/internal/metrics"
	"github.com/everestfin1/samanaffa-backend/internal/store"
)

const signatureHeader = "X-Intouch-Signature"

// Webhook bodies are small JSON documents; anything bigger is not Intouch.
const maxWebhookBody = 1 << 20

// WebhookHandler processes inbound payment provider notifications.
type WebhookHandler struct {
	reconciler *app.Reconciler
	metrics    *metrics.Metrics
	secret     string
}

// NewWebhookHandler creates a webhook handler. An empty secret disables
// signature validation; startup logs a warning in that case.
func NewWebhookHandler(reconciler *app.Reconciler, m *metrics.Metrics, secret string) *WebhookHandler {
	if secret == "" {
		log.Printf("level=warn component=webhook msg=\"webhook secret not set; signature validation disabled\"")
	}
	return &WebhookHandler{reconciler: reconciler, metrics: m, secret: secret}
}

// HandleIntouchWebhook handles POST /webhooks/intouch.
func (h *WebhookHandler) HandleIntouchWebhook(w http.ResponseWriter, r *http.Request) {
	// Read the body once: the same bytes feed signature validation, decoding,
	// and the verbatim audit log copy.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.metrics.WebhookRejected("body_read")
		http.Error(w, "Could not read request body", http.StatusBadRequest)
		return
	}

	if !h.isValidSignature(r.Header.Get(signatureHeader), body) {
		h.metrics.WebhookRejected("bad_signature")
		log.Printf("level=warn component=webhook msg=\"invalid webhook signature\" remote=%s", r.RemoteAddr)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event domain.ProviderCallbackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.metrics.WebhookRejected("bad_payload")
		log.Printf("level=warn component=webhook msg=\"malformed webhook payload\" err=%v", err)
		http.Error(w, "Malformed payload", http.StatusBadRequest)
		return
	}
	if event.ProviderTransactionID == "" && event.ReferenceNumber == "" {
		h.metrics.WebhookRejected("no_identifier")
		http.Error(w, "Payload carries no transaction identifier", http.StatusBadRequest)
		return
	}

	result, err := h.reconciler.Ingest(r.Context(), event, body)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrUnknownTransaction):
			// Audit row is written; acknowledge so the provider stops
			// retrying a callback we can never match.
			h.writeAck(w, "unmatched")
			return
		case errors.Is(err, app.ErrUnrecognizedProviderStatus):
			h.writeAck(w, "unrecognized_status")
			return
		case errors.Is(err, store.ErrConflictingCallback):
			h.writeAck(w, "conflict")
			return
		case errors.Is(err, store.ErrInsufficientFunds):
			// The intent was failed inside the same transaction; done.
			h.writeAck(w, "failed")
			return
		default:
			// Lookup, log append, or the critical section itself failed:
			// the delivery is not recorded, the provider must retry.
			log.Printf("level=error component=webhook msg=\"callback processing failed\" provider_tx_id=%s err=%v", event.ProviderTransactionID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	switch result.Decision {
	case domain.DecisionApply:
		h.writeAck(w, "applied")
	case domain.DecisionDuplicate:
		h.writeAck(w, "duplicate")
	default:
		h.writeAck(w, "ignored")
	}
}

func (h *WebhookHandler) writeAck(w http.ResponseWriter, outcome string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "received", "outcome": outcome})
}

// isValidSignature validates the HMAC-SHA256 signature of the webhook.
// Intouch sends the digest either hex or base64 encoded; both are accepted,
// compared in constant time.
func (h *WebhookHandler) isValidSignature(signatureHeader string, body []byte) bool {
	if h.secret == "" {
		return true
	}

	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		return false
	}
	// Tolerate a "sha256=" prefix.
	header = strings.TrimPrefix(header, "sha256=")

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	expectedHex := hex.EncodeToString(expected)
	expectedBase64 := base64.StdEncoding.EncodeToString(expected)

	if hmac.Equal([]byte(strings.ToLower(header)), []byte(expectedHex)) {
		return true
	}
	return hmac.Equal([]byte(header), []byte(expectedBase64))
}
