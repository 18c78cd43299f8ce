/**
 * @description
 * Payment-provider callback types: the immutable audit log row, the inbound
 * webhook payload, and the provider-status-to-domain-status mapping table.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentCallbackLog is one immutable record of a single inbound provider
// notification. Rows are append-only: one per delivery attempt, duplicates
// included. IntentID is nil when the callback matched no known intent; the
// row is still written so operators can reconcile it by hand.
type PaymentCallbackLog struct {
	ID                    uuid.UUID  `json:"id"`
	IntentID              *uuid.UUID `json:"intent_id,omitempty"`
	ProviderTransactionID *string    `json:"provider_transaction_id,omitempty"`
	ReferenceNumber       *string    `json:"reference_number,omitempty"`
	ProviderStatus        string     `json:"provider_status"`
	RawPayload            []byte     `json:"raw_payload"`
	IdempotencyKey        string     `json:"idempotency_key"`
	ReceivedAt            time.Time  `json:"received_at"`
}

// ProviderCallbackEvent is the decoded Intouch webhook payload. The provider
// identifies the payment either by its own transaction id or by the reference
// number we quoted when initiating it.
type ProviderCallbackEvent struct {
	ProviderTransactionID string    `json:"transaction_id"`
	ReferenceNumber       string    `json:"reference_number"`
	Status                string    `json:"status"`
	Amount                string    `json:"amount,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}

// MapProviderStatus translates a raw provider status string into the target
// domain state. The second return is false for statuses the table does not
// recognize; those are stored verbatim on the intent and never cause a
// transition. Adding a provider status means adding a case here.
func MapProviderStatus(providerStatus string) (IntentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(providerStatus)) {
	case "SUCCESS", "SUCCESSFUL", "COMPLETED":
		return StatusCompleted, true
	case "FAILED", "FAILURE", "DECLINED", "REJECTED":
		return StatusFailed, true
	case "PENDING", "PROCESSING", "INITIATED":
		return StatusProcessing, true
	default:
		return "", false
	}
}
