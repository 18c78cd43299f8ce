package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IntentEvent is the message published to RabbitMQ for the notification
// collaborator whenever an intent is created or changes state. Publishing is
// best-effort; it never gates the reconciliation commit.
type IntentEvent struct {
	EventType       string          `json:"event_type"` // intent.created, intent.status.completed, ...
	IntentID        uuid.UUID       `json:"intent_id"`
	UserID          uuid.UUID       `json:"user_id"`
	AccountID       uuid.UUID       `json:"account_id"`
	IntentType      IntentType      `json:"intent_type"`
	Status          IntentStatus    `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber string          `json:"reference_number"`
	OccurredAt      time.Time       `json:"occurred_at"`
}
