/**
 * @description
 * This file defines the `Repository` interface: the contract for all data
 * access the service needs. The application layer depends only on this
 * interface, which keeps the reconciliation logic testable against in-memory
 * fakes and the PostgreSQL implementation swappable.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/everestfin1/samanaffa-backend/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.UserAccount, error)
	FindAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.UserAccount, error)

	// Intent methods
	CreateIntent(ctx context.Context, intent *domain.TransactionIntent) error
	FindIntentByID(ctx context.Context, intentID uuid.UUID) (*domain.TransactionIntent, error)
	FindIntentByReference(ctx context.Context, referenceNumber string) (*domain.TransactionIntent, error)
	FindIntentByProviderTransactionID(ctx context.Context, providerTransactionID string) (*domain.TransactionIntent, error)
	ListIntentsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransactionIntent, error)

	// BindProviderTransactionID moves a pending intent to processing and binds
	// the provider's transaction id under the per-intent row lock. Re-binding
	// the same id is a no-op; an id already held by a different intent fails
	// with ErrDuplicateProviderReference.
	BindProviderTransactionID(ctx context.Context, intentID uuid.UUID, providerTransactionID string) (*domain.TransactionIntent, error)

	// CancelIntent moves a pending or processing intent to cancelled under the
	// per-intent row lock, recording who asked in the admin notes. Terminal
	// intents fail with ErrInvalidStateTransition.
	CancelIntent(ctx context.Context, intentID uuid.UUID, note string) (*domain.TransactionIntent, error)

	UpdateAdminNotes(ctx context.Context, intentID uuid.UUID, notes string) error

	// Callback log methods. The log is append-only: there is deliberately no
	// update or delete.
	AppendCallbackLog(ctx context.Context, entry *domain.PaymentCallbackLog) error
	ListCallbackLogsByIntentID(ctx context.Context, intentID uuid.UUID) ([]domain.PaymentCallbackLog, error)

	// ApplyCallbackAtomic executes the reconciliation critical section: lock
	// the intent row, evaluate the transition decision, and commit the state
	// write plus (for completions) the balance mutation in one transaction.
	ApplyCallbackAtomic(ctx context.Context, params ApplyCallbackParams) (*ReconcileResult, error)
}

// ApplyCallbackParams carries one provider notification into the critical
// section. TargetStatus is empty when the provider status was not recognized;
// the store then records the callback metadata without evaluating a
// transition.
type ApplyCallbackParams struct {
	IntentID       uuid.UUID
	TargetStatus   domain.IntentStatus
	ProviderStatus string
	RawPayload     []byte
	ReceivedAt     time.Time
}

// ReconcileResult reports what the critical section decided and committed.
type ReconcileResult struct {
	Intent            *domain.TransactionIntent
	Decision          domain.TransitionDecision
	TransitionApplied bool
	BalanceMutated    bool
}
