/**
 * @description
 * This file implements the callback reconciler: the single entry point through
 * which every inbound payment-provider notification flows. Deliveries arrive
 * asynchronously, out of order, and duplicated; the reconciler guarantees each
 * intent converges to exactly one terminal outcome with at most one balance
 * mutation, however many times the provider calls back.
 *
 * The flow per delivery:
 *  1. Resolve the intent by provider transaction id, falling back to the
 *     reference number.
 *  2. Append an immutable audit log row. This happens for every delivery,
 *     matched or not, before any reconciliation outcome is known.
 *  3. Map the provider status; unrecognized statuses are stored verbatim on
 *     the intent without a transition.
 *  4. Hand the transition to the store's atomic critical section.
 *  5. Publish a lifecycle event when a transition was actually applied.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/everestfin1/samanaffa-backend/internal/domain"
	"github.com/everestfin1/samanaffa-backend/internal/refgen"
	"github.com/everestfin1/samanaffa-backend/internal/store"
)

// Reconciler applies provider callbacks to transaction intents.
type Reconciler struct {
	service *Service
	repo    store.Repository
}

// NewReconciler creates a reconciler sharing the service's repository and
// event publisher.
func NewReconciler(service *Service) *Reconciler {
	return &Reconciler{service: service, repo: service.repo}
}

// IngestResult reports what one delivery did.
type IngestResult struct {
	Intent            *domain.TransactionIntent
	Decision          domain.TransitionDecision
	TransitionApplied bool
	BalanceMutated    bool
}

// Ingest processes one decoded provider callback. rawPayload is the exact
// request body as received, stored verbatim in the audit log.
//
// The error return classifies the delivery for the webhook handler; the audit
// log row has already been written by the time any error is returned, so the
// handler acknowledges the provider regardless.
func (r *Reconciler) Ingest(ctx context.Context, event domain.ProviderCallbackEvent, rawPayload []byte) (*IngestResult, error) {
	start := r.service.now()

	// The provider's own timestamp is the ordering clock: it is what the
	// metadata guard compares when deliveries arrive out of order. Server
	// time is only a fallback for payloads that omit it.
	receivedAt := event.Timestamp.UTC()
	if event.Timestamp.IsZero() {
		receivedAt = start.UTC()
	}

	intent, err := r.resolveIntent(ctx, event)
	if err != nil {
		// Storage hiccup on the lookup, not a missing intent. Nothing is
		// recorded yet; the provider must redeliver.
		log.Printf("level=error component=reconciler msg=\"intent lookup failed; delivery must be retried\" provider_tx_id=%s reference=%s err=%v",
			event.ProviderTransactionID, event.ReferenceNumber, err)
		return nil, err
	}

	var intentID *uuid.UUID
	if intent != nil {
		intentID = &intent.ID
	}
	logEntry := &domain.PaymentCallbackLog{
		ID:             uuid.New(),
		IntentID:       intentID,
		ProviderStatus: event.Status,
		RawPayload:     rawPayload,
		IdempotencyKey: refgen.IdempotencyKey(event.ProviderTransactionID, event.Status, rawPayload),
		ReceivedAt:     receivedAt,
	}
	if event.ProviderTransactionID != "" {
		logEntry.ProviderTransactionID = &event.ProviderTransactionID
	}
	if event.ReferenceNumber != "" {
		logEntry.ReferenceNumber = &event.ReferenceNumber
	}
	if err := r.repo.AppendCallbackLog(ctx, logEntry); err != nil {
		// The audit row is the durability guarantee behind our 200 to the
		// provider. If it cannot be written the delivery must be retried.
		log.Printf("level=error component=reconciler msg=\"callback log append failed\" provider_tx_id=%s err=%v", event.ProviderTransactionID, err)
		return nil, err
	}

	if intent == nil {
		r.observe(start, "unknown")
		log.Printf("level=warn component=reconciler msg=\"callback matches no intent\" provider_tx_id=%s reference=%s status=%s",
			event.ProviderTransactionID, event.ReferenceNumber, event.Status)
		return nil, ErrUnknownTransaction
	}

	targetStatus, recognized := domain.MapProviderStatus(event.Status)
	if !recognized {
		// Record the raw status on the intent for operators, no transition.
		if _, err := r.repo.ApplyCallbackAtomic(ctx, store.ApplyCallbackParams{
			IntentID:       intent.ID,
			ProviderStatus: event.Status,
			RawPayload:     rawPayload,
			ReceivedAt:     receivedAt,
		}); err != nil {
			return nil, err
		}
		r.observe(start, "unrecognized")
		log.Printf("level=warn component=reconciler msg=\"unrecognized provider status\" intent_id=%s provider_status=%q", intent.ID, event.Status)
		return &IngestResult{Intent: intent, Decision: domain.DecisionStale}, ErrUnrecognizedProviderStatus
	}

	result, err := r.repo.ApplyCallbackAtomic(ctx, store.ApplyCallbackParams{
		IntentID:       intent.ID,
		TargetStatus:   targetStatus,
		ProviderStatus: event.Status,
		RawPayload:     rawPayload,
		ReceivedAt:     receivedAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientFunds):
			// The settlement re-check failed: the intent was moved to failed
			// inside the same transaction, no money moved.
			r.observe(start, "insufficient_funds")
			r.service.publishEvent(ctx, "intent.status.failed", result.Intent)
			log.Printf("level=warn component=reconciler msg=\"withdrawal failed settlement balance check\" intent_id=%s amount=%s",
				result.Intent.ID, result.Intent.Amount)
			return toIngestResult(result), err
		case errors.Is(err, store.ErrConflictingCallback):
			r.observe(start, "conflict")
			log.Printf("level=error component=reconciler msg=\"conflicting terminal callback; intent untouched\" intent_id=%s current=%s target=%s provider_status=%s",
				result.Intent.ID, result.Intent.Status, targetStatus, event.Status)
			return toIngestResult(result), err
		default:
			r.observe(start, "error")
			return nil, err
		}
	}

	switch result.Decision {
	case domain.DecisionApply:
		r.observe(start, "applied")
		if result.BalanceMutated {
			r.service.metrics.BalanceMutated(string(result.Intent.IntentType))
		}
		r.service.publishEvent(ctx, "intent.status."+string(result.Intent.Status), result.Intent)
		log.Printf("level=info component=reconciler msg=\"transition applied\" intent_id=%s status=%s balance_mutated=%t",
			result.Intent.ID, result.Intent.Status, result.BalanceMutated)
	case domain.DecisionDuplicate:
		r.observe(start, "duplicate")
		log.Printf("level=info component=reconciler msg=\"duplicate callback ignored\" intent_id=%s status=%s", result.Intent.ID, result.Intent.Status)
	case domain.DecisionStale:
		r.observe(start, "stale")
		log.Printf("level=info component=reconciler msg=\"stale callback ignored\" intent_id=%s status=%s target=%s",
			result.Intent.ID, result.Intent.Status, targetStatus)
	}
	return toIngestResult(result), nil
}

// resolveIntent finds the intent a callback refers to: provider transaction id
// first, reference number second. A (nil, nil) return means neither identifier
// matched; any other error is an infrastructure failure the caller must
// surface so the delivery gets retried.
func (r *Reconciler) resolveIntent(ctx context.Context, event domain.ProviderCallbackEvent) (*domain.TransactionIntent, error) {
	if event.ProviderTransactionID != "" {
		intent, err := r.repo.FindIntentByProviderTransactionID(ctx, event.ProviderTransactionID)
		if err == nil {
			return intent, nil
		}
		if !errors.Is(err, store.ErrIntentNotFound) {
			return nil, err
		}
	}
	if event.ReferenceNumber != "" {
		intent, err := r.repo.FindIntentByReference(ctx, event.ReferenceNumber)
		if err == nil {
			return intent, nil
		}
		if !errors.Is(err, store.ErrIntentNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (r *Reconciler) observe(start time.Time, outcome string) {
	r.service.metrics.CallbackProcessed(outcome, r.service.now().Sub(start))
}

func toIngestResult(result *store.ReconcileResult) *IngestResult {
	if result == nil {
		return nil
	}
	return &IngestResult{
		Intent:            result.Intent,
		Decision:          result.Decision,
		TransitionApplied: result.TransitionApplied,
		BalanceMutated:    result.BalanceMutated,
	}
}
