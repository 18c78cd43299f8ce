/**
 * @description
 * This file implements the transaction intent service: the application-layer
 * orchestration for creating intents, forwarding them to the payment provider,
 * cancelling them, and answering queries. The reconciliation of provider
 * callbacks lives in reconciler.go; this file covers everything the user and
 * the back office initiate.
 *
 * @dependencies
 * - internal/store: The repository interface and its sentinel errors.
 * - internal/domain: Domain models and the intent state machine.
 * - internal/refgen: Reference number generation.
 * - pkg/intouchclient: The payment aggregator client.
 * - pkg/rabbitmq: Best-effort lifecycle event publishing.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/everestfin1/samanaffa-backend/internal/domain"
	"github.com/everestfin1/samanaffa-backend/internal/metrics"
	"github.com/everestfin1/samanaffa-backend/internal/refgen"
	"github.com/everestfin1/samanaffa-backend/internal/store"
	"github.com/everestfin1/samanaffa-backend/pkg/intouchclient"
	"github.com/everestfin1/samanaffa-backend/pkg/rabbitmq"
)

// EventsExchange is the topic exchange all intent lifecycle events go to.
const EventsExchange = "samanaffa.events"

// How many times a reference collision is retried before giving up. With an
// 8-char random suffix a single retry is already overkill.
const refRetries = 3

// PaymentInitiator is the slice of the Intouch client the service needs.
type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, params intouchclient.PaymentParams) (*intouchclient.PaymentResponse, error)
}

// Service orchestrates the transaction intent lifecycle.
type Service struct {
	repo     store.Repository
	payments PaymentInitiator
	producer rabbitmq.Publisher
	limiter  RateLimiter
	metrics  *metrics.Metrics
	now      func() time.Time

	// Per-user intent creation budget, enforced via the rate limiter.
	createLimit  int64
	createWindow time.Duration
}

// NewService creates the intent service. payments, producer, limiter and m may
// be nil; the corresponding behavior (provider forwarding, event publishing,
// rate limiting, metrics) is then skipped.
func NewService(repo store.Repository, payments PaymentInitiator, producer rabbitmq.Publisher, limiter RateLimiter, m *metrics.Metrics, createLimit int64, createWindow time.Duration) *Service {
	return &Service{
		repo:         repo,
		payments:     payments,
		producer:     producer,
		limiter:      limiter,
		metrics:      m,
		now:          time.Now,
		createLimit:  createLimit,
		createWindow: createWindow,
	}
}

// CreateIntentParams carries one intent creation request, already
// authenticated: UserID comes from the token, never the body.
type CreateIntentParams struct {
	UserID               uuid.UUID
	AccountID            uuid.UUID
	IntentType           domain.IntentType
	Amount               decimal.Decimal
	PaymentMethod        string
	InvestmentTranche    *string
	InvestmentTermMonths *int
}

// CreateIntent validates the request, persists a pending intent with a fresh
// reference number, and forwards it to the payment provider. The provider call
// is best-effort: if it fails the intent stays pending and the client may
// retry submission later; money only ever moves on a completion callback.
func (s *Service) CreateIntent(ctx context.Context, params CreateIntentParams) (*domain.TransactionIntent, error) {
	if s.limiter != nil {
		if _, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "intent_create", params.UserID.String(), s.createLimit, s.createWindow); err != nil {
			if errors.Is(err, ErrRateLimited) {
				log.Printf("level=warn component=intent_service msg=\"intent creation rate limited\" user_id=%s retry_after=%s", params.UserID, retryAfter)
				return nil, err
			}
			// Limiter backend down: fail open, creation is still gated by
			// validation and the provider.
			log.Printf("level=warn component=intent_service msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		}
	}

	if !params.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !domain.ValidIntentType(params.IntentType) {
		return nil, ErrInvalidIntentType
	}
	if !domain.ValidPaymentMethod(params.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}

	account, err := s.repo.FindAccountByID(ctx, params.AccountID)
	if err != nil {
		return nil, err
	}
	// Ownership is checked here, not in the handler: an account id belonging
	// to someone else is indistinguishable from a nonexistent one.
	if account.UserID != params.UserID {
		return nil, store.ErrAccountNotFound
	}
	if err := checkIntentAccountFit(params.IntentType, account.AccountType); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	switch params.IntentType {
	case domain.IntentWithdrawal:
		if err := ReserveForWithdrawal(account, params.Amount, now); err != nil {
			return nil, err
		}
	default:
		if err := ReserveForDeposit(account, params.IntentType); err != nil {
			return nil, err
		}
	}

	intent := &domain.TransactionIntent{
		ID:                   uuid.New(),
		UserID:               params.UserID,
		AccountID:            account.ID,
		AccountType:          account.AccountType,
		IntentType:           params.IntentType,
		Amount:               params.Amount,
		PaymentMethod:        params.PaymentMethod,
		InvestmentTranche:    params.InvestmentTranche,
		InvestmentTermMonths: params.InvestmentTermMonths,
		Status:               domain.StatusPending,
	}

	for attempt := 0; ; attempt++ {
		ref, refErr := refgen.NewReferenceNumber(account.AccountType, now)
		if refErr != nil {
			return nil, refErr
		}
		intent.ReferenceNumber = ref
		err = s.repo.CreateIntent(ctx, intent)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrReferenceCollision) || attempt >= refRetries-1 {
			return nil, err
		}
		log.Printf("level=warn component=intent_service msg=\"reference collision; regenerating\" reference=%s attempt=%d", ref, attempt+1)
	}

	s.metrics.IntentCreated(string(intent.IntentType))
	s.publishEvent(ctx, "intent.created", intent)
	log.Printf("level=info component=intent_service msg=\"intent created\" intent_id=%s reference=%s type=%s amount=%s",
		intent.ID, intent.ReferenceNumber, intent.IntentType, intent.Amount)

	if s.payments != nil {
		submitted, subErr := s.submitToProvider(ctx, intent)
		if subErr != nil {
			// Leave the intent pending; a later submission or an unsolicited
			// callback can still move it forward.
			log.Printf("level=warn component=intent_service msg=\"provider submission failed; intent stays pending\" intent_id=%s err=%v", intent.ID, subErr)
			return intent, nil
		}
		return submitted, nil
	}
	return intent, nil
}

// checkIntentAccountFit rejects intent types the product line does not offer:
// investments need an APE account, deposits a savings one. Withdrawals work on
// both.
func checkIntentAccountFit(intentType domain.IntentType, accountType domain.AccountType) error {
	switch intentType {
	case domain.IntentInvestment:
		if accountType != domain.AccountInvestment {
			return ErrIntentAccountMismatch
		}
	case domain.IntentDeposit:
		if accountType != domain.AccountSavings {
			return ErrIntentAccountMismatch
		}
	}
	return nil
}

func (s *Service) submitToProvider(ctx context.Context, intent *domain.TransactionIntent) (*domain.TransactionIntent, error) {
	direction := "collection"
	if intent.IntentType == domain.IntentWithdrawal {
		direction = "payout"
	}
	resp, err := s.payments.InitiatePayment(ctx, intouchclient.PaymentParams{
		ReferenceNumber: intent.ReferenceNumber,
		Amount:          intent.Amount.String(),
		PaymentMethod:   intent.PaymentMethod,
		Direction:       direction,
		CustomerID:      intent.UserID.String(),
	})
	if err != nil {
		return nil, err
	}
	return s.MarkSubmitted(ctx, intent.ID, resp.TransactionID)
}

// MarkSubmitted binds the provider's transaction id to a pending intent and
// moves it to processing. Re-binding the same id is idempotent.
func (s *Service) MarkSubmitted(ctx context.Context, intentID uuid.UUID, providerTransactionID string) (*domain.TransactionIntent, error) {
	intent, err := s.repo.BindProviderTransactionID(ctx, intentID, providerTransactionID)
	if err != nil {
		return nil, err
	}
	if intent.Status == domain.StatusProcessing {
		s.publishEvent(ctx, "intent.status.processing", intent)
	}
	return intent, nil
}

// CancelIntent cancels a non-terminal intent identified by its reference
// number. userID restricts the lookup to the caller's own intents; admin
// callers pass nil. requestedBy lands in the admin notes audit trail.
func (s *Service) CancelIntent(ctx context.Context, referenceNumber, requestedBy string, userID *uuid.UUID) (*domain.TransactionIntent, error) {
	intent, err := s.repo.FindIntentByReference(ctx, referenceNumber)
	if err != nil {
		return nil, err
	}
	if userID != nil && intent.UserID != *userID {
		return nil, store.ErrIntentNotFound
	}
	note := "cancelled by " + requestedBy + " at " + s.now().UTC().Format(time.RFC3339)
	cancelled, err := s.repo.CancelIntent(ctx, intent.ID, note)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, "intent.status.cancelled", cancelled)
	log.Printf("level=info component=intent_service msg=\"intent cancelled\" intent_id=%s reference=%s requested_by=%s",
		cancelled.ID, cancelled.ReferenceNumber, requestedBy)
	return cancelled, nil
}

// GetIntentByReference looks an intent up by its reference number. userID
// restricts the lookup to the caller's own intents; admin callers pass nil.
func (s *Service) GetIntentByReference(ctx context.Context, referenceNumber string, userID *uuid.UUID) (*domain.TransactionIntent, error) {
	intent, err := s.repo.FindIntentByReference(ctx, referenceNumber)
	if err != nil {
		return nil, err
	}
	if userID != nil && intent.UserID != *userID {
		return nil, store.ErrIntentNotFound
	}
	return intent, nil
}

// GetIntentByProviderTransactionID is the admin lookup by the provider's id.
func (s *Service) GetIntentByProviderTransactionID(ctx context.Context, providerTransactionID string) (*domain.TransactionIntent, error) {
	return s.repo.FindIntentByProviderTransactionID(ctx, providerTransactionID)
}

// ListIntents pages through a user's intent history, newest first.
func (s *Service) ListIntents(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransactionIntent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListIntentsByUserID(ctx, userID, limit, offset)
}

// ListAccounts returns the caller's product accounts.
func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.UserAccount, error) {
	return s.repo.FindAccountsByUserID(ctx, userID)
}

// ListCallbackLogs returns the full audit trail for one intent, oldest first.
func (s *Service) ListCallbackLogs(ctx context.Context, referenceNumber string) ([]domain.PaymentCallbackLog, error) {
	intent, err := s.repo.FindIntentByReference(ctx, referenceNumber)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCallbackLogsByIntentID(ctx, intent.ID)
}

// AppendAdminNotes records a back-office annotation on an intent.
func (s *Service) AppendAdminNotes(ctx context.Context, referenceNumber, notes string) (*domain.TransactionIntent, error) {
	intent, err := s.repo.FindIntentByReference(ctx, referenceNumber)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAdminNotes(ctx, intent.ID, notes); err != nil {
		return nil, err
	}
	return s.repo.FindIntentByID(ctx, intent.ID)
}

func (s *Service) publishEvent(ctx context.Context, eventType string, intent *domain.TransactionIntent) {
	if s.producer == nil {
		return
	}
	event := domain.IntentEvent{
		EventType:       eventType,
		IntentID:        intent.ID,
		UserID:          intent.UserID,
		AccountID:       intent.AccountID,
		IntentType:      intent.IntentType,
		Status:          intent.Status,
		Amount:          intent.Amount,
		ReferenceNumber: intent.ReferenceNumber,
		OccurredAt:      s.now().UTC(),
	}
	if err := s.producer.Publish(ctx, EventsExchange, eventType, event); err != nil {
		log.Printf("level=warn component=intent_service msg=\"event publish failed\" event_type=%s intent_id=%s err=%v", eventType, intent.ID, err)
	}
}
