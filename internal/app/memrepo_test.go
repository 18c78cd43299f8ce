package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/everestfin1/samanaffa-backend/internal/domain"
	"github.com/everestfin1/samanaffa-backend/internal/store"
)

// memRepo is an in-memory store.Repository. It reproduces the reconciliation
// semantics of the PostgreSQL implementation, with a single mutex standing in
// for the per-intent row lock, so the service and reconciler can be exercised
// without a database.
type memRepo struct {
	mu sync.Mutex

	accounts map[uuid.UUID]*domain.UserAccount
	intents  map[uuid.UUID]*domain.TransactionIntent
	logs     []domain.PaymentCallbackLog

	failCreateWithCollision int
	lookupErr               error
}

func newMemRepo() *memRepo {
	return &memRepo{
		accounts: make(map[uuid.UUID]*domain.UserAccount),
		intents:  make(map[uuid.UUID]*domain.TransactionIntent),
	}
}

func (m *memRepo) addAccount(account domain.UserAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := account
	m.accounts[account.ID] = &copied
}

func (m *memRepo) balanceOf(accountID uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[accountID].Balance
}

func copyIntent(intent *domain.TransactionIntent) *domain.TransactionIntent {
	copied := *intent
	return &copied
}

func (m *memRepo) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *memRepo) FindAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UserAccount
	for _, account := range m.accounts {
		if account.UserID == userID {
			out = append(out, *account)
		}
	}
	return out, nil
}

func (m *memRepo) CreateIntent(ctx context.Context, intent *domain.TransactionIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateWithCollision > 0 {
		m.failCreateWithCollision--
		return store.ErrReferenceCollision
	}
	for _, existing := range m.intents {
		if existing.ReferenceNumber == intent.ReferenceNumber {
			return store.ErrReferenceCollision
		}
	}
	now := time.Now().UTC()
	intent.CreatedAt = now
	intent.UpdatedAt = now
	m.intents[intent.ID] = copyIntent(intent)
	return nil
}

func (m *memRepo) FindIntentByID(ctx context.Context, intentID uuid.UUID) (*domain.TransactionIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, store.ErrIntentNotFound
	}
	return copyIntent(intent), nil
}

func (m *memRepo) FindIntentByReference(ctx context.Context, referenceNumber string) (*domain.TransactionIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	for _, intent := range m.intents {
		if intent.ReferenceNumber == referenceNumber {
			return copyIntent(intent), nil
		}
	}
	return nil, store.ErrIntentNotFound
}

func (m *memRepo) FindIntentByProviderTransactionID(ctx context.Context, providerTransactionID string) (*domain.TransactionIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	for _, intent := range m.intents {
		if intent.ProviderTransactionID != nil && *intent.ProviderTransactionID == providerTransactionID {
			return copyIntent(intent), nil
		}
	}
	return nil, store.ErrIntentNotFound
}

func (m *memRepo) ListIntentsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransactionIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TransactionIntent
	for _, intent := range m.intents {
		if intent.UserID == userID {
			out = append(out, *intent)
		}
	}
	return out, nil
}

func (m *memRepo) BindProviderTransactionID(ctx context.Context, intentID uuid.UUID, providerTransactionID string) (*domain.TransactionIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, store.ErrIntentNotFound
	}
	if intent.ProviderTransactionID != nil && *intent.ProviderTransactionID == providerTransactionID {
		return copyIntent(intent), nil
	}
	for _, other := range m.intents {
		if other.ID != intentID && other.ProviderTransactionID != nil && *other.ProviderTransactionID == providerTransactionID {
			return nil, store.ErrDuplicateProviderReference
		}
	}
	if intent.Status != domain.StatusPending {
		return nil, store.ErrInvalidStateTransition
	}
	intent.ProviderTransactionID = &providerTransactionID
	intent.Status = domain.StatusProcessing
	intent.UpdatedAt = time.Now().UTC()
	return copyIntent(intent), nil
}

func (m *memRepo) CancelIntent(ctx context.Context, intentID uuid.UUID, note string) (*domain.TransactionIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, store.ErrIntentNotFound
	}
	if intent.Status.Terminal() {
		return nil, store.ErrInvalidStateTransition
	}
	intent.Status = domain.StatusCancelled
	if intent.AdminNotes != nil && *intent.AdminNotes != "" {
		joined := *intent.AdminNotes + "\n" + note
		intent.AdminNotes = &joined
	} else {
		intent.AdminNotes = &note
	}
	intent.UpdatedAt = time.Now().UTC()
	return copyIntent(intent), nil
}

func (m *memRepo) UpdateAdminNotes(ctx context.Context, intentID uuid.UUID, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[intentID]
	if !ok {
		return store.ErrIntentNotFound
	}
	intent.AdminNotes = &notes
	return nil
}

func (m *memRepo) AppendCallbackLog(ctx context.Context, entry *domain.PaymentCallbackLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memRepo) ListCallbackLogsByIntentID(ctx context.Context, intentID uuid.UUID) ([]domain.PaymentCallbackLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PaymentCallbackLog
	for _, entry := range m.logs {
		if entry.IntentID != nil && *entry.IntentID == intentID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memRepo) ApplyCallbackAtomic(ctx context.Context, params store.ApplyCallbackParams) (*store.ReconcileResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[params.IntentID]
	if !ok {
		return nil, store.ErrIntentNotFound
	}

	recordMetadata := intent.LastCallbackAt == nil || !params.ReceivedAt.Before(*intent.LastCallbackAt)
	applyMetadata := func() {
		if !recordMetadata {
			return
		}
		status := strings.TrimSpace(params.ProviderStatus)
		receivedAt := params.ReceivedAt
		intent.ProviderStatus = &status
		intent.LastCallbackAt = &receivedAt
		intent.LastCallbackPayload = params.RawPayload
		intent.UpdatedAt = time.Now().UTC()
	}

	if params.TargetStatus == "" {
		applyMetadata()
		return &store.ReconcileResult{Intent: copyIntent(intent), Decision: domain.DecisionStale}, nil
	}

	decision := domain.DecideTransition(intent.Status, params.TargetStatus)
	result := &store.ReconcileResult{Decision: decision}

	switch decision {
	case domain.DecisionDuplicate, domain.DecisionStale:
		applyMetadata()
		result.Intent = copyIntent(intent)
		return result, nil
	case domain.DecisionConflict:
		applyMetadata()
		result.Intent = copyIntent(intent)
		return result, store.ErrConflictingCallback
	}

	if params.TargetStatus == domain.StatusCompleted {
		account := m.accounts[intent.AccountID]
		if intent.IntentType == domain.IntentWithdrawal {
			if account.Balance.LessThan(intent.Amount) {
				reason := "insufficient funds at settlement"
				intent.Status = domain.StatusFailed
				intent.FailureReason = &reason
				applyMetadata()
				result.Intent = copyIntent(intent)
				result.TransitionApplied = true
				return result, store.ErrInsufficientFunds
			}
			account.Balance = account.Balance.Sub(intent.Amount)
		} else {
			account.Balance = account.Balance.Add(intent.Amount)
		}
		result.BalanceMutated = true
	}

	if params.TargetStatus == domain.StatusFailed {
		reason := "provider reported " + strings.TrimSpace(params.ProviderStatus)
		intent.FailureReason = &reason
	}
	intent.Status = params.TargetStatus
	applyMetadata()
	result.Intent = copyIntent(intent)
	result.TransitionApplied = true
	return result, nil
}
