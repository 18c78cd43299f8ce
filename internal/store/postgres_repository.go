/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all SQL against the three durable tables
 * (`transaction_intents`, `payment_callback_logs`, `user_accounts`) and owns
 * the reconciliation critical section: a `SELECT ... FOR UPDATE` on the intent
 * row followed by the state write and, for completions, the balance mutation,
 * all in one transaction.
 *
 * @dependencies
 * - context, errors, fmt, strings, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: Domain models and the transition decision table.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everestfin1/samanaffa-backend/internal/domain"
)

var (
	ErrAccountNotFound            = errors.New("account not found")
	ErrIntentNotFound             = errors.New("transaction intent not found")
	ErrReferenceCollision         = errors.New("reference number already exists")
	ErrDuplicateProviderReference = errors.New("provider transaction id already bound to another intent")
	ErrInvalidStateTransition     = errors.New("invalid state transition")
	ErrConflictingCallback        = errors.New("callback conflicts with recorded terminal state")
	ErrInsufficientFunds          = errors.New("insufficient funds")
)

const intentColumns = `
	id, user_id, account_id, account_type, intent_type, amount, payment_method,
	investment_tranche, investment_term_months, status, reference_number,
	provider_transaction_id, provider_status, last_callback_at,
	last_callback_payload, failure_reason, admin_notes, created_at, updated_at`

// PostgresRepository is the pgx-backed implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*domain.TransactionIntent, error) {
	var intent domain.TransactionIntent
	err := row.Scan(
		&intent.ID, &intent.UserID, &intent.AccountID, &intent.AccountType,
		&intent.IntentType, &intent.Amount, &intent.PaymentMethod,
		&intent.InvestmentTranche, &intent.InvestmentTermMonths, &intent.Status,
		&intent.ReferenceNumber, &intent.ProviderTransactionID,
		&intent.ProviderStatus, &intent.LastCallbackAt,
		&intent.LastCallbackPayload, &intent.FailureReason, &intent.AdminNotes,
		&intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// FindAccountByID retrieves one product account.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.UserAccount, error) {
	query := `
		SELECT id, user_id, account_type, account_number, product_code, product_name,
		       interest_rate, lock_period_months, locked_until, allow_additional_deposits,
		       metadata, balance, status, created_at
		FROM user_accounts
		WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// FindAccountsByUserID lists all product accounts owned by a user.
func (r *PostgresRepository) FindAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.UserAccount, error) {
	query := `
		SELECT id, user_id, account_type, account_number, product_code, product_name,
		       interest_rate, lock_period_months, locked_until, allow_additional_deposits,
		       metadata, balance, status, created_at
		FROM user_accounts
		WHERE user_id = $1
		ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.UserAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

func scanAccount(row rowScanner) (*domain.UserAccount, error) {
	var account domain.UserAccount
	err := row.Scan(
		&account.ID, &account.UserID, &account.AccountType, &account.AccountNumber,
		&account.ProductCode, &account.ProductName, &account.InterestRate,
		&account.LockPeriodMonths, &account.LockedUntil,
		&account.AllowAdditionalDeposits, &account.Metadata, &account.Balance,
		&account.Status, &account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateIntent persists a new intent in pending state. A collision on the
// reference number surfaces as ErrReferenceCollision so the caller can
// regenerate and retry.
func (r *PostgresRepository) CreateIntent(ctx context.Context, intent *domain.TransactionIntent) error {
	query := `
		INSERT INTO transaction_intents (
			id, user_id, account_id, account_type, intent_type, amount,
			payment_method, investment_tranche, investment_term_months, status,
			reference_number, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		intent.ID, intent.UserID, intent.AccountID, intent.AccountType,
		intent.IntentType, intent.Amount, intent.PaymentMethod,
		intent.InvestmentTranche, intent.InvestmentTermMonths, intent.Status,
		intent.ReferenceNumber,
	).Scan(&intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "transaction_intents_reference_number_key") {
			return ErrReferenceCollision
		}
		return err
	}
	return nil
}

// FindIntentByID retrieves one intent by its opaque id.
func (r *PostgresRepository) FindIntentByID(ctx context.Context, intentID uuid.UUID) (*domain.TransactionIntent, error) {
	query := `SELECT` + intentColumns + ` FROM transaction_intents WHERE id = $1`
	intent, err := scanIntent(r.db.QueryRow(ctx, query, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return intent, nil
}

// FindIntentByReference retrieves one intent by its externally-quoted reference.
func (r *PostgresRepository) FindIntentByReference(ctx context.Context, referenceNumber string) (*domain.TransactionIntent, error) {
	query := `SELECT` + intentColumns + ` FROM transaction_intents WHERE reference_number = $1`
	intent, err := scanIntent(r.db.QueryRow(ctx, query, strings.TrimSpace(referenceNumber)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return intent, nil
}

// FindIntentByProviderTransactionID retrieves one intent by the provider's id.
func (r *PostgresRepository) FindIntentByProviderTransactionID(ctx context.Context, providerTransactionID string) (*domain.TransactionIntent, error) {
	query := `SELECT` + intentColumns + ` FROM transaction_intents WHERE provider_transaction_id = $1`
	intent, err := scanIntent(r.db.QueryRow(ctx, query, strings.TrimSpace(providerTransactionID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return intent, nil
}

// ListIntentsByUserID lists a user's intents, newest first.
func (r *PostgresRepository) ListIntentsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransactionIntent, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT` + intentColumns + `
		FROM transaction_intents
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []domain.TransactionIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *intent)
	}
	return intents, rows.Err()
}

// BindProviderTransactionID binds the provider's transaction id and moves the
// intent from pending to processing, all under the row lock.
func (r *PostgresRepository) BindProviderTransactionID(ctx context.Context, intentID uuid.UUID, providerTransactionID string) (*domain.TransactionIntent, error) {
	providerTransactionID = strings.TrimSpace(providerTransactionID)
	if providerTransactionID == "" {
		return nil, fmt.Errorf("provider transaction id is empty")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	intent, err := lockIntent(ctx, tx, intentID)
	if err != nil {
		return nil, err
	}

	if intent.ProviderTransactionID != nil {
		// Provider ids are immutable once set. Same id again is an idempotent
		// re-submission; a different one is a data anomaly.
		if *intent.ProviderTransactionID == providerTransactionID {
			return intent, tx.Commit(ctx)
		}
		return nil, ErrDuplicateProviderReference
	}

	if intent.Status != domain.StatusPending {
		return nil, ErrInvalidStateTransition
	}

	query := `
		UPDATE transaction_intents
		SET provider_transaction_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING` + intentColumns
	updated, err := scanIntent(tx.QueryRow(ctx, query, intentID, providerTransactionID, domain.StatusProcessing))
	if err != nil {
		if isUniqueViolation(err, "transaction_intents_provider_transaction_id_key") {
			return nil, ErrDuplicateProviderReference
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelIntent cancels a non-terminal intent. It competes for the same row
// lock as callback ingestion; whoever acquires it first wins.
func (r *PostgresRepository) CancelIntent(ctx context.Context, intentID uuid.UUID, note string) (*domain.TransactionIntent, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	intent, err := lockIntent(ctx, tx, intentID)
	if err != nil {
		return nil, err
	}

	if intent.Status.Terminal() {
		return nil, ErrInvalidStateTransition
	}

	query := `
		UPDATE transaction_intents
		SET status = $2,
		    admin_notes = btrim(concat_ws(E'\n', admin_notes, $3::text)),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING` + intentColumns
	updated, err := scanIntent(tx.QueryRow(ctx, query, intentID, domain.StatusCancelled, note))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateAdminNotes appends an operator note to an intent. Notes are the only
// intent field an administrator may write outside the state machine.
func (r *PostgresRepository) UpdateAdminNotes(ctx context.Context, intentID uuid.UUID, notes string) error {
	query := `
		UPDATE transaction_intents
		SET admin_notes = btrim(concat_ws(E'\n', admin_notes, $2::text)), updated_at = NOW()
		WHERE id = $1`
	result, err := r.db.Exec(ctx, query, intentID, notes)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrIntentNotFound
	}
	return nil
}

// AppendCallbackLog writes one audit row for an inbound provider delivery.
// Always called before reconciliation, including for duplicates and for
// callbacks that match no intent.
func (r *PostgresRepository) AppendCallbackLog(ctx context.Context, entry *domain.PaymentCallbackLog) error {
	query := `
		INSERT INTO payment_callback_logs (
			id, intent_id, provider_transaction_id, reference_number,
			provider_status, raw_payload, idempotency_key, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.IntentID, entry.ProviderTransactionID,
		entry.ReferenceNumber, entry.ProviderStatus, entry.RawPayload,
		entry.IdempotencyKey, entry.ReceivedAt,
	)
	return err
}

// ListCallbackLogsByIntentID lists the audit trail for one intent. Ordering is
// the provider's received timestamp, not insertion order, because deliveries
// can arrive out of network order.
func (r *PostgresRepository) ListCallbackLogsByIntentID(ctx context.Context, intentID uuid.UUID) ([]domain.PaymentCallbackLog, error) {
	query := `
		SELECT id, intent_id, provider_transaction_id, reference_number,
		       provider_status, raw_payload, idempotency_key, received_at
		FROM payment_callback_logs
		WHERE intent_id = $1
		ORDER BY received_at`
	rows, err := r.db.Query(ctx, query, intentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.PaymentCallbackLog
	for rows.Next() {
		var entry domain.PaymentCallbackLog
		if err := rows.Scan(
			&entry.ID, &entry.IntentID, &entry.ProviderTransactionID,
			&entry.ReferenceNumber, &entry.ProviderStatus, &entry.RawPayload,
			&entry.IdempotencyKey, &entry.ReceivedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// ApplyCallbackAtomic is the reconciliation critical section. Two concurrent
// callbacks for the same intent serialize on the row lock; the loser observes
// the winner's committed state and takes the duplicate or conflict path.
func (r *PostgresRepository) ApplyCallbackAtomic(ctx context.Context, params ApplyCallbackParams) (*ReconcileResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	intent, err := lockIntent(ctx, tx, params.IntentID)
	if err != nil {
		return nil, err
	}

	// Callback metadata is recorded regardless of whether a transition occurs,
	// ordered by the provider's receivedAt rather than arrival order.
	recordMetadata := intent.LastCallbackAt == nil || !params.ReceivedAt.Before(*intent.LastCallbackAt)

	if params.TargetStatus == "" {
		// Unrecognized provider status: store it verbatim, no transition.
		updated, err := updateIntentCallbackMetadata(ctx, tx, intent, params, recordMetadata)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return &ReconcileResult{Intent: updated, Decision: domain.DecisionStale}, nil
	}

	decision := domain.DecideTransition(intent.Status, params.TargetStatus)
	result := &ReconcileResult{Decision: decision}

	switch decision {
	case domain.DecisionDuplicate, domain.DecisionStale:
		updated, err := updateIntentCallbackMetadata(ctx, tx, intent, params, recordMetadata)
		if err != nil {
			return nil, err
		}
		result.Intent = updated
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return result, nil

	case domain.DecisionConflict:
		updated, err := updateIntentCallbackMetadata(ctx, tx, intent, params, recordMetadata)
		if err != nil {
			return nil, err
		}
		result.Intent = updated
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return result, ErrConflictingCallback
	}

	// DecisionApply from here on.
	if params.TargetStatus == domain.StatusCompleted {
		mutated, err := applyBalanceEffect(ctx, tx, intent)
		if err != nil {
			return nil, err
		}
		if !mutated {
			// Withdrawal completion with a balance that shrank since intent
			// creation. The intent settles as failed; funds are untouched.
			reason := "insufficient funds at settlement"
			updated, err := transitionIntent(ctx, tx, intent, params, domain.StatusFailed, &reason, recordMetadata)
			if err != nil {
				return nil, err
			}
			result.Intent = updated
			result.TransitionApplied = true
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return result, ErrInsufficientFunds
		}
		result.BalanceMutated = true
	}

	var failureReason *string
	if params.TargetStatus == domain.StatusFailed {
		reason := fmt.Sprintf("provider reported %s", strings.TrimSpace(params.ProviderStatus))
		failureReason = &reason
	}

	updated, err := transitionIntent(ctx, tx, intent, params, params.TargetStatus, failureReason, recordMetadata)
	if err != nil {
		return nil, err
	}
	result.Intent = updated
	result.TransitionApplied = true

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

func lockIntent(ctx context.Context, tx pgx.Tx, intentID uuid.UUID) (*domain.TransactionIntent, error) {
	query := `SELECT` + intentColumns + ` FROM transaction_intents WHERE id = $1 FOR UPDATE`
	intent, err := scanIntent(tx.QueryRow(ctx, query, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return intent, nil
}

func updateIntentCallbackMetadata(ctx context.Context, tx pgx.Tx, intent *domain.TransactionIntent, params ApplyCallbackParams, record bool) (*domain.TransactionIntent, error) {
	if !record {
		return intent, nil
	}
	query := `
		UPDATE transaction_intents
		SET provider_status = $2, last_callback_at = $3, last_callback_payload = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING` + intentColumns
	return scanIntent(tx.QueryRow(ctx, query,
		intent.ID, params.ProviderStatus, params.ReceivedAt, params.RawPayload))
}

func transitionIntent(ctx context.Context, tx pgx.Tx, intent *domain.TransactionIntent, params ApplyCallbackParams, target domain.IntentStatus, failureReason *string, record bool) (*domain.TransactionIntent, error) {
	var (
		callbackAt      *time.Time
		callbackPayload []byte
		providerStatus  *string
	)
	if record {
		callbackAt = &params.ReceivedAt
		callbackPayload = params.RawPayload
		trimmed := strings.TrimSpace(params.ProviderStatus)
		providerStatus = &trimmed
	}
	query := `
		UPDATE transaction_intents
		SET status = $2,
		    failure_reason = COALESCE($3, failure_reason),
		    provider_status = COALESCE($4, provider_status),
		    last_callback_at = COALESCE($5, last_callback_at),
		    last_callback_payload = COALESCE($6, last_callback_payload),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING` + intentColumns
	return scanIntent(tx.QueryRow(ctx, query,
		intent.ID, target, failureReason, providerStatus, callbackAt, callbackPayload))
}

// applyBalanceEffect mutates the owning account inside the caller's
// transaction. For withdrawals the balance is re-validated at write time: the
// guarded UPDATE affects no row when funds are short, and the function
// returns false without touching the account.
func applyBalanceEffect(ctx context.Context, tx pgx.Tx, intent *domain.TransactionIntent) (bool, error) {
	if intent.IntentType == domain.IntentWithdrawal {
		result, err := tx.Exec(ctx,
			`UPDATE user_accounts SET balance = balance - $1 WHERE id = $2 AND balance >= $1`,
			intent.Amount, intent.AccountID)
		if err != nil {
			return false, err
		}
		return result.RowsAffected() == 1, nil
	}

	result, err := tx.Exec(ctx,
		`UPDATE user_accounts SET balance = balance + $1 WHERE id = $2`,
		intent.Amount, intent.AccountID)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() == 0 {
		return false, ErrAccountNotFound
	}
	return true, nil
}
