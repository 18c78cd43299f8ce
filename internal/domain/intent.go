/**
 * @description
 * This file defines the core domain models for the Sama Naffa backend: the
 * transaction intent, its status lifecycle, and the pure decision table the
 * reconciler applies when a provider callback targets a new state.
 *
 * @notes
 * - Amounts and balances use `decimal.Decimal` (fixed precision), never a
 *   floating-point type. All amounts are XOF.
 * - The status graph is pending -> processing -> {completed, failed, cancelled}.
 *   The three right-hand states are terminal: no transition ever leaves them.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IntentStatus is the lifecycle state of a transaction intent.
type IntentStatus string

const (
	StatusPending    IntentStatus = "pending"
	StatusProcessing IntentStatus = "processing"
	StatusCompleted  IntentStatus = "completed"
	StatusFailed     IntentStatus = "failed"
	StatusCancelled  IntentStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted out of s.
func (s IntentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IntentType classifies the money movement a user authorized.
type IntentType string

const (
	IntentDeposit    IntentType = "deposit"
	IntentInvestment IntentType = "investment"
	IntentWithdrawal IntentType = "withdrawal"
)

// ValidIntentType reports whether t is one of the three supported intent types.
func ValidIntentType(t IntentType) bool {
	switch t {
	case IntentDeposit, IntentInvestment, IntentWithdrawal:
		return true
	}
	return false
}

// AccountType distinguishes the two product lines.
type AccountType string

const (
	AccountSavings    AccountType = "savings"    // Sama Naffa
	AccountInvestment AccountType = "investment" // APE
)

// Payment methods accepted at intent creation. Mobile money rails first; they
// carry nearly all retail volume in Senegal.
const (
	PaymentMethodWave         = "wave"
	PaymentMethodOrangeMoney  = "orange_money"
	PaymentMethodFreeMoney    = "free_money"
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
)

// ValidPaymentMethod reports whether m is an accepted payment method.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodWave, PaymentMethodOrangeMoney, PaymentMethodFreeMoney,
		PaymentMethodCard, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// TransactionIntent is one user-initiated financial action against an account.
// This struct maps directly to the `transaction_intents` table.
type TransactionIntent struct {
	ID                    uuid.UUID       `json:"id"`
	UserID                uuid.UUID       `json:"user_id"`
	AccountID             uuid.UUID       `json:"account_id"`
	AccountType           AccountType     `json:"account_type"`
	IntentType            IntentType      `json:"intent_type"`
	Amount                decimal.Decimal `json:"amount"`
	PaymentMethod         string          `json:"payment_method"`
	InvestmentTranche     *string         `json:"investment_tranche,omitempty"`
	InvestmentTermMonths  *int            `json:"investment_term_months,omitempty"`
	Status                IntentStatus    `json:"status"`
	ReferenceNumber       string          `json:"reference_number"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	ProviderStatus        *string         `json:"provider_status,omitempty"`
	LastCallbackAt        *time.Time      `json:"last_callback_at,omitempty"`
	LastCallbackPayload   []byte          `json:"last_callback_payload,omitempty"`
	FailureReason         *string         `json:"failure_reason,omitempty"`
	AdminNotes            *string         `json:"admin_notes,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// BalanceEffect returns the signed balance delta the intent applies to its
// account when it completes: positive for deposits and investments, negative
// for withdrawals.
func (i *TransactionIntent) BalanceEffect() decimal.Decimal {
	if i.IntentType == IntentWithdrawal {
		return i.Amount.Neg()
	}
	return i.Amount
}

// TransitionDecision is the outcome of evaluating a callback-targeted state
// against the intent's current state. The reconciler acts on the decision; the
// table itself has no side effects.
type TransitionDecision int

const (
	// DecisionApply advances the intent to the target state.
	DecisionApply TransitionDecision = iota
	// DecisionDuplicate is the idempotent no-op: the intent already reached
	// the target state.
	DecisionDuplicate
	// DecisionStale ignores a non-terminal replay delivered after the intent
	// reached a terminal state (late "PENDING"/"PROCESSING" callbacks).
	DecisionStale
	// DecisionConflict rejects a terminal target that disagrees with an
	// already-recorded terminal outcome. The intent is left untouched.
	DecisionConflict
)

// DecideTransition evaluates a target state against the current one.
//
// The rules, in order:
//   - same state: duplicate (covers both terminal duplicates and
//     processing->processing replays)
//   - current terminal, target terminal: conflict, a settled outcome is
//     never overwritten
//   - current terminal, target non-terminal: stale replay, ignored
//   - pending target while already processing: stale (no downgrade)
//   - everything else (pending/processing -> processing or terminal): apply
func DecideTransition(current, target IntentStatus) TransitionDecision {
	if target == current {
		return DecisionDuplicate
	}
	if current.Terminal() {
		if target.Terminal() {
			return DecisionConflict
		}
		return DecisionStale
	}
	if target == StatusPending {
		return DecisionStale
	}
	return DecisionApply
}
