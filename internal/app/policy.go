/**
 * @description
 * Account eligibility policy: the pre-checks an intent must pass before it is
 * created. These are pure validations against a loaded account snapshot; the
 * authoritative balance re-check happens again at settlement time inside the
 * store's atomic reconcile (balances move between intent creation and the
 * provider's completion callback).
 */

package app

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/everestfin1/samanaffa-backend/internal/domain"
)

// ReserveForDeposit verifies an account can accept a deposit or investment.
// No mutation: the balance only moves when the intent completes.
func ReserveForDeposit(account *domain.UserAccount, intentType domain.IntentType) error {
	if account.Status != domain.AccountActive {
		return ErrAccountNotEligible
	}
	if intentType == domain.IntentDeposit && !account.AllowAdditionalDeposits {
		return ErrAccountNotEligible
	}
	return nil
}

// ReserveForWithdrawal verifies the lock period has elapsed and the current
// balance covers the amount. Products with an early-exit clause would hook in
// here; none are modeled yet.
func ReserveForWithdrawal(account *domain.UserAccount, amount decimal.Decimal, now time.Time) error {
	if account.Status != domain.AccountActive {
		return ErrAccountNotEligible
	}
	if account.Locked(now) {
		return ErrAccountLocked
	}
	if account.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}
