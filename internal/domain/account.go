package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus is the administrative state of a product account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
)

// UserAccount is one product account (Sama Naffa savings or APE investment)
// owned by a user. The balance is mutated only as the side effect of a
// transaction intent transitioning into completed; it never goes negative.
type UserAccount struct {
	ID                      uuid.UUID       `json:"id"`
	UserID                  uuid.UUID       `json:"user_id"`
	AccountType             AccountType     `json:"account_type"`
	AccountNumber           string          `json:"account_number"`
	ProductCode             string          `json:"product_code"`
	ProductName             string          `json:"product_name"`
	InterestRate            decimal.Decimal `json:"interest_rate"`
	LockPeriodMonths        int             `json:"lock_period_months"`
	LockedUntil             *time.Time      `json:"locked_until,omitempty"`
	AllowAdditionalDeposits bool            `json:"allow_additional_deposits"`
	Metadata                []byte          `json:"metadata,omitempty"`
	Balance                 decimal.Decimal `json:"balance"`
	Status                  AccountStatus   `json:"status"`
	CreatedAt               time.Time       `json:"created_at"`
}

// Locked reports whether the lock period is still running at the given time.
func (a *UserAccount) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}
