package app

import (
	"errors"

	"github.com/everestfin1/samanaffa-backend/internal/store"
)

var (
	// Validation errors: bad input, rejected synchronously, never retried.
	ErrInvalidAmount         = errors.New("amount must be a positive value")
	ErrInvalidIntentType     = errors.New("unknown intent type")
	ErrInvalidPaymentMethod  = errors.New("unknown payment method")
	ErrIntentAccountMismatch = errors.New("intent type not available for this account type")

	// Business-rule errors: surfaced to the caller.
	ErrAccountNotEligible = errors.New("account is not eligible for this operation")
	ErrAccountLocked      = errors.New("account is locked for withdrawals until the lock period ends")

	// Not-found: a callback that matches no known intent. Reported, never
	// retried internally; the audit row is written regardless.
	ErrUnknownTransaction = errors.New("callback matches no known transaction intent")

	// Non-fatal: provider status outside the mapping table. Stored verbatim,
	// no transition.
	ErrUnrecognizedProviderStatus = errors.New("unrecognized provider status")

	ErrRateLimited = errors.New("too many requests")

	// ErrInsufficientFunds is shared with the store: the same condition is
	// checked at intent creation and re-checked at settlement time.
	ErrInsufficientFunds = store.ErrInsufficientFunds
)
