package refgen

import (
	"regexp"
	"testing"
	"time"

	"github.com/everestfin1/samanaffa-backend/internal/domain"
)

func TestNewReferenceNumber_Format(t *testing.T) {
	now := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)

	savingsRef, err := NewReferenceNumber(domain.AccountSavings, now)
	if err != nil {
		t.Fatalf("NewReferenceNumber returned error: %v", err)
	}
	if !regexp.MustCompile(`^SN-20260828-[23456789ABCDEFGHJKMNPQRSTVWXYZ]{8}$`).MatchString(savingsRef) {
		t.Fatalf("savings reference %q does not match expected format", savingsRef)
	}

	investRef, err := NewReferenceNumber(domain.AccountInvestment, now)
	if err != nil {
		t.Fatalf("NewReferenceNumber returned error: %v", err)
	}
	if !regexp.MustCompile(`^APE-20260828-[23456789ABCDEFGHJKMNPQRSTVWXYZ]{8}$`).MatchString(investRef) {
		t.Fatalf("investment reference %q does not match expected format", investRef)
	}
}

func TestNewReferenceNumber_UsesUTCDate(t *testing.T) {
	// 23:30 in UTC+2 is 21:30 UTC the same day; 01:30 in UTC+2 is the
	// previous UTC day. The date segment follows UTC.
	loc := time.FixedZone("UTC+2", 2*3600)
	now := time.Date(2026, 8, 28, 1, 30, 0, 0, loc)

	ref, err := NewReferenceNumber(domain.AccountSavings, now)
	if err != nil {
		t.Fatalf("NewReferenceNumber returned error: %v", err)
	}
	if ref[3:11] != "20260827" {
		t.Fatalf("expected UTC date segment 20260827, got %q in %q", ref[3:11], ref)
	}
}

func TestPrefix(t *testing.T) {
	if got := Prefix(domain.AccountSavings); got != "SN" {
		t.Fatalf("expected SN, got %q", got)
	}
	if got := Prefix(domain.AccountInvestment); got != "APE" {
		t.Fatalf("expected APE, got %q", got)
	}
}

func TestIdempotencyKey_StableAndDistinct(t *testing.T) {
	payload := []byte(`{"transaction_id":"itx_1","status":"SUCCESS"}`)

	a := IdempotencyKey("itx_1", "SUCCESS", payload)
	b := IdempotencyKey("itx_1", "SUCCESS", payload)
	if a != b {
		t.Fatal("identical deliveries must produce the same idempotency key")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(a))
	}

	if IdempotencyKey("itx_1", "FAILED", payload) == a {
		t.Fatal("different status must produce a different key")
	}
	if IdempotencyKey("itx_2", "SUCCESS", payload) == a {
		t.Fatal("different provider transaction id must produce a different key")
	}
	if IdempotencyKey("itx_1", "SUCCESS", []byte(`{}`)) == a {
		t.Fatal("different payload must produce a different key")
	}

	// The separator prevents ambiguous concatenations from colliding.
	if IdempotencyKey("itx_1S", "UCCESS", payload) == a {
		t.Fatal("field boundaries must be preserved in the digest")
	}
}
