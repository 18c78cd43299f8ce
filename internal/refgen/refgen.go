/**
 * @description
 * Reference number and idempotency key generation. The reference number is the
 * externally-quoted identifier for a transaction intent; the idempotency key is
 * a stable digest of a provider callback, stored on every audit log row so
 * duplicate deliveries can be traced back to one another.
 *
 * @notes
 * - Reference format: <prefix>-<YYYYMMDD>-<8 random base32 chars>, e.g.
 *   "SN-20260828-7K3FQ9WD". Uniqueness is ultimately enforced by the database
 *   constraint; the random suffix makes collisions vanishingly rare and the
 *   caller retries on a unique violation.
 */

package refgen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/everestfin1/samanaffa-backend/internal/domain"
)

// Crockford-style alphabet: no 0/O or 1/I lookalikes.
const refAlphabet = "23456789ABCDEFGHJKMNPQRSTVWXYZ"

const refSuffixLen = 8

// Prefix returns the reference prefix for a product line: "SN" for Sama Naffa
// savings, "APE" for investment accounts.
func Prefix(accountType domain.AccountType) string {
	if accountType == domain.AccountInvestment {
		return "APE"
	}
	return "SN"
}

// NewReferenceNumber produces a new externally-quoted reference for an intent.
func NewReferenceNumber(accountType domain.AccountType, now time.Time) (string, error) {
	buf := make([]byte, refSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	suffix := make([]byte, refSuffixLen)
	for i, b := range buf {
		suffix[i] = refAlphabet[int(b)%len(refAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", Prefix(accountType), now.UTC().Format("20060102"), suffix), nil
}

// IdempotencyKey derives a stable key for one provider delivery. Two
// byte-identical deliveries produce the same key; any change to the provider
// transaction id, reported status, or payload produces a different one.
func IdempotencyKey(providerTransactionID, providerStatus string, rawPayload []byte) string {
	h := sha256.New()
	h.Write([]byte(providerTransactionID))
	h.Write([]byte{0})
	h.Write([]byte(providerStatus))
	h.Write([]byte{0})
	h.Write(rawPayload)
	return hex.EncodeToString(h.Sum(nil))
}
