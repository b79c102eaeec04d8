// Package checksum derives content identifiers: stable transaction ids and
// file fingerprints.
package checksum

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/starford/csvledger/internal/codec"
	"github.com/starford/csvledger/internal/models"
)

// StableIDLen is the number of hex characters kept from the digest.
const StableIDLen = 10

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// StableIDFields hashes the canonical key date|description|amount|account.
// Each value is trimmed before joining.
func StableIDFields(date, description, amount, account string) string {
	key := strings.Join([]string{
		strings.TrimSpace(date),
		strings.TrimSpace(description),
		strings.TrimSpace(amount),
		strings.TrimSpace(account),
	}, "|")
	h := sha1.Sum([]byte(key))
	return hex.EncodeToString(h[:])[:StableIDLen]
}

// StableID returns the deterministic id of t, computed over the canonical text
// of its date, description, amount and account. The current t.ID is ignored.
func StableID(t models.Transaction) string {
	return StableIDFields(
		codec.FormatDate(t.Date),
		t.Description,
		codec.FormatAmount(t.Amount),
		t.Account,
	)
}
