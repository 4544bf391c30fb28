package id

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	referenceMarker = "sl00a"
	referenceLayout = "20060102150405"
	// GeneralScope stands in for the loan code on payments not tied to a loan.
	GeneralScope = "GEN"
)

// NewID32 returns exactly 32 lowercase hex characters (a v4 UUID without hyphens).
func NewID32() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewReference builds a merchant reference of the form
// "{3 random lowercase letters}sl00a.{yyyyMMddHHmmss}.{scope}" where scope is
// the loan code, or GeneralScope when empty.
func NewReference(scope string, now time.Time) string {
	if scope == "" {
		scope = GeneralScope
	}
	return randomLetters(3) + referenceMarker + "." + now.UTC().Format(referenceLayout) + "." + scope
}

func randomLetters(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		k, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = alphabet[k.Int64()]
	}
	return string(b)
}
