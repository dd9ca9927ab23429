package rooms

import (
	"crypto/rand"
	"log"
	"math/big"
	"strings"
)

// Room codes are short and human-typeable: a fixed prefix plus four
// characters from an uppercase alphanumeric alphabet, e.g. "OH-7X3K".
// Input is case-insensitive.
const (
	CodePrefix    = "OH-"
	codeSuffixLen = 4
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewCode generates a random room code. Uniqueness among open rooms is the
// registry's job, not the generator's.
func NewCode() string {
	var b strings.Builder
	b.WriteString(CodePrefix)
	for i := 0; i < codeSuffixLen; i++ {
		b.WriteByte(codeAlphabet[randomIndex(len(codeAlphabet))])
	}
	return b.String()
}

// Normalize canonicalizes user-typed codes for lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// randomIndex returns a cryptographically secure random index for a slice
// of the given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("Failed to generate random index:", err)
	}
	return int(n.Int64())
}
