package booking

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	referencePrefix = "BK-"
	referenceLength = 6
	// referenceChars omits 0/O and 1/I so references survive being read over the phone.
	referenceChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// ReferenceGenerator produces human-readable booking reference numbers.
type ReferenceGenerator interface {
	Next() (string, error)
}

// RandomReferenceGenerator draws references like "BK-7KQ2MX" from a CSPRNG.
type RandomReferenceGenerator struct {
	source io.Reader
}

// NewReferenceGenerator returns a generator backed by crypto/rand.
func NewReferenceGenerator() *RandomReferenceGenerator {
	return &RandomReferenceGenerator{source: rand.Reader}
}

// Next returns a fresh reference. Uniqueness is enforced by the store.
func (g *RandomReferenceGenerator) Next() (string, error) {
	result := make([]byte, referenceLength)
	alphabet := big.NewInt(int64(len(referenceChars)))
	for i := range result {
		n, err := rand.Int(g.source, alphabet)
		if err != nil {
			return "", fmt.Errorf("failed to generate booking reference: %w", err)
		}
		result[i] = referenceChars[n.Int64()]
	}
	return referencePrefix + string(result), nil
}

// IsReference reports whether s has the shape of a booking reference.
func IsReference(s string) bool {
	if len(s) != len(referencePrefix)+referenceLength || s[:len(referencePrefix)] != referencePrefix {
		return false
	}
	for _, r := range s[len(referencePrefix):] {
		found := false
		for _, c := range referenceChars {
			if r == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
