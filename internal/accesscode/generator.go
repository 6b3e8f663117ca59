// Package accesscode generates and validates pool access codes.
package accesscode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// alphabet omits 0/O/1/I/L to keep codes readable on keypads and signage.
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 8

// Generate returns a random access code such as "K7PWQ2MX".
func Generate() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
