package orders

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet avoids characters agents misread over the phone (0/O, 1/I/L).
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const defaultCodeLength = 8

// generateDeliveryCode produces an unguessable single-use confirmation code.
func generateDeliveryCode(length int) (string, error) {
	if length <= 0 {
		length = defaultCodeLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
