package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Base62 is the alphabet for thread, reply and guest ids.
const Base62 = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateRandomString generates a cryptographically secure random string
// using the provided charset and length
func GenerateRandomString(length int, charset string) string {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			panic(fmt.Sprintf("failed to generate random string: %v", err))
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// NewId returns a random base62 id of the given length.
func NewId(length int) string {
	return GenerateRandomString(length, Base62)
}
