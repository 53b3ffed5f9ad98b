package common

import (
	"crypto/rand"
)

// GenerateRandomBytes returns size bytes from crypto/rand
func GenerateRandomBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
