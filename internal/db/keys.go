package db

import (
	"crypto/rand"
	"fmt"
)

// KeyLength is the fixed length of a player key.
const KeyLength = 10

const keyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// GenerateKey mints a random player key from a cryptographically
// strong source. The 62^10 keyspace makes collisions rare; the insert
// path still retries on a unique violation.
func GenerateKey() (string, error) {
	return randomString(KeyLength)
}

// GenerateManagerID mints the 64-character server-process identifier
// used to claim ownership of keys.
func GenerateManagerID() (string, error) {
	return randomString(64)
}

// GenerateAISecret mints the secret that lets an AI worker attach to
// a key it did not create.
func GenerateAISecret() (string, error) {
	return randomString(32)
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(buf), nil
}
