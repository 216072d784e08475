package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const inviteTokenBytes = 32

// Generator produces unguessable, URL-safe tokens.
type Generator interface {
	Generate() (string, error)
}

type randomGenerator struct{}

// NewGenerator returns a Generator backed by crypto/rand.
func NewGenerator() Generator {
	return randomGenerator{}
}

func (randomGenerator) Generate() (string, error) {
	buf := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
