package flow

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// GenerateID generates a random ID with the given prefix.
func GenerateID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}

// NewExecutionID returns a fresh execution identifier.
func NewExecutionID() string {
	return uuid.NewString()
}
