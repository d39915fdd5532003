// Package uuid generates run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 strings, optionally prefixed.
type Generator struct {
	Prefix string
}

// NewUUIDGenerator creates a Generator whose ids start with prefix.
func NewUUIDGenerator(prefix string) *Generator {
	return &Generator{Prefix: prefix}
}

// NewID returns a prefixed UUID7 string.
func (g Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return g.Prefix + id.String(), nil
}
