// Package idgen generates request identifiers. Tip ids come from the
// database sequence; this package only covers ids the service mints itself.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator generates unique identifiers.
// Implementations should be safe for concurrent use.
type Generator interface {
	Generate() (string, error)
}

type v4Gen struct{}

// NewV4 returns a Generator that produces random UUID v4 strings.
func NewV4() Generator { return v4Gen{} }

func (v4Gen) Generate() (string, error) {
	return uuid.New().String(), nil
}

type v7Gen struct {
	maxRetries int
}

type V7Option func(*v7Gen)

// WithRetries sets how many times to retry uuid.NewV7() after the initial attempt.
// Defaults to 1. Set to 0 to disable retries.
func WithRetries(n int) V7Option {
	return func(g *v7Gen) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// NewV7 returns a Generator that produces time-ordered UUID v7 strings, so
// request ids in the logs sort by arrival.
func NewV7(opts ...V7Option) Generator {
	g := &v7Gen{maxRetries: 1}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *v7Gen) Generate() (string, error) {
	var last error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		id, err := uuid.NewV7()
		if err == nil {
			return id.String(), nil
		}
		last = err
	}
	return "", fmt.Errorf("uuid v7 generation failed after %d attempts: %w", g.maxRetries+1, last)
}

var fallback = NewV4()

// MustGenerate returns an id from g, falling back to a v4 UUID when g is nil
// or fails.
func MustGenerate(g Generator) string {
	if g != nil {
		if id, err := g.Generate(); err == nil && id != "" {
			return id
		}
	}
	id, _ := fallback.Generate()
	return id
}
