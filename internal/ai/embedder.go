package ai

import (
	"context"
	"errors"
)

// ErrProviderUnavailable marks any failure to obtain an embedding vector.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// Embedder turns profile text into a vector. Implementations must be safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}
