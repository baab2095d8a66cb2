package embedding

import "context"

// Embedder produces a fixed-dimension vector representation of text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed returns the embedding for the given text. A failure must not
	// panic; callers treat errors as a degraded-mode signal.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Name identifies the backend in telemetry attributes and logs.
	Name() string
}
