package port

import (
	"context"

	"inu/internal/domain"
)

// Embedder maps raw image bytes to a feature vector.
type Embedder interface {
	// Embed returns the embedding for one image and the version tag of the
	// extraction method. Empty input fails with domain.ErrEmptyInput.
	Embed(ctx context.Context, image []byte) (domain.Embedding, error)

	// Version returns the version tag stored alongside produced vectors.
	Version() string
}
