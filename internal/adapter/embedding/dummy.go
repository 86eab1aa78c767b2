package embedding

import (
	"context"
	"crypto/sha256"

	"inu/internal/domain"
)

const (
	DummyDimension = 128
	DummyVersion   = "dummy-v1"
)

// DummyEmbedder derives a deterministic vector from the SHA-256 digest of the
// image bytes. It needs no model and is used for development and tests.
type DummyEmbedder struct{}

func NewDummyEmbedder() *DummyEmbedder {
	return &DummyEmbedder{}
}

func (e *DummyEmbedder) Embed(ctx context.Context, image []byte) (domain.Embedding, error) {
	if len(image) == 0 {
		return domain.Embedding{}, domain.ErrEmptyInput
	}

	sum := sha256.Sum256(image)
	vec := make(domain.Vector, DummyDimension)
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)]) / 255
	}

	return domain.Embedding{Vector: vec, Version: DummyVersion}, nil
}

func (e *DummyEmbedder) Version() string {
	return DummyVersion
}
