package usecase

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"inu/internal/adapter/memstore"
	"inu/internal/domain"
)

const testVersion = "test-v1"

// stubEmbedder returns fixed vectors keyed by the image bytes.
type stubEmbedder struct {
	vectors map[string]domain.Vector
	calls   atomic.Int32
}

func (e *stubEmbedder) Embed(ctx context.Context, image []byte) (domain.Embedding, error) {
	e.calls.Add(1)
	if len(image) == 0 {
		return domain.Embedding{}, domain.ErrEmptyInput
	}
	v, ok := e.vectors[string(image)]
	if !ok {
		return domain.Embedding{}, domain.ErrInvalidImage
	}
	return domain.Embedding{Vector: v, Version: testVersion}, nil
}

func (e *stubEmbedder) Version() string {
	return testVersion
}

type countingInvalidator struct {
	n int
}

func (c *countingInvalidator) Invalidate() {
	c.n++
}

// unit returns the 2-d unit vector whose cosine with {1, 0} is cos.
func unit(cos float64) domain.Vector {
	return domain.Vector{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func insertSamples(t *testing.T, st *memstore.MemoryStore, samples ...domain.Sample) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, s := range samples {
		if s.EmbedderVersion == "" {
			s.EmbedderVersion = testVersion
		}
		s.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := st.Insert(context.Background(), s); err != nil {
			t.Fatalf("Insert(%s) error = %v", s.ID, err)
		}
	}
}

func looseParams(topK int) domain.RuntimeParams {
	return domain.RuntimeParams{
		TopK: topK,
		DecisionParams: domain.DecisionParams{
			PThreshold:   0.5,
			MinTopSim:    0.1,
			Temperature:  0.1,
			MinNeighbors: 1,
		},
	}
}
