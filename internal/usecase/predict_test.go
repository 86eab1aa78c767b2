package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"inu/internal/adapter/cache"
	"inu/internal/adapter/decision"
	"inu/internal/adapter/memstore"
	"inu/internal/domain"
)

func TestPredict(t *testing.T) {
	ctx := context.Background()
	st := memstore.NewMemoryStore()
	insertSamples(t, st,
		domain.Sample{ID: "a", Label: "DOG", Embedding: domain.Vector{1, 0}},
		domain.Sample{ID: "b", Label: "DOG", Embedding: unit(0.95)},
		domain.Sample{ID: "c", Label: "CAT", Embedding: domain.Vector{0, 1}},
		domain.Sample{ID: "old", Label: "CAT", Embedding: domain.Vector{1, 0}, EmbedderVersion: "legacy"},
	)
	emb := &stubEmbedder{vectors: map[string]domain.Vector{"query": {1, 0}}}
	uc := NewPredictUseCase(st, emb, decision.NewDecider(), 0.08, nil, nil)

	p, err := uc.Predict(ctx, []byte("query"), looseParams(2))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if p.Label != "DOG" {
		t.Errorf("Label = %q, want DOG", p.Label)
	}
	if p.SampleCount != 3 {
		t.Errorf("SampleCount = %d, want 3 (legacy version excluded)", p.SampleCount)
	}
	if p.EmbedderVersion != testVersion {
		t.Errorf("EmbedderVersion = %q", p.EmbedderVersion)
	}
	if len(p.Neighbors) != 2 || p.Neighbors[0].ID != "a" || p.Neighbors[1].ID != "b" {
		t.Errorf("Neighbors = %+v, want [a b]", p.Neighbors)
	}
	if math.Abs(p.CanonicalProb-1) > 1e-9 {
		t.Errorf("CanonicalProb = %v, want 1", p.CanonicalProb)
	}
	if p.Params.TopK != 2 {
		t.Errorf("Params.TopK = %d, want 2", p.Params.TopK)
	}
}

func TestPredictVotesShiftRanking(t *testing.T) {
	ctx := context.Background()
	st := memstore.NewMemoryStore()
	insertSamples(t, st,
		domain.Sample{ID: "dog", Label: "DOG", Embedding: unit(0.8)},
		domain.Sample{ID: "cat", Label: "CAT", Embedding: unit(0.75)},
	)
	emb := &stubEmbedder{vectors: map[string]domain.Vector{"query": {1, 0}}}
	uc := NewPredictUseCase(st, emb, nil, 0.08, nil, nil)

	p, err := uc.Predict(ctx, []byte("query"), looseParams(1))
	if err != nil {
		t.Fatal(err)
	}
	if p.Label != "DOG" {
		t.Fatalf("Label before votes = %q, want DOG", p.Label)
	}

	for _, voter := range []string{"v1", "v2", "v3"} {
		if _, err := st.Vote(ctx, "cat", voter, 1); err != nil {
			t.Fatal(err)
		}
	}

	p, err = uc.Predict(ctx, []byte("query"), looseParams(1))
	if err != nil {
		t.Fatal(err)
	}
	if p.Label != "CAT" {
		t.Errorf("Label after votes = %q, want CAT", p.Label)
	}
	if p.Neighbors[0].Sim < 0.98 {
		t.Errorf("adjusted sim = %v, want about 0.99", p.Neighbors[0].Sim)
	}
}

func TestPredictAbstains(t *testing.T) {
	ctx := context.Background()
	emb := &stubEmbedder{vectors: map[string]domain.Vector{"query": {1, 0}}}

	t.Run("no samples", func(t *testing.T) {
		uc := NewPredictUseCase(memstore.NewMemoryStore(), emb, nil, 0.08, nil, nil)
		p, err := uc.Predict(ctx, []byte("query"), looseParams(5))
		if err != nil {
			t.Fatal(err)
		}
		if p.Label != domain.Unknown || p.CanonicalProb != 0.5 || p.SampleCount != 0 {
			t.Errorf("got %+v, want UNKNOWN with pDog 0.5", p)
		}
		if p.Neighbors == nil {
			t.Error("Neighbors should be empty, not nil")
		}
	})

	t.Run("dissimilar", func(t *testing.T) {
		st := memstore.NewMemoryStore()
		insertSamples(t, st, domain.Sample{ID: "c", Label: "CAT", Embedding: domain.Vector{0, 1}})
		uc := NewPredictUseCase(st, emb, nil, 0.08, nil, nil)
		p, err := uc.Predict(ctx, []byte("query"), looseParams(5))
		if err != nil {
			t.Fatal(err)
		}
		if !p.Abstained() {
			t.Errorf("Label = %q, want UNKNOWN", p.Label)
		}
	})
}

func TestPredictErrors(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string]domain.Vector{}}
	uc := NewPredictUseCase(memstore.NewMemoryStore(), emb, nil, 0.08, nil, nil)

	if _, err := uc.Predict(context.Background(), nil, looseParams(5)); !errors.Is(err, domain.ErrEmptyInput) {
		t.Errorf("empty image error = %v, want ErrEmptyInput", err)
	}
	if _, err := uc.Predict(context.Background(), []byte("garbage"), looseParams(5)); !errors.Is(err, domain.ErrInvalidImage) {
		t.Errorf("undecodable image error = %v, want ErrInvalidImage", err)
	}
}

func TestPredictCache(t *testing.T) {
	ctx := context.Background()
	st := memstore.NewMemoryStore()
	insertSamples(t, st, domain.Sample{ID: "a", Label: "DOG", Embedding: domain.Vector{1, 0}})
	emb := &stubEmbedder{vectors: map[string]domain.Vector{
		"query": {1, 0},
		"cat":   {0, 1},
	}}
	pc := cache.NewPredictionCache[*Prediction](10, time.Minute)
	uc := NewPredictUseCase(st, emb, nil, 0.08, pc, nil)

	for i := 0; i < 2; i++ {
		if _, err := uc.Predict(ctx, []byte("query"), looseParams(3)); err != nil {
			t.Fatal(err)
		}
	}
	if got := emb.calls.Load(); got != 1 {
		t.Errorf("embed calls = %d, want 1 (second call cached)", got)
	}

	if _, err := uc.Predict(ctx, []byte("query"), looseParams(4)); err != nil {
		t.Fatal(err)
	}
	if got := emb.calls.Load(); got != 2 {
		t.Errorf("embed calls = %d, want 2 (different params)", got)
	}

	// learning a sample invalidates cached predictions
	learn := NewLearnUseCase(st, emb, nil, uc, 0, nil)
	if _, err := learn.Learn(ctx, []byte("cat"), "CAT", ""); err != nil {
		t.Fatal(err)
	}
	before := emb.calls.Load()
	p, err := uc.Predict(ctx, []byte("query"), looseParams(3))
	if err != nil {
		t.Fatal(err)
	}
	if emb.calls.Load() != before+1 {
		t.Error("expected a fresh prediction after learn")
	}
	if p.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2", p.SampleCount)
	}
}
