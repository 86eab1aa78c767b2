package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"inu/internal/adapter/cache"
	"inu/internal/adapter/decision"
	"inu/internal/adapter/retriever"
	"inu/internal/domain"
	"inu/internal/port"
)

// Prediction is the result of classifying one image.
type Prediction struct {
	domain.Decision
	Neighbors       []domain.Neighbor    `json:"neighbors"`
	EmbedderVersion string               `json:"embedderVersion"`
	SampleCount     int                  `json:"sampleCount"`
	Params          domain.RuntimeParams `json:"params"`
}

// PredictUseCase classifies images against the stored samples.
type PredictUseCase struct {
	store      port.SampleStore
	embedder   port.Embedder
	decider    *decision.Decider
	voteWeight float64
	cache      *cache.PredictionCache[*Prediction]
	logger     *slog.Logger
}

// NewPredictUseCase creates a new predict use case. predictionCache may be
// nil to disable caching.
func NewPredictUseCase(
	store port.SampleStore,
	embedder port.Embedder,
	decider *decision.Decider,
	voteWeight float64,
	predictionCache *cache.PredictionCache[*Prediction],
	logger *slog.Logger,
) *PredictUseCase {
	if decider == nil {
		decider = decision.NewDecider()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictUseCase{
		store:      store,
		embedder:   embedder,
		decider:    decider,
		voteWeight: voteWeight,
		cache:      predictionCache,
		logger:     logger,
	}
}

// Predict embeds the image, ranks samples of the same embedder version with
// their vote scores, and applies the decision rule.
func (u *PredictUseCase) Predict(ctx context.Context, image []byte, params domain.RuntimeParams) (*Prediction, error) {
	if len(image) == 0 {
		return nil, domain.ErrEmptyInput
	}

	var key string
	if u.cache != nil {
		key = cache.Key(image, params)
		if p, ok := u.cache.Get(key); ok {
			return p, nil
		}
	}

	emb, err := u.embedder.Embed(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	samples, err := u.store.FetchByVersion(ctx, emb.Version)
	if err != nil {
		return nil, fmt.Errorf("fetch samples: %w", err)
	}
	votes, err := u.store.GetVoteScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch vote scores: %w", err)
	}

	neighbors, err := retriever.KNN(emb.Vector, samples, params.TopK, votes, u.voteWeight)
	if err != nil {
		return nil, err
	}
	d := u.decider.Decide(neighbors, params.DecisionParams)

	p := &Prediction{
		Decision:        d,
		Neighbors:       neighbors,
		EmbedderVersion: emb.Version,
		SampleCount:     len(samples),
		Params:          params,
	}

	u.logger.Info("predict decision",
		"predicted", d.Label,
		"pDog", d.CanonicalProb,
		"score", d.Score,
		"topSim", d.TopSim,
		"samples", len(samples),
		"topK", params.TopK)

	if u.cache != nil {
		u.cache.Put(key, p)
	}
	return p, nil
}

// Invalidate drops cached predictions.
func (u *PredictUseCase) Invalidate() {
	if u.cache != nil {
		u.cache.Invalidate()
	}
}
