package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"inu/internal/adapter/decision"
	"inu/internal/adapter/metrics"
	"inu/internal/adapter/retriever"
	"inu/internal/domain"
	"inu/internal/port"
)

const (
	DefaultMaxEvalSamples = 800
	maxExamples           = 50
	exampleNeighbors      = 3
)

// EvaluationExample is the leave-one-out outcome for one sample.
type EvaluationExample struct {
	ID         string            `json:"id"`
	Truth      domain.Label      `json:"truth"`
	Prediction domain.Label      `json:"prediction"`
	PDog       float64           `json:"pDog"`
	TopSim     float64           `json:"topSim"`
	Neighbors  []domain.Neighbor `json:"neighbors"`
}

// EvaluationReport summarises a leave-one-out evaluation.
type EvaluationReport struct {
	Version     string                                        `json:"version"`
	SampleCount int                                           `json:"sampleCount"`
	Params      domain.RuntimeParams                          `json:"params"`
	Positive    domain.Label                                  `json:"positive"`
	Metrics     domain.ClassificationMetrics                  `json:"metrics"`
	PerLabel    map[domain.Label]domain.ClassificationMetrics `json:"perLabel"`
	Examples    []EvaluationExample                           `json:"examples"`
}

// EvaluateUseCase scores the decision rule against stored ground truth.
type EvaluateUseCase struct {
	store          port.SampleStore
	decider        *decision.Decider
	positive       domain.Label
	maxEvalSamples int
	logger         *slog.Logger
}

// NewEvaluateUseCase creates a new evaluate use case.
func NewEvaluateUseCase(
	store port.SampleStore,
	decider *decision.Decider,
	positive domain.Label,
	maxEvalSamples int,
	logger *slog.Logger,
) *EvaluateUseCase {
	if decider == nil {
		decider = decision.NewDecider()
	}
	if positive == "" {
		positive = decision.DefaultCanonicalLabel
	}
	if maxEvalSamples <= 0 {
		maxEvalSamples = DefaultMaxEvalSamples
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluateUseCase{
		store:          store,
		decider:        decider,
		positive:       positive,
		maxEvalSamples: maxEvalSamples,
		logger:         logger,
	}
}

// Evaluate classifies every sample of one embedder version against all the
// others. An empty version selects the version of the first stored sample.
// Vote scores are ignored so the score reflects the embeddings alone.
func (u *EvaluateUseCase) Evaluate(ctx context.Context, params domain.RuntimeParams, version string, progress func(done, total int)) (*EvaluationReport, error) {
	all, err := u.store.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch samples: %w", err)
	}
	if len(all) == 0 {
		return nil, domain.ErrNoSamples
	}

	if version == "" {
		version = all[0].EmbedderVersion
	}
	samples := make([]domain.Sample, 0, len(all))
	for _, s := range all {
		if s.EmbedderVersion == version {
			samples = append(samples, s)
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w for version %s", domain.ErrNoSamples, version)
	}
	if len(samples) > u.maxEvalSamples {
		return nil, fmt.Errorf("%w: %d > %d; reduce the dataset or raise max_eval_samples cautiously",
			domain.ErrTooManySamples, len(samples), u.maxEvalSamples)
	}

	rows := make([]domain.EvaluationRow, 0, len(samples))
	examples := make([]EvaluationExample, 0, min(len(samples), maxExamples))
	others := make([]domain.Sample, 0, len(samples)-1)

	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		others = others[:0]
		others = append(others, samples[:i]...)
		others = append(others, samples[i+1:]...)

		neighbors, err := retriever.KNN(s.Embedding, others, params.TopK, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", s.ID, err)
		}
		d := u.decider.Decide(neighbors, params.DecisionParams)

		rows = append(rows, domain.EvaluationRow{Truth: s.Label, Prediction: d.Label})
		if len(examples) < maxExamples {
			examples = append(examples, EvaluationExample{
				ID:         s.ID,
				Truth:      s.Label,
				Prediction: d.Label,
				PDog:       d.CanonicalProb,
				TopSim:     d.TopSim,
				Neighbors:  neighbors[:min(len(neighbors), exampleNeighbors)],
			})
		}

		if progress != nil {
			progress(i+1, len(samples))
		}
	}

	report := &EvaluationReport{
		Version:     version,
		SampleCount: len(samples),
		Params:      params,
		Positive:    u.positive,
		Metrics:     metrics.ComputeMetrics(rows, u.positive),
		PerLabel:    metrics.PerLabel(rows),
		Examples:    examples,
	}

	u.logger.Info("evaluate summary",
		"version", version,
		"samples", len(samples),
		"accuracy", report.Metrics.Accuracy,
		"precision", report.Metrics.Precision,
		"recall", report.Metrics.Recall,
		"f1", report.Metrics.F1,
		"unknownRate", report.Metrics.UnknownRate)

	return report, nil
}
