package domain

import "time"

// Vector is a fixed-length embedding. Dimensionality is fixed per embedder version.
type Vector []float32

type Embedding struct {
	Vector  Vector
	Version string
}

// Sample is a labeled embedding. Samples are immutable once inserted.
type Sample struct {
	ID              string
	Label           Label
	Embedding       Vector
	EmbedderVersion string
	ImageURL        string
	CreatedAt       time.Time
}

type Neighbor struct {
	ID    string  `json:"id"`
	Label Label   `json:"label"`
	Sim   float64 `json:"sim"`
}

type DecisionParams struct {
	PThreshold   float64 `json:"pThreshold"`
	MinTopSim    float64 `json:"minTopSim"`
	Temperature  float64 `json:"temperature"`
	MinNeighbors int     `json:"minNeighbors"`
	MinMargin    float64 `json:"minMargin"`
}

// RuntimeParams is the per-request bundle produced by the parameter resolver.
type RuntimeParams struct {
	TopK int `json:"topK"`
	DecisionParams
}

type Decision struct {
	Label Label   `json:"label"`
	Score float64 `json:"score"`
	// CanonicalProb is the probability of the canonical positive label when
	// present in LabelProbs, otherwise the best probability.
	CanonicalProb float64           `json:"pDog"`
	TopSim        float64           `json:"topSim"`
	LabelProbs    map[Label]float64 `json:"labelProbs,omitempty"`
}

// Abstained reports whether the decision is UNKNOWN.
func (d Decision) Abstained() bool {
	return d.Label == Unknown
}

type EvaluationRow struct {
	Truth      Label `json:"truth"`
	Prediction Label `json:"prediction"`
}

type ConfusionMatrix struct {
	TP              int `json:"tp"`
	TN              int `json:"tn"`
	FP              int `json:"fp"`
	FN              int `json:"fn"`
	UnknownPositive int `json:"unknownPositive"`
	UnknownNegative int `json:"unknownNegative"`
}

type ClassificationMetrics struct {
	Accuracy    float64         `json:"accuracy"`
	Precision   float64         `json:"precision"`
	Recall      float64         `json:"recall"`
	F1          float64         `json:"f1"`
	UnknownRate float64         `json:"unknownRate"`
	Support     int             `json:"support"`
	Confusion   ConfusionMatrix `json:"confusion"`
}

type LabelStats struct {
	Counts map[Label]int `json:"counts"`
	Total  int           `json:"total"`
}

// VoteResult is the state of a sample's votes after a vote was applied.
type VoteResult struct {
	SampleID string `json:"sampleId"`
	Score    int    `json:"score"`
	UserVote int    `json:"userVote"` // 0 when the voter's vote was withdrawn
}
