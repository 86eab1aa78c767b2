package port

import (
	"context"

	"inu/internal/domain"
)

// SampleStore persists labeled samples and their community votes.
// Samples are append-only.
type SampleStore interface {
	// Insert stores a new sample. CreatedAt is assigned by the store when zero.
	Insert(ctx context.Context, sample domain.Sample) error

	Get(ctx context.Context, id string) (domain.Sample, error)

	FetchAll(ctx context.Context) ([]domain.Sample, error)

	FetchByVersion(ctx context.Context, version string) ([]domain.Sample, error)

	// GetVoteScores returns the net vote score per sample id.
	GetVoteScores(ctx context.Context) (map[string]int, error)

	// Vote records a +1/-1 vote. Repeating the voter's current vote withdraws it.
	Vote(ctx context.Context, sampleID, voterID string, vote int) (domain.VoteResult, error)

	Stats(ctx context.Context) (domain.LabelStats, error)

	// Labels returns the distinct labels in lexical order.
	Labels(ctx context.Context) ([]domain.Label, error)

	Close() error
}
