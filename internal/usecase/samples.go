package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"inu/internal/domain"
	"inu/internal/port"
)

// SampleUseCase exposes votes and corpus statistics.
type SampleUseCase struct {
	store       port.SampleStore
	invalidator Invalidator
}

func NewSampleUseCase(store port.SampleStore, invalidator Invalidator) *SampleUseCase {
	return &SampleUseCase{store: store, invalidator: invalidator}
}

// Vote applies a +1/-1 vote. Repeating the same vote withdraws it.
func (u *SampleUseCase) Vote(ctx context.Context, sampleID, voterID string, vote int) (domain.VoteResult, error) {
	res, err := u.store.Vote(ctx, sampleID, voterID, vote)
	if err != nil {
		return domain.VoteResult{}, err
	}
	if u.invalidator != nil {
		u.invalidator.Invalidate()
	}
	return res, nil
}

func (u *SampleUseCase) Stats(ctx context.Context) (domain.LabelStats, error) {
	return u.store.Stats(ctx)
}

func (u *SampleUseCase) Labels(ctx context.Context) ([]domain.Label, error) {
	return u.store.Labels(ctx)
}

// SampleSummary describes a stored sample without its embedding.
type SampleSummary struct {
	ID              string       `json:"id"`
	Label           domain.Label `json:"label"`
	EmbedderVersion string       `json:"embedderVersion"`
	ImageURL        string       `json:"imageUrl,omitempty"`
	CreatedAt       string       `json:"createdAt"`
	Score           int          `json:"score"`
}

// Samples lists stored samples, optionally filtered by embedder version and
// label. limit <= 0 means no limit.
func (u *SampleUseCase) Samples(ctx context.Context, version string, label domain.Label, limit int) ([]SampleSummary, error) {
	var (
		samples []domain.Sample
		err     error
	)
	if version != "" {
		samples, err = u.store.FetchByVersion(ctx, version)
	} else {
		samples, err = u.store.FetchAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch samples: %w", err)
	}

	scores, err := u.store.GetVoteScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch vote scores: %w", err)
	}

	out := make([]SampleSummary, 0, len(samples))
	for _, s := range samples {
		if label != "" && s.Label != label {
			continue
		}
		out = append(out, SampleSummary{
			ID:              s.ID,
			Label:           s.Label,
			EmbedderVersion: s.EmbedderVersion,
			ImageURL:        s.ImageURL,
			CreatedAt:       s.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
			Score:           scores[s.ID],
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// VoterID derives a stable anonymous voter identity from client attributes
// such as address and user agent.
func VoterID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}
