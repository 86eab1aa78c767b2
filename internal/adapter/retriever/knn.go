package retriever

import (
	"fmt"
	"math"
	"sort"

	"inu/internal/domain"
)

// DefaultVoteWeight is the similarity added per net community vote.
const DefaultVoteWeight = 0.08

// CosineSimilarity computes dot(a,b) / (|a|*|b|). It returns 0 when either
// vector has zero norm and domain.ErrDimensionMismatch when lengths differ.
func CosineSimilarity(a, b domain.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(a), len(b))
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// KNN ranks candidates by cosine similarity to the query, adjusted by
// votes[id]*voteWeight and clamped to [0, 1], and returns the top k.
// Candidates with equal adjusted similarity keep their input order.
// votes may be nil.
func KNN(query domain.Vector, candidates []domain.Sample, k int, votes map[string]int, voteWeight float64) ([]domain.Neighbor, error) {
	if k <= 0 || len(candidates) == 0 {
		return []domain.Neighbor{}, nil
	}

	neighbors := make([]domain.Neighbor, 0, len(candidates))
	for _, c := range candidates {
		sim, err := CosineSimilarity(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", c.ID, err)
		}
		boost := float64(votes[c.ID]) * voteWeight
		neighbors = append(neighbors, domain.Neighbor{
			ID:    c.ID,
			Label: c.Label,
			Sim:   clamp01(sim + boost),
		})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Sim > neighbors[j].Sim
	})

	if k > len(neighbors) {
		k = len(neighbors)
	}
	return neighbors[:k], nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
