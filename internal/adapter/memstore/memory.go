package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"inu/internal/domain"
	"inu/internal/port"
)

// MemoryStore is a SampleStore held entirely in memory, for tests and
// ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	samples []domain.Sample
	byID    map[string]int
	votes   map[string]map[string]int // sample id -> voter id -> vote
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]int),
		votes: make(map[string]map[string]int),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, sample domain.Sample) error {
	if sample.ID == "" || len(sample.Embedding) == 0 || sample.EmbedderVersion == "" {
		return fmt.Errorf("%w: sample requires id, embedding and version", domain.ErrInput)
	}
	if _, err := domain.ParseLabel(string(sample.Label)); err != nil {
		return err
	}
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[sample.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateSample, sample.ID)
	}
	sample.Embedding = append(domain.Vector(nil), sample.Embedding...)
	s.byID[sample.ID] = len(s.samples)
	s.samples = append(s.samples, sample)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (domain.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return domain.Sample{}, fmt.Errorf("sample %s: %w", id, domain.ErrNotFound)
	}
	return s.samples[i], nil
}

func (s *MemoryStore) FetchAll(ctx context.Context) ([]domain.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Sample, len(s.samples))
	copy(out, s.samples)
	return out, nil
}

func (s *MemoryStore) FetchByVersion(ctx context.Context, version string) ([]domain.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Sample{}
	for _, sample := range s.samples {
		if sample.EmbedderVersion == version {
			out = append(out, sample)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetVoteScores(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scores := make(map[string]int)
	for id, voters := range s.votes {
		total := 0
		for _, v := range voters {
			total += v
		}
		if total != 0 {
			scores[id] = total
		}
	}
	return scores, nil
}

func (s *MemoryStore) Vote(ctx context.Context, sampleID, voterID string, vote int) (domain.VoteResult, error) {
	if vote != 1 && vote != -1 {
		return domain.VoteResult{}, fmt.Errorf("%w: vote must be 1 or -1, got %d", domain.ErrInput, vote)
	}
	if voterID == "" {
		return domain.VoteResult{}, fmt.Errorf("%w: voter id is empty", domain.ErrInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[sampleID]; !ok {
		return domain.VoteResult{}, fmt.Errorf("sample %s: %w", sampleID, domain.ErrNotFound)
	}

	voters := s.votes[sampleID]
	if voters == nil {
		voters = make(map[string]int)
		s.votes[sampleID] = voters
	}

	result := domain.VoteResult{SampleID: sampleID, UserVote: vote}
	if voters[voterID] == vote {
		delete(voters, voterID)
		result.UserVote = 0
	} else {
		voters[voterID] = vote
	}
	for _, v := range voters {
		result.Score += v
	}
	return result, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (domain.LabelStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.LabelStats{Counts: make(map[domain.Label]int)}
	for _, sample := range s.samples {
		stats.Counts[sample.Label]++
		stats.Total++
	}
	return stats, nil
}

func (s *MemoryStore) Labels(ctx context.Context) ([]domain.Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[domain.Label]bool)
	labels := []domain.Label{}
	for _, sample := range s.samples {
		if !seen[sample.Label] {
			seen[sample.Label] = true
			labels = append(labels, sample.Label)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ port.SampleStore = (*MemoryStore)(nil)
