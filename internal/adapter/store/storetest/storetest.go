// Package storetest provides a conformance suite for port.SampleStore
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"inu/internal/domain"
	"inu/internal/port"
)

// Run exercises a SampleStore. newStore must return an empty store; it is
// closed by the suite.
func Run(t *testing.T, newStore func(t *testing.T) port.SampleStore) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s port.SampleStore)
	}{
		{"InsertAndGet", testInsertAndGet},
		{"DuplicateRejected", testDuplicateRejected},
		{"InvalidSample", testInvalidSample},
		{"FetchOrder", testFetchOrder},
		{"FetchOrderSameTimestamp", testFetchOrderSameTimestamp},
		{"FetchByVersion", testFetchByVersion},
		{"VoteToggle", testVoteToggle},
		{"VoteScores", testVoteScores},
		{"VoteUnknownSample", testVoteUnknownSample},
		{"StatsAndLabels", testStatsAndLabels},
		{"Empty", testEmpty},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tc.fn(t, s)
		})
	}
}

func sample(id string, label domain.Label, version string, vec ...float32) domain.Sample {
	return domain.Sample{
		ID:              id,
		Label:           label,
		Embedding:       vec,
		EmbedderVersion: version,
	}
}

func mustInsert(t *testing.T, s port.SampleStore, samples ...domain.Sample) {
	t.Helper()
	for _, smp := range samples {
		if err := s.Insert(context.Background(), smp); err != nil {
			t.Fatalf("insert %s: %v", smp.ID, err)
		}
	}
}

func testInsertAndGet(t *testing.T, s port.SampleStore) {
	ctx := context.Background()
	in := sample("a", "DOG", "v1", 0.25, -1.5, 3)
	in.ImageURL = "https://example.com/dog.jpg"
	in.CreatedAt = time.UnixMilli(1700000000123)
	mustInsert(t, s, in)

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != in.ID || got.Label != in.Label || got.EmbedderVersion != in.EmbedderVersion || got.ImageURL != in.ImageURL {
		t.Errorf("got %+v, want %+v", got, in)
	}
	if !got.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("createdAt = %v, want %v", got.CreatedAt, in.CreatedAt)
	}
	if len(got.Embedding) != 3 || got.Embedding[0] != 0.25 || got.Embedding[1] != -1.5 || got.Embedding[2] != 3 {
		t.Errorf("embedding = %v", got.Embedding)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testDuplicateRejected(t *testing.T, s port.SampleStore) {
	mustInsert(t, s, sample("a", "DOG", "v1", 1))
	err := s.Insert(context.Background(), sample("a", "CAT", "v1", 2))
	if !errors.Is(err, domain.ErrDuplicateSample) {
		t.Errorf("expected ErrDuplicateSample, got %v", err)
	}
}

func testInvalidSample(t *testing.T, s port.SampleStore) {
	cases := []domain.Sample{
		sample("", "DOG", "v1", 1),
		sample("a", "", "v1", 1),
		sample("a", "TOOLONG", "v1", 1),
		sample("a", "DOG", "", 1),
		sample("a", "DOG", "v1"),
	}
	for i, c := range cases {
		if err := s.Insert(context.Background(), c); !errors.Is(err, domain.ErrInput) {
			t.Errorf("case %d: expected input error, got %v", i, err)
		}
	}
}

func testFetchOrder(t *testing.T, s port.SampleStore) {
	base := time.UnixMilli(1700000000000)
	for i := 0; i < 5; i++ {
		smp := sample(fmt.Sprintf("s%d", i), "DOG", "v1", float32(i))
		smp.CreatedAt = base.Add(time.Duration(i) * time.Second)
		mustInsert(t, s, smp)
	}

	all, err := s.FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(all))
	}
	for i, smp := range all {
		if want := fmt.Sprintf("s%d", i); smp.ID != want {
			t.Errorf("position %d: got %s, want %s", i, smp.ID, want)
		}
	}
}

// Samples learned within the same millisecond keep their insertion order,
// whatever their ids.
func testFetchOrderSameTimestamp(t *testing.T, s port.SampleStore) {
	ctx := context.Background()
	created := time.UnixMilli(1700000000000)
	ids := []string{"f7", "0a", "c3", "9e", "1b"}
	for i, id := range ids {
		smp := sample(id, "DOG", "v1", float32(i))
		smp.CreatedAt = created
		mustInsert(t, s, smp)
	}

	for _, fetch := range []struct {
		name string
		fn   func() ([]domain.Sample, error)
	}{
		{"FetchAll", func() ([]domain.Sample, error) { return s.FetchAll(ctx) }},
		{"FetchByVersion", func() ([]domain.Sample, error) { return s.FetchByVersion(ctx, "v1") }},
	} {
		got, err := fetch.fn()
		if err != nil {
			t.Fatalf("%s: %v", fetch.name, err)
		}
		if len(got) != len(ids) {
			t.Fatalf("%s: got %d samples, want %d", fetch.name, len(got), len(ids))
		}
		for i, smp := range got {
			if smp.ID != ids[i] {
				t.Errorf("%s position %d: got %s, want %s", fetch.name, i, smp.ID, ids[i])
			}
		}
	}
}

func testFetchByVersion(t *testing.T, s port.SampleStore) {
	mustInsert(t, s,
		sample("a", "DOG", "v1", 1),
		sample("b", "CAT", "v2", 1, 2),
		sample("c", "DOG", "v1", 2),
	)

	v1, err := s.FetchByVersion(context.Background(), "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(v1) != 2 {
		t.Fatalf("expected 2 v1 samples, got %d", len(v1))
	}
	for _, smp := range v1 {
		if smp.EmbedderVersion != "v1" {
			t.Errorf("sample %s has version %s", smp.ID, smp.EmbedderVersion)
		}
	}

	none, err := s.FetchByVersion(context.Background(), "v9")
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil result, got %v", none)
	}
}

func testVoteToggle(t *testing.T, s port.SampleStore) {
	ctx := context.Background()
	mustInsert(t, s, sample("a", "DOG", "v1", 1))

	steps := []struct {
		voter     string
		vote      int
		wantScore int
		wantUser  int
	}{
		{"alice", 1, 1, 1},
		{"bob", 1, 2, 1},
		{"alice", 1, 1, 0},   // same vote again withdraws
		{"bob", -1, -1, -1},  // switching replaces
		{"alice", -1, -2, -1},
		{"bob", -1, -1, 0},
	}
	for i, st := range steps {
		res, err := s.Vote(ctx, "a", st.voter, st.vote)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if res.Score != st.wantScore || res.UserVote != st.wantUser || res.SampleID != "a" {
			t.Errorf("step %d: got %+v, want score=%d userVote=%d", i, res, st.wantScore, st.wantUser)
		}
	}

	if _, err := s.Vote(ctx, "a", "carol", 2); !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected input error for vote 2, got %v", err)
	}
	if _, err := s.Vote(ctx, "a", "", 1); !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected input error for empty voter, got %v", err)
	}
}

func testVoteScores(t *testing.T, s port.SampleStore) {
	ctx := context.Background()
	mustInsert(t, s, sample("a", "DOG", "v1", 1), sample("b", "CAT", "v1", 1), sample("c", "CAT", "v1", 1))

	votes := []struct {
		id, voter string
		vote      int
	}{
		{"a", "u1", 1}, {"a", "u2", 1}, {"b", "u1", -1}, {"c", "u1", 1}, {"c", "u2", -1},
	}
	for _, v := range votes {
		if _, err := s.Vote(ctx, v.id, v.voter, v.vote); err != nil {
			t.Fatal(err)
		}
	}

	scores, err := s.GetVoteScores(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if scores["a"] != 2 || scores["b"] != -1 || scores["c"] != 0 {
		t.Errorf("scores = %v", scores)
	}
}

func testVoteUnknownSample(t *testing.T, s port.SampleStore) {
	_, err := s.Vote(context.Background(), "ghost", "alice", 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testStatsAndLabels(t *testing.T, s port.SampleStore) {
	ctx := context.Background()
	mustInsert(t, s,
		sample("a", "DOG", "v1", 1),
		sample("b", "CAT", "v1", 1),
		sample("c", "DOG", "v2", 1),
		sample("d", "BIRD", "v1", 1),
	)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 4 || stats.Counts["DOG"] != 2 || stats.Counts["CAT"] != 1 || stats.Counts["BIRD"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	labels, err := s.Labels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.Label{"BIRD", "CAT", "DOG"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("labels = %v, want %v", labels, want)
			break
		}
	}
}

func testEmpty(t *testing.T, s port.SampleStore) {
	ctx := context.Background()
	all, err := s.FetchAll(ctx)
	if err != nil || len(all) != 0 {
		t.Errorf("FetchAll = %v, %v", all, err)
	}
	stats, err := s.Stats(ctx)
	if err != nil || stats.Total != 0 {
		t.Errorf("Stats = %+v, %v", stats, err)
	}
	labels, err := s.Labels(ctx)
	if err != nil || len(labels) != 0 {
		t.Errorf("Labels = %v, %v", labels, err)
	}
	scores, err := s.GetVoteScores(ctx)
	if err != nil || len(scores) != 0 {
		t.Errorf("GetVoteScores = %v, %v", scores, err)
	}
}
