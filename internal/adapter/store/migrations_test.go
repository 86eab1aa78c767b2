package store

import (
	"context"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"inu/config"
	"inu/internal/domain"
)

func newTestBolt(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "samples.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCheckMigration_Fresh(t *testing.T) {
	s := newTestBolt(t)
	cfg := config.DefaultConfig()

	res, err := s.CheckMigration(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.NeedsMigration || res.OldVersion != 0 {
		t.Errorf("fresh db: %+v", res)
	}

	if err := s.Migrate(cfg); err != nil {
		t.Fatal(err)
	}
	res, err = s.CheckMigration(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.NeedsMigration || res.EmbedderChanged || res.Unsupported {
		t.Errorf("after migrate: %+v", res)
	}
}

func TestCheckMigration_EmbedderChanged(t *testing.T) {
	s := newTestBolt(t)
	cfg := config.DefaultConfig()
	if err := s.Migrate(cfg); err != nil {
		t.Fatal(err)
	}

	changed := config.DefaultConfig()
	changed.Embedding.Provider = "onnx"
	res, err := s.CheckMigration(changed)
	if err != nil {
		t.Fatal(err)
	}
	if !res.EmbedderChanged {
		t.Errorf("expected embedder change, got %+v", res)
	}
	if res.NeedsMigration {
		t.Errorf("embedder change should not require a migration")
	}
}

func TestCheckMigration_NewerSchema(t *testing.T) {
	s := newTestBolt(t)
	if err := s.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion + 1}); err != nil {
		t.Fatal(err)
	}

	res, err := s.CheckMigration(config.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Unsupported {
		t.Errorf("expected unsupported, got %+v", res)
	}
	if err := s.Migrate(config.DefaultConfig()); err == nil {
		t.Error("expected Migrate to refuse a newer schema")
	}
}

func TestMigrate_V1RebuildsAggregates(t *testing.T) {
	s := newTestBolt(t)
	ctx := context.Background()

	samples := []domain.Sample{
		{ID: "a", Label: "DOG", Embedding: domain.Vector{1}, EmbedderVersion: "v1"},
		{ID: "b", Label: "DOG", Embedding: domain.Vector{1}, EmbedderVersion: "v1"},
		{ID: "c", Label: "CAT", Embedding: domain.Vector{1}, EmbedderVersion: "v1"},
	}
	for _, smp := range samples {
		if err := s.Insert(ctx, smp); err != nil {
			t.Fatal(err)
		}
	}
	for _, voter := range []string{"u1", "u2", "u3"} {
		if _, err := s.Vote(ctx, "a", voter, 1); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Vote(ctx, "c", "u1", -1); err != nil {
		t.Fatal(err)
	}

	// simulate a v1 database: no materialised aggregates
	err := s.DB().Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketLabels); err != nil {
			return err
		}
		if err := tx.DeleteBucket(bucketScores); err != nil {
			return err
		}
		if _, err := tx.CreateBucket(bucketLabels); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketScores)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSchemaInfo(&SchemaInfo{Version: 1}); err != nil {
		t.Fatal(err)
	}

	if err := s.Migrate(config.DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Counts["DOG"] != 2 || stats.Counts["CAT"] != 1 || stats.Total != 3 {
		t.Errorf("stats after migration = %+v", stats)
	}
	scores, err := s.GetVoteScores(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if scores["a"] != 3 || scores["c"] != -1 {
		t.Errorf("scores after migration = %v", scores)
	}

	info, _ := s.GetSchemaInfo()
	if info.Version != CurrentSchemaVersion {
		t.Errorf("schema version = %d, want %d", info.Version, CurrentSchemaVersion)
	}
}

func TestComputeConfigHash(t *testing.T) {
	a := config.DefaultConfig()
	b := config.DefaultConfig()
	if ComputeConfigHash(a) != ComputeConfigHash(b) {
		t.Error("identical configs should hash equal")
	}

	b.Classifier.TopK = 42
	if ComputeConfigHash(a) != ComputeConfigHash(b) {
		t.Error("classifier settings should not affect the hash")
	}

	b.Embedding.Version = "other"
	if ComputeConfigHash(a) == ComputeConfigHash(b) {
		t.Error("embedder version should affect the hash")
	}
}
