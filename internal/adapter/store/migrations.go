package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"inu/config"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
//
// v1: samples, sample id index, version index, votes.
// v2: materialised per-sample scores and per-label counts.
const CurrentSchemaVersion = 2

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// SchemaInfo stores schema version and embedder configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}

		if versionData := b.Get(keySchemaVersion); versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				info.Version = 1
			}
		}

		if hashData := b.Get(keyConfigHash); hashData != nil {
			info.ConfigHash = string(hashData)
		}

		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}

		return b.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// ComputeConfigHash hashes the embedder settings that determine which
// vectors new samples receive.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		Provider   string `json:"provider"`
		Version    string `json:"version"`
		OutputName string `json:"output_name"`
	}{
		Provider:   cfg.Embedding.Provider,
		Version:    cfg.Embedding.Version,
		OutputName: cfg.Embedding.OutputName,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	// EmbedderChanged is set when samples were learned under different
	// embedder settings. Existing samples stay valid for their own version
	// but are not candidates for new predictions.
	EmbedderChanged bool
	Unsupported     bool
	OldVersion      int
	NewVersion      int
	Reason          string
}

// CheckMigration checks if a schema migration is needed.
func (s *BoltStore) CheckMigration(cfg *config.Config) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		result.Unsupported = true
		result.Reason = fmt.Sprintf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	if info.ConfigHash != "" && info.ConfigHash != ComputeConfigHash(cfg) {
		result.EmbedderChanged = true
		if result.Reason == "" {
			result.Reason = "embedder configuration changed"
		}
	}

	return result, nil
}

// Migrate performs any necessary schema migrations and records the current
// embedder configuration.
func (s *BoltStore) Migrate(cfg *config.Config) error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return err
	}
	if info.Version > CurrentSchemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", info.Version, CurrentSchemaVersion)
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}

	return s.SetSchemaInfo(&SchemaInfo{
		Version:    CurrentSchemaVersion,
		ConfigHash: ComputeConfigHash(cfg),
	})
}

// runMigration runs a specific version migration.
func (s *BoltStore) runMigration(from, to int) error {
	switch {
	case from == 1 && to == 2:
		return s.db.Update(rebuildAggregates)
	default:
		return nil
	}
}

// rebuildAggregates recomputes label counts and vote scores from the
// samples and votes buckets.
func rebuildAggregates(tx *bbolt.Tx) error {
	for _, name := range [][]byte{bucketLabels, bucketScores} {
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
	}
	labels, err := tx.CreateBucket(bucketLabels)
	if err != nil {
		return err
	}
	scores, err := tx.CreateBucket(bucketScores)
	if err != nil {
		return err
	}

	err = tx.Bucket(bucketSamples).ForEach(func(k, v []byte) error {
		sample, err := decodeSample(v)
		if err != nil {
			return err
		}
		return addInt(labels, []byte(sample.Label), 1)
	})
	if err != nil {
		return err
	}

	votes := tx.Bucket(bucketVotes)
	return votes.ForEach(func(sampleID, v []byte) error {
		// nested buckets have nil values
		if v != nil {
			return nil
		}
		return votes.Bucket(sampleID).ForEach(func(_, vote []byte) error {
			return addInt(scores, sampleID, decodeInt(vote))
		})
	})
}
