package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"inu/internal/domain"
)

var (
	bucketSamples   = []byte("samples")    // seq -> msgpack sample
	bucketSampleIDs = []byte("sample_ids") // id -> seq
	bucketVersions  = []byte("versions")   // version -> {seq -> nil}
	bucketVotes     = []byte("votes")      // sample id -> {voter id -> vote}
	bucketScores    = []byte("scores")     // sample id -> net score
	bucketLabels    = []byte("labels")     // label -> sample count
	bucketMeta      = []byte("meta")
)

// BoltStore is the default embedded sample store. Samples are kept in
// insertion order.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketSamples, bucketSampleIDs, bucketVersions, bucketVotes, bucketScores, bucketLabels, bucketMeta}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) Insert(ctx context.Context, sample domain.Sample) error {
	if err := validateSample(sample); err != nil {
		return err
	}
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now()
	}

	data, err := encodeSample(sample)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket(bucketSampleIDs)
		if ids.Get([]byte(sample.ID)) != nil {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateSample, sample.ID)
		}

		samples := tx.Bucket(bucketSamples)
		seq, err := samples.NextSequence()
		if err != nil {
			return err
		}
		key := seqKey(seq)

		if err := samples.Put(key, data); err != nil {
			return err
		}
		if err := ids.Put([]byte(sample.ID), key); err != nil {
			return err
		}

		versions, err := tx.Bucket(bucketVersions).CreateBucketIfNotExists([]byte(sample.EmbedderVersion))
		if err != nil {
			return err
		}
		if err := versions.Put(key, nil); err != nil {
			return err
		}

		return addInt(tx.Bucket(bucketLabels), []byte(sample.Label), 1)
	})
}

func (s *BoltStore) Get(ctx context.Context, id string) (domain.Sample, error) {
	var sample domain.Sample
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketSampleIDs).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("sample %s: %w", id, domain.ErrNotFound)
		}
		data := tx.Bucket(bucketSamples).Get(key)
		if data == nil {
			return fmt.Errorf("sample %s: %w", id, domain.ErrNotFound)
		}
		var err error
		sample, err = decodeSample(data)
		return err
	})
	return sample, err
}

func (s *BoltStore) FetchAll(ctx context.Context) ([]domain.Sample, error) {
	samples := []domain.Sample{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSamples).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sample, err := decodeSample(v)
			if err != nil {
				return err
			}
			samples = append(samples, sample)
			return nil
		})
	})
	return samples, err
}

func (s *BoltStore) FetchByVersion(ctx context.Context, version string) ([]domain.Sample, error) {
	samples := []domain.Sample{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket(bucketVersions).Bucket([]byte(version))
		if index == nil {
			return nil
		}
		data := tx.Bucket(bucketSamples)
		return index.ForEach(func(k, _ []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v := data.Get(k)
			if v == nil {
				return nil
			}
			sample, err := decodeSample(v)
			if err != nil {
				return err
			}
			samples = append(samples, sample)
			return nil
		})
	})
	return samples, err
}

func (s *BoltStore) GetVoteScores(ctx context.Context) (map[string]int, error) {
	scores := make(map[string]int)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScores).ForEach(func(k, v []byte) error {
			scores[string(k)] = decodeInt(v)
			return nil
		})
	})
	return scores, err
}

func (s *BoltStore) Vote(ctx context.Context, sampleID, voterID string, vote int) (domain.VoteResult, error) {
	if err := validateVote(vote); err != nil {
		return domain.VoteResult{}, err
	}
	if voterID == "" {
		return domain.VoteResult{}, fmt.Errorf("%w: voter id is empty", domain.ErrInput)
	}

	result := domain.VoteResult{SampleID: sampleID}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketSampleIDs).Get([]byte(sampleID)) == nil {
			return fmt.Errorf("sample %s: %w", sampleID, domain.ErrNotFound)
		}

		votes, err := tx.Bucket(bucketVotes).CreateBucketIfNotExists([]byte(sampleID))
		if err != nil {
			return err
		}

		var previous int
		if v := votes.Get([]byte(voterID)); v != nil {
			previous = decodeInt(v)
		}

		delta := vote - previous
		result.UserVote = vote
		if previous == vote {
			delta = -vote
			result.UserVote = 0
			if err := votes.Delete([]byte(voterID)); err != nil {
				return err
			}
		} else if err := votes.Put([]byte(voterID), encodeInt(vote)); err != nil {
			return err
		}

		scores := tx.Bucket(bucketScores)
		if err := addInt(scores, []byte(sampleID), delta); err != nil {
			return err
		}
		result.Score = decodeInt(scores.Get([]byte(sampleID)))
		return nil
	})
	return result, err
}

func (s *BoltStore) Stats(ctx context.Context) (domain.LabelStats, error) {
	stats := domain.LabelStats{Counts: make(map[domain.Label]int)}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLabels).ForEach(func(k, v []byte) error {
			n := decodeInt(v)
			stats.Counts[domain.Label(k)] = n
			stats.Total += n
			return nil
		})
	})
	return stats, err
}

func (s *BoltStore) Labels(ctx context.Context) ([]domain.Label, error) {
	labels := []domain.Label{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		// bolt keys iterate in byte order
		return tx.Bucket(bucketLabels).ForEach(func(k, v []byte) error {
			if decodeInt(v) > 0 {
				labels = append(labels, domain.Label(k))
			}
			return nil
		})
	})
	return labels, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func encodeInt(n int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(int64(n)))
	return b
}

func decodeInt(b []byte) int {
	if len(b) != 8 {
		return 0
	}
	return int(int64(binary.BigEndian.Uint64(b)))
}

func addInt(b *bbolt.Bucket, key []byte, delta int) error {
	n := decodeInt(b.Get(key)) + delta
	if n == 0 {
		return b.Delete(key)
	}
	return b.Put(key, encodeInt(n))
}
