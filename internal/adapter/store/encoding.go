package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"inu/internal/domain"
)

// EncodeEmbedding encodes a vector as a little-endian sequence of IEEE 754
// float32 values without a length prefix.
func EncodeEmbedding(vec domain.Vector) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeEmbedding decodes a BLOB produced by EncodeEmbedding.
func DecodeEmbedding(b []byte) (domain.Vector, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	vec := make(domain.Vector, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

type sampleRecord struct {
	ID        string    `msgpack:"id"`
	Label     string    `msgpack:"l"`
	Embedding []float32 `msgpack:"e"`
	Version   string    `msgpack:"v"`
	ImageURL  string    `msgpack:"u,omitempty"`
	CreatedAt int64     `msgpack:"t"` // unix millis
}

func encodeSample(s domain.Sample) ([]byte, error) {
	return msgpack.Marshal(sampleRecord{
		ID:        s.ID,
		Label:     string(s.Label),
		Embedding: s.Embedding,
		Version:   s.EmbedderVersion,
		ImageURL:  s.ImageURL,
		CreatedAt: s.CreatedAt.UnixMilli(),
	})
}

func decodeSample(data []byte) (domain.Sample, error) {
	var rec sampleRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return domain.Sample{}, fmt.Errorf("decode sample: %w", err)
	}
	return domain.Sample{
		ID:              rec.ID,
		Label:           domain.Label(rec.Label),
		Embedding:       rec.Embedding,
		EmbedderVersion: rec.Version,
		ImageURL:        rec.ImageURL,
		CreatedAt:       time.UnixMilli(rec.CreatedAt),
	}, nil
}

// validateSample checks the fields every backend requires.
func validateSample(s domain.Sample) error {
	if s.ID == "" {
		return fmt.Errorf("%w: sample id is empty", domain.ErrInput)
	}
	if len(s.Embedding) == 0 {
		return fmt.Errorf("%w: sample %s has no embedding", domain.ErrInput, s.ID)
	}
	if s.EmbedderVersion == "" {
		return fmt.Errorf("%w: sample %s has no embedder version", domain.ErrInput, s.ID)
	}
	if _, err := domain.ParseLabel(string(s.Label)); err != nil {
		return err
	}
	return nil
}

func validateVote(vote int) error {
	if vote != 1 && vote != -1 {
		return fmt.Errorf("%w: vote must be 1 or -1, got %d", domain.ErrInput, vote)
	}
	return nil
}

func sortLabels(labels []domain.Label) {
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
}
