package store

import (
	"math"
	"testing"
	"time"

	"inu/internal/domain"
)

func TestEmbeddingBlob(t *testing.T) {
	vec := domain.Vector{0, 1, -1, 0.5, float32(math.Pi), math.MaxFloat32, math.SmallestNonzeroFloat32}
	blob := EncodeEmbedding(vec)
	if len(blob) != len(vec)*4 {
		t.Fatalf("blob length = %d, want %d", len(blob), len(vec)*4)
	}

	got, err := DecodeEmbedding(blob)
	if err != nil {
		t.Fatal(err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], vec[i])
		}
	}

	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestSampleRecord(t *testing.T) {
	in := domain.Sample{
		ID:              "id-1",
		Label:           "CAT",
		Embedding:       domain.Vector{0.1, 0.2},
		EmbedderVersion: "dummy-v1",
		CreatedAt:       time.UnixMilli(1700000000999),
	}
	data, err := encodeSample(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := decodeSample(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID || out.Label != in.Label || out.EmbedderVersion != in.EmbedderVersion || !out.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("got %+v, want %+v", out, in)
	}
	if out.ImageURL != "" {
		t.Errorf("imageURL = %q, want empty", out.ImageURL)
	}

	if _, err := decodeSample([]byte{0xc1}); err == nil {
		t.Error("expected error for corrupt record")
	}
}
