package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"inu/internal/adapter/embedding"
	"inu/internal/adapter/fs"
	"inu/internal/adapter/memstore"
	"inu/internal/domain"
)

func TestLearn(t *testing.T) {
	ctx := context.Background()
	st := memstore.NewMemoryStore()
	emb := &stubEmbedder{vectors: map[string]domain.Vector{"dog": {1, 0}}}
	inv := &countingInvalidator{}
	uc := NewLearnUseCase(st, emb, nil, inv, 16, nil)

	sample, err := uc.Learn(ctx, []byte("dog"), " DOG ", "https://example.com/dog.jpg")
	if err != nil {
		t.Fatalf("Learn() error = %v", err)
	}
	if sample.ID == "" {
		t.Error("expected a generated id")
	}
	if sample.Label != "DOG" {
		t.Errorf("Label = %q, want DOG", sample.Label)
	}
	if sample.EmbedderVersion != testVersion {
		t.Errorf("EmbedderVersion = %q, want %q", sample.EmbedderVersion, testVersion)
	}
	if inv.n != 1 {
		t.Errorf("invalidations = %d, want 1", inv.n)
	}

	got, err := st.Get(ctx, sample.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ImageURL != "https://example.com/dog.jpg" {
		t.Errorf("ImageURL = %q", got.ImageURL)
	}
}

func TestLearnRejects(t *testing.T) {
	ctx := context.Background()
	emb := &stubEmbedder{vectors: map[string]domain.Vector{"dog": {1, 0}}}

	tests := []struct {
		name  string
		image []byte
		label string
		want  error
	}{
		{"empty label", []byte("dog"), "", domain.ErrInvalidLabel},
		{"long label", []byte("dog"), "NOT_DOG", domain.ErrInvalidLabel},
		{"empty image", nil, "DOG", domain.ErrEmptyInput},
		{"too large", []byte("0123456789abcdefg"), "DOG", domain.ErrImageTooLarge},
		{"undecodable", []byte("cat"), "DOG", domain.ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memstore.NewMemoryStore()
			inv := &countingInvalidator{}
			uc := NewLearnUseCase(st, emb, nil, inv, 16, nil)

			_, err := uc.Learn(ctx, tt.image, tt.label, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("Learn() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, domain.ErrInput) {
				t.Errorf("expected an input error, got %v", err)
			}
			if inv.n != 0 {
				t.Errorf("invalidations = %d, want 0", inv.n)
			}
			stats, _ := st.Stats(ctx)
			if stats.Total != 0 {
				t.Errorf("Total = %d, want 0", stats.Total)
			}
		})
	}
}

func TestLearnDir(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	files := map[string]string{
		"a.jpg":      "first image",
		"sub/b.PNG":  "second image",
		"big.png":    "this image is far too large",
		"notes.txt":  "not an image",
		".git/c.jpg": "excluded",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	st := memstore.NewMemoryStore()
	walker := fs.NewWalker([]string{"**/*.jpg", "**/*.png"}, []string{"**/.git/**"})
	uc := NewLearnUseCase(st, embedding.NewDummyEmbedder(), walker, nil, 20, nil)

	var calls, lastTotal int
	result, err := uc.LearnDir(ctx, root, "DOG", func(done, total int) {
		calls++
		lastTotal = total
	})
	if err != nil {
		t.Fatalf("LearnDir() error = %v", err)
	}

	if result.Learned != 2 {
		t.Errorf("Learned = %d, want 2", result.Learned)
	}
	if result.Failed != 1 || len(result.Errors) != 1 {
		t.Errorf("Failed = %d, Errors = %v, want 1 failure", result.Failed, result.Errors)
	}
	if calls != 3 || lastTotal != 3 {
		t.Errorf("progress calls = %d, total = %d, want 3 and 3", calls, lastTotal)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Counts["DOG"] != 2 {
		t.Errorf("Counts[DOG] = %d, want 2", stats.Counts["DOG"])
	}
	for _, s := range result.Samples {
		if s.EmbedderVersion != embedding.DummyVersion {
			t.Errorf("EmbedderVersion = %q, want %q", s.EmbedderVersion, embedding.DummyVersion)
		}
	}
}

func TestLearnDirInvalidLabel(t *testing.T) {
	uc := NewLearnUseCase(memstore.NewMemoryStore(), embedding.NewDummyEmbedder(), fs.NewWalker(nil, nil), nil, 0, nil)
	if _, err := uc.LearnDir(context.Background(), t.TempDir(), "TOOLONG", nil); !errors.Is(err, domain.ErrInvalidLabel) {
		t.Errorf("LearnDir() error = %v, want ErrInvalidLabel", err)
	}
}
