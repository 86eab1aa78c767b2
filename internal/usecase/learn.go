package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"inu/internal/domain"
	"inu/internal/port"
)

// DefaultMaxImageBytes bounds the size of a single image.
const DefaultMaxImageBytes = 10 * 1024 * 1024

// Invalidator is notified when samples or votes change.
type Invalidator interface {
	Invalidate()
}

// LearnUseCase embeds labeled images and stores them as samples.
type LearnUseCase struct {
	store         port.SampleStore
	embedder      port.Embedder
	walker        port.FileWalker
	invalidator   Invalidator
	maxImageBytes int64
	logger        *slog.Logger
}

// NewLearnUseCase creates a new learn use case. walker and invalidator may
// be nil.
func NewLearnUseCase(
	store port.SampleStore,
	embedder port.Embedder,
	walker port.FileWalker,
	invalidator Invalidator,
	maxImageBytes int64,
	logger *slog.Logger,
) *LearnUseCase {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LearnUseCase{
		store:         store,
		embedder:      embedder,
		walker:        walker,
		invalidator:   invalidator,
		maxImageBytes: maxImageBytes,
		logger:        logger,
	}
}

// Learn validates the label, embeds the image and stores a new sample.
func (u *LearnUseCase) Learn(ctx context.Context, image []byte, rawLabel, imageURL string) (domain.Sample, error) {
	label, err := domain.ParseLabel(rawLabel)
	if err != nil {
		return domain.Sample{}, err
	}
	if len(image) == 0 {
		return domain.Sample{}, domain.ErrEmptyInput
	}
	if int64(len(image)) > u.maxImageBytes {
		return domain.Sample{}, fmt.Errorf("%w: %d bytes (max %d)", domain.ErrImageTooLarge, len(image), u.maxImageBytes)
	}

	emb, err := u.embedder.Embed(ctx, image)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("embed: %w", err)
	}

	sample := domain.Sample{
		ID:              uuid.NewString(),
		Label:           label,
		Embedding:       emb.Vector,
		EmbedderVersion: emb.Version,
		ImageURL:        imageURL,
		CreatedAt:       time.Now(),
	}
	if err := u.store.Insert(ctx, sample); err != nil {
		return domain.Sample{}, fmt.Errorf("store sample: %w", err)
	}

	if u.invalidator != nil {
		u.invalidator.Invalidate()
	}

	u.logger.Debug("sample learned", "id", sample.ID, "label", sample.Label, "version", sample.EmbedderVersion)
	return sample, nil
}

// LearnResult contains the results of a bulk learn operation.
type LearnResult struct {
	Learned int
	Failed  int
	Samples []domain.Sample
	Errors  []string
}

// LearnDir learns every image found under root with the same label. Per-file
// failures are collected in the result; progress, when set, is called after
// each file.
func (u *LearnUseCase) LearnDir(ctx context.Context, root, rawLabel string, progress func(done, total int)) (*LearnResult, error) {
	if u.walker == nil {
		return nil, fmt.Errorf("no file walker configured")
	}
	if _, err := domain.ParseLabel(rawLabel); err != nil {
		return nil, err
	}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	result := &LearnResult{}
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sample, err := u.learnFile(ctx, file, rawLabel)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file.Path, err))
		} else {
			result.Learned++
			result.Samples = append(result.Samples, sample)
		}

		if progress != nil {
			progress(i+1, len(files))
		}
	}

	u.logger.Info("directory learned", "root", root, "label", rawLabel, "learned", result.Learned, "failed", result.Failed)
	return result, nil
}

func (u *LearnUseCase) learnFile(ctx context.Context, file port.FileInfo, label string) (domain.Sample, error) {
	if file.Size > u.maxImageBytes {
		return domain.Sample{}, fmt.Errorf("%w: %d bytes (max %d)", domain.ErrImageTooLarge, file.Size, u.maxImageBytes)
	}
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return domain.Sample{}, err
	}
	return u.Learn(ctx, data, label, "file://"+file.Path)
}
