package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"inu/config"
	"inu/internal/adapter/cache"
	"inu/internal/adapter/decision"
	"inu/internal/adapter/embedding"
	"inu/internal/adapter/fs"
	"inu/internal/adapter/memstore"
	"inu/internal/adapter/store"
	"inu/internal/domain"
	"inu/internal/port"
	"inu/internal/usecase"
)

// app wires the configured adapters into use cases for one command run.
type app struct {
	cfg      *config.Config
	store    port.SampleStore
	bolt     *store.BoltStore
	embedder port.Embedder
	closers  []func() error

	predict  *usecase.PredictUseCase
	learn    *usecase.LearnUseCase
	evaluate *usecase.EvaluateUseCase
	samples  *usecase.SampleUseCase
}

// needs selects which adapters a command uses.
type needs struct {
	embedder bool
}

func newApp(ctx context.Context, cfg *config.Config, root string, n needs) (*app, error) {
	a := &app{cfg: cfg}

	if err := a.openStore(ctx, root); err != nil {
		return nil, err
	}

	if n.embedder {
		emb, err := newEmbedder(cfg, root)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.embedder = emb
		if c, ok := emb.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	logger := slog.Default()
	cl := cfg.Classifier
	canonical := domain.Label(cl.CanonicalLabel)
	decider := decision.NewDecider(
		decision.WithTemperatureFloor(cl.TemperatureFloor),
		decision.WithCanonicalLabel(canonical),
	)

	predictionCache := cache.NewPredictionCache[*usecase.Prediction](cfg.Cache.Size, cfg.Cache.TTL)
	a.predict = usecase.NewPredictUseCase(a.store, a.embedder, decider, cl.VoteWeight, predictionCache, logger)

	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)
	a.learn = usecase.NewLearnUseCase(a.store, a.embedder, walker, a.predict, cfg.Ingest.MaxImageBytes, logger)
	a.evaluate = usecase.NewEvaluateUseCase(a.store, decider, canonical, cl.MaxEvalSamples, logger)
	a.samples = usecase.NewSampleUseCase(a.store, a.predict)

	return a, nil
}

func (a *app) openStore(ctx context.Context, root string) error {
	sc := a.cfg.Store
	switch sc.Driver {
	case "", "bolt":
		if err := config.EnsureDataDir(root); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		st, err := store.NewBoltStore(a.cfg.StorePath(root))
		if err != nil {
			return fmt.Errorf("failed to open sample store: %w", err)
		}
		if err := checkSchema(st, a.cfg); err != nil {
			st.Close()
			return err
		}
		a.store, a.bolt = st, st
	case "sqlite":
		if err := config.EnsureDataDir(root); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		st, err := store.OpenSQLStore(ctx, store.DialectSQLite, a.cfg.StorePath(root))
		if err != nil {
			return fmt.Errorf("failed to open sample store: %w", err)
		}
		a.store = st
	case "postgres":
		if sc.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
		st, err := store.OpenSQLStore(ctx, store.DialectPostgres, sc.DSN)
		if err != nil {
			return fmt.Errorf("failed to open sample store: %w", err)
		}
		a.store = st
	case "memory":
		a.store = memstore.NewMemoryStore()
	default:
		return fmt.Errorf("unknown store driver %q", sc.Driver)
	}

	a.closers = append(a.closers, a.store.Close)
	return nil
}

// checkSchema runs pending schema migrations and warns when samples were
// learned under a different embedder configuration.
func checkSchema(st *store.BoltStore, cfg *config.Config) error {
	result, err := st.CheckMigration(cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}
	if result.Unsupported {
		return fmt.Errorf("cannot open sample store: %s", result.Reason)
	}
	if result.NeedsMigration {
		slog.Info("running schema migration", "reason", result.Reason)
		if err := st.Migrate(cfg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	}
	if result.EmbedderChanged {
		slog.Warn("embedder configuration changed; samples from other versions are ignored for prediction",
			"version", cfg.Embedding.Version)
	}
	return nil
}

// recordEmbedder stores the current embedder configuration after new samples
// were written.
func (a *app) recordEmbedder() error {
	if a.bolt == nil {
		return nil
	}
	return a.bolt.Migrate(a.cfg)
}

func newEmbedder(cfg *config.Config, root string) (port.Embedder, error) {
	ec := cfg.Embedding
	switch ec.Provider {
	case "", "dummy":
		return embedding.NewDummyEmbedder(), nil
	case "onnx":
		location := ec.ModelURL
		if location == "" {
			location = ec.ModelPath
			if !filepath.IsAbs(location) {
				location = filepath.Join(root, location)
			}
		}
		src, err := embedding.NewModelSource(location, embedding.SourceOptions{
			Timeout:    ec.FetchTimeout,
			S3Region:   ec.S3Region,
			S3Endpoint: ec.S3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("invalid model location: %w", err)
		}
		return embedding.NewONNXEmbedder(embedding.ONNXOptions{
			Source:      src,
			OutputName:  ec.OutputName,
			Version:     ec.Version,
			Threads:     ec.Threads,
			LibraryPath: ec.LibraryPath,
			Logger:      slog.Default(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", ec.Provider)
	}
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// resolveParams merges --param overrides with the configured defaults.
func resolveParams(cfg *config.Config, pairs []string) (domain.RuntimeParams, error) {
	overrides, err := config.ParseOverrides(pairs)
	if err != nil {
		return domain.RuntimeParams{}, err
	}
	return config.DeriveParams(cfg.Classifier, overrides), nil
}
