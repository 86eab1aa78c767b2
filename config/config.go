package config

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the classifier.
type Config struct {
	Classifier ClassifierConfig `yaml:"classifier"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Store      StoreConfig      `yaml:"store"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ClassifierConfig holds the static defaults of the decision rule.
type ClassifierConfig struct {
	TopK             int     `yaml:"top_k"`
	MaxTopK          int     `yaml:"max_top_k"`
	PThreshold       float64 `yaml:"p_threshold"`
	MinTopSim        float64 `yaml:"min_top_sim"`
	Temperature      float64 `yaml:"temperature"`
	MinNeighbors     int     `yaml:"min_neighbors"`
	MinMargin        float64 `yaml:"min_margin"`
	MaxEvalSamples   int     `yaml:"max_eval_samples"`
	VoteWeight       float64 `yaml:"vote_weight"`       // Similarity added per net vote
	TemperatureFloor float64 `yaml:"temperature_floor"` // Lower bound applied to temperature in the softmax
	CanonicalLabel   string  `yaml:"canonical_label"`   // Label reported as pDog and used as the metrics positive class
}

// EmbeddingConfig holds embedder configuration.
type EmbeddingConfig struct {
	Provider     string        `yaml:"provider"` // "dummy", "onnx"
	ModelPath    string        `yaml:"model_path"`
	ModelURL     string        `yaml:"model_url"`   // http(s):// or s3://bucket/key; takes precedence over model_path
	OutputName   string        `yaml:"output_name"` // Empty selects a feature-like output automatically
	Version      string        `yaml:"version"`
	Threads      int           `yaml:"threads"`
	LibraryPath  string        `yaml:"library_path"` // onnxruntime shared library
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	S3Region     string        `yaml:"s3_region"`
	S3Endpoint   string        `yaml:"s3_endpoint"`
}

// StoreConfig selects the sample store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "bolt", "sqlite", "postgres", "memory"
	Path   string `yaml:"path"`   // bolt/sqlite file, relative to the data root
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// IngestConfig holds settings for reading images from disk.
type IngestConfig struct {
	Includes      []string `yaml:"includes"`
	Excludes      []string `yaml:"excludes"`
	MaxImageBytes int64    `yaml:"max_image_bytes"`
}

// CacheConfig holds prediction cache settings.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Classifier: ClassifierConfig{
			TopK:             5,
			MaxTopK:          50,
			PThreshold:       0.65,
			MinTopSim:        0.25,
			Temperature:      0.1,
			MinNeighbors:     2,
			MinMargin:        0,
			MaxEvalSamples:   800,
			VoteWeight:       0.08,
			TemperatureFloor: 0.01,
			CanonicalLabel:   "DOG",
		},
		Embedding: EmbeddingConfig{
			Provider:     "dummy",
			ModelPath:    "data/models/mobilenetv2-10.onnx",
			Version:      "mobilenetv2-10",
			Threads:      4,
			FetchTimeout: 60 * time.Second,
		},
		Store: StoreConfig{
			Driver: "bolt",
			Path:   "samples.db",
		},
		Ingest: IngestConfig{
			Includes:      []string{"**/*.jpg", "**/*.jpeg", "**/*.png", "**/*.gif", "**/*.webp"},
			Excludes:      []string{"**/.git/**", "**/.inu/**", "**/node_modules/**"},
			MaxImageBytes: 10 * 1024 * 1024,
		},
		Cache: CacheConfig{
			Size: 256,
			TTL:  5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for inu.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "inu.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".inu", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides configuration from environment variables. Values that do
// not parse keep the current setting.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}
	number := func(fallback float64, keys ...string) float64 {
		v, ok := get(keys...)
		if !ok {
			return fallback
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return fallback
		}
		return f
	}

	cl := &c.Classifier
	cl.TopK = int(number(float64(cl.TopK), "TOP_K", "K"))
	cl.MaxTopK = max(1, int(number(float64(cl.MaxTopK), "MAX_TOP_K", "MAX_TOPK")))
	cl.PThreshold = number(cl.PThreshold, "P_THRESHOLD", "THRESHOLD")
	cl.MinTopSim = number(cl.MinTopSim, "MIN_TOP_SIM")
	cl.Temperature = number(cl.Temperature, "TEMPERATURE")
	cl.MinNeighbors = int(number(float64(cl.MinNeighbors), "MIN_NEIGHBORS"))
	cl.MinMargin = number(cl.MinMargin, "MIN_MARGIN")
	cl.MaxEvalSamples = max(1, int(number(float64(cl.MaxEvalSamples), "MAX_EVAL_SAMPLES")))
	cl.VoteWeight = number(cl.VoteWeight, "VOTE_WEIGHT")

	emb := &c.Embedding
	if v, ok := get("USE_ONNX"); ok {
		if v == "true" {
			emb.Provider = "onnx"
		} else {
			emb.Provider = "dummy"
		}
	}
	if v, ok := get("EMBEDDER_MODEL_PATH"); ok {
		emb.ModelPath = v
	}
	if v, ok := get("EMBEDDER_MODEL_URL"); ok {
		emb.ModelURL = v
	}
	if v, ok := get("EMBEDDING_OUTPUT_NAME"); ok {
		emb.OutputName = v
	}
	if v, ok := get("ONNXRUNTIME_LIB"); ok {
		emb.LibraryPath = v
	}
	if n := int(number(0, "EMBEDDER_THREADS")); n > 0 {
		emb.Threads = n
	}

	if v, ok := get("DB_PATH"); ok {
		c.Store.Path = v
	}
	if v, ok := get("DATABASE_URL"); ok {
		c.Store.Driver = "postgres"
		c.Store.DSN = v
	}
}

// DataDir returns the directory holding local state for a root.
func DataDir(root string) string {
	return filepath.Join(root, ".inu")
}

// StorePath resolves the store file path against the data directory.
func (c *Config) StorePath(root string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(DataDir(root), c.Store.Path)
}

// EnsureDataDir ensures the .inu directory exists.
func EnsureDataDir(root string) error {
	return os.MkdirAll(DataDir(root), 0755)
}
