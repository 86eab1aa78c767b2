package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"inu/internal/domain"
)

// Dialect selects the SQL flavour of a SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore keeps samples and votes in a relational database. Embeddings are
// stored as little-endian float32 BLOBs.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLStore opens dsn with the driver for dialect and ensures the schema.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	var driver string
	switch dialect {
	case DialectSQLite:
		driver = "sqlite"
	case DialectPostgres:
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("can't open database: %w", err)
	}
	if dialect == DialectSQLite {
		// one writer; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}

	s, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and ensures the schema.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.init(ctx); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) init(ctx context.Context) error {
	blob := "BLOB"
	if s.dialect == DialectPostgres {
		blob = "BYTEA"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS training_samples (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			embedding ` + blob + ` NOT NULL,
			embedder_version TEXT NOT NULL,
			image_url TEXT,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_training_samples_label ON training_samples(label)`,
		`CREATE INDEX IF NOT EXISTS idx_training_samples_version ON training_samples(embedder_version)`,
		`CREATE TABLE IF NOT EXISTS sample_votes (
			sample_id TEXT NOT NULL REFERENCES training_samples(id),
			voter_id TEXT NOT NULL,
			vote INTEGER NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (sample_id, voter_id)
		)`,
	}
	// sqlite orders by its implicit rowid; postgres needs an explicit serial
	if s.dialect == DialectPostgres {
		stmts = append(stmts, `ALTER TABLE training_samples ADD COLUMN IF NOT EXISTS seq BIGSERIAL NOT NULL`)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Insert(ctx context.Context, sample domain.Sample) error {
	if err := validateSample(sample); err != nil {
		return err
	}
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now()
	}

	var imageURL sql.NullString
	if sample.ImageURL != "" {
		imageURL = sql.NullString{String: sample.ImageURL, Valid: true}
	}

	q := s.rebind(`INSERT INTO training_samples (id, label, embedding, embedder_version, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		sample.ID,
		string(sample.Label),
		EncodeEmbedding(sample.Embedding),
		sample.EmbedderVersion,
		imageURL,
		sample.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if s.isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateSample, sample.ID)
		}
		return fmt.Errorf("can't insert sample: %w", err)
	}
	return nil
}

func (s *SQLStore) isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

const selectSamples = `SELECT id, label, embedding, embedder_version, image_url, created_at FROM training_samples`

func (s *SQLStore) Get(ctx context.Context, id string) (domain.Sample, error) {
	samples, err := s.query(ctx, selectSamples+` WHERE id = ?`, id)
	if err != nil {
		return domain.Sample{}, err
	}
	if len(samples) == 0 {
		return domain.Sample{}, fmt.Errorf("sample %s: %w", id, domain.ErrNotFound)
	}
	return samples[0], nil
}

// insertionOrder is the ORDER BY clause that returns samples in the order
// they were inserted.
func (s *SQLStore) insertionOrder() string {
	if s.dialect == DialectPostgres {
		return ` ORDER BY seq`
	}
	return ` ORDER BY rowid`
}

func (s *SQLStore) FetchAll(ctx context.Context) ([]domain.Sample, error) {
	return s.query(ctx, selectSamples+s.insertionOrder())
}

func (s *SQLStore) FetchByVersion(ctx context.Context, version string) ([]domain.Sample, error) {
	return s.query(ctx, selectSamples+` WHERE embedder_version = ?`+s.insertionOrder(), version)
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) ([]domain.Sample, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("can't query samples: %w", err)
	}
	defer rows.Close()

	samples := []domain.Sample{}
	for rows.Next() {
		var (
			sample    domain.Sample
			label     string
			blob      []byte
			imageURL  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&sample.ID, &label, &blob, &sample.EmbedderVersion, &imageURL, &createdAt); err != nil {
			return nil, fmt.Errorf("can't scan sample: %w", err)
		}
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", sample.ID, err)
		}
		sample.Label = domain.Label(label)
		sample.Embedding = vec
		sample.ImageURL = imageURL.String
		sample.CreatedAt = time.UnixMilli(createdAt)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func (s *SQLStore) GetVoteScores(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sample_id, COALESCE(SUM(vote), 0) AS score FROM sample_votes GROUP BY sample_id`)
	if err != nil {
		return nil, fmt.Errorf("can't query vote scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]int)
	for rows.Next() {
		var id string
		var score int64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		if score != 0 {
			scores[id] = int(score)
		}
	}
	return scores, rows.Err()
}

func (s *SQLStore) Vote(ctx context.Context, sampleID, voterID string, vote int) (domain.VoteResult, error) {
	if err := validateVote(vote); err != nil {
		return domain.VoteResult{}, err
	}
	if voterID == "" {
		return domain.VoteResult{}, fmt.Errorf("%w: voter id is empty", domain.ErrInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.VoteResult{}, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM training_samples WHERE id = ?`), sampleID).Scan(&exists)
	if err != nil {
		return domain.VoteResult{}, err
	}
	if exists == 0 {
		return domain.VoteResult{}, fmt.Errorf("sample %s: %w", sampleID, domain.ErrNotFound)
	}

	var previous int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT vote FROM sample_votes WHERE sample_id = ? AND voter_id = ?`),
		sampleID, voterID).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.VoteResult{}, err
	}

	result := domain.VoteResult{SampleID: sampleID, UserVote: vote}
	if previous == vote {
		result.UserVote = 0
		_, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM sample_votes WHERE sample_id = ? AND voter_id = ?`),
			sampleID, voterID)
	} else {
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO sample_votes (sample_id, voter_id, vote, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (sample_id, voter_id) DO UPDATE SET vote = excluded.vote, created_at = excluded.created_at`),
			sampleID, voterID, vote, time.Now().UnixMilli())
	}
	if err != nil {
		return domain.VoteResult{}, fmt.Errorf("can't record vote: %w", err)
	}

	var score int64
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT COALESCE(SUM(vote), 0) FROM sample_votes WHERE sample_id = ?`),
		sampleID).Scan(&score)
	if err != nil {
		return domain.VoteResult{}, err
	}
	result.Score = int(score)

	return result, tx.Commit()
}

func (s *SQLStore) Stats(ctx context.Context) (domain.LabelStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, COUNT(*) FROM training_samples GROUP BY label`)
	if err != nil {
		return domain.LabelStats{}, fmt.Errorf("can't query stats: %w", err)
	}
	defer rows.Close()

	stats := domain.LabelStats{Counts: make(map[domain.Label]int)}
	for rows.Next() {
		var label string
		var n int64
		if err := rows.Scan(&label, &n); err != nil {
			return domain.LabelStats{}, err
		}
		stats.Counts[domain.Label(label)] = int(n)
		stats.Total += int(n)
	}
	return stats, rows.Err()
}

func (s *SQLStore) Labels(ctx context.Context) ([]domain.Label, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT label FROM training_samples`)
	if err != nil {
		return nil, fmt.Errorf("can't query labels: %w", err)
	}
	defer rows.Close()

	labels := []domain.Label{}
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, domain.Label(label))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// byte order regardless of database collation
	sortLabels(labels)
	return labels, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
