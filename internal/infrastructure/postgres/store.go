package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/shelfmatch/backend/internal/domain"
)

// Store is the pgvector-backed implementation of every persistence
// interface. Candidate search runs as an ANN query over the embeddings
// table; everything else is plain relational storage.
type Store struct {
	pool *pgxpool.Pool
	dim  int
}

// NewStore connects a pool and registers the vector type on every
// connection. dim is the embedding dimension the schema is created with.
func NewStore(ctx context.Context, dsn string, dim int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, dim: dim}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the extension, tables and indexes if they are absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			config JSONB NOT NULL,
			stats JSONB,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			side TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			brand TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			image_url TEXT NOT NULL DEFAULT '',
			crawl_status TEXT NOT NULL DEFAULT 'pending',
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_job_side ON products (job_id, side)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			product_id UUID PRIMARY KEY REFERENCES products(id) ON DELETE CASCADE,
			embedding VECTOR(%d) NOT NULL
		)`, s.dim),
		`CREATE TABLE IF NOT EXISTS matches (
			id UUID PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			source_product_id UUID NOT NULL,
			tier TEXT NOT NULL,
			is_no_match BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_job ON matches (job_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS job_progress (
			job_id UUID PRIMARY KEY,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	config, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("encode job config: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, name, status, config, created_at) VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.Name, job.Status, config, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob loads one job row.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	var (
		job    domain.Job
		config []byte
		stats  []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, status, config, stats, error, created_at, started_at, completed_at
		 FROM jobs WHERE id = $1`, id).
		Scan(&job.ID, &job.Name, &job.Status, &config, &stats, &job.Error,
			&job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	if err := json.Unmarshal(config, &job.Config); err != nil {
		return nil, fmt.Errorf("decode job config: %w", err)
	}
	if len(stats) > 0 {
		job.Stats = &domain.JobStats{}
		if err := json.Unmarshal(stats, job.Stats); err != nil {
			return nil, fmt.Errorf("decode job stats: %w", err)
		}
	}
	return &job, nil
}

// ClaimJob marks a job running if it is not already. The conditional update
// is atomic, so of two concurrent claims exactly one succeeds.
func (s *Store) ClaimJob(ctx context.Context, id uuid.UUID) error {
	res, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = '', started_at = $2, completed_at = NULL
		 WHERE id = $3 AND status <> $1`,
		domain.JobRunning, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if res.RowsAffected() == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return domain.ErrJobNotRunnable
	}
	return nil
}

// UpdateJobStatus transitions a job and stamps started/completed times.
func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, errMsg string) error {
	now := time.Now().UTC()
	var query string
	switch status {
	case domain.JobRunning:
		query = `UPDATE jobs SET status = $1, error = $2, started_at = $3 WHERE id = $4`
	case domain.JobCompleted, domain.JobFailed:
		query = `UPDATE jobs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`
	default:
		res, err := s.pool.Exec(ctx, `UPDATE jobs SET status = $1, error = $2 WHERE id = $3`, status, errMsg, id)
		if err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
		if res.RowsAffected() == 0 {
			return domain.ErrJobNotFound
		}
		return nil
	}
	res, err := s.pool.Exec(ctx, query, status, errMsg, now, id)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if res.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// UpdateJobStats attaches the end-of-run aggregates.
func (s *Store) UpdateJobStats(ctx context.Context, id uuid.UUID, stats domain.JobStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode job stats: %w", err)
	}
	res, err := s.pool.Exec(ctx, `UPDATE jobs SET stats = $1 WHERE id = $2`, payload, id)
	if err != nil {
		return fmt.Errorf("update job stats: %w", err)
	}
	if res.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// ListJobs returns all jobs, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, status, config, stats, error, created_at, started_at, completed_at
		 FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		var (
			job    domain.Job
			config []byte
			stats  []byte
		)
		if err := rows.Scan(&job.ID, &job.Name, &job.Status, &config, &stats, &job.Error,
			&job.CreatedAt, &job.StartedAt, &job.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if err := json.Unmarshal(config, &job.Config); err != nil {
			return nil, fmt.Errorf("decode job config: %w", err)
		}
		if len(stats) > 0 {
			job.Stats = &domain.JobStats{}
			if err := json.Unmarshal(stats, job.Stats); err != nil {
				return nil, fmt.Errorf("decode job stats: %w", err)
			}
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// CreateProducts bulk-inserts products in one batch.
func (s *Store) CreateProducts(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range products {
		metadata, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("encode product metadata: %w", err)
		}
		batch.Queue(
			`INSERT INTO products (id, job_id, side, title, url, brand, category, price, image_url, crawl_status, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			p.ID, p.JobID, p.Side, p.Title, p.URL, p.Brand, p.Category, p.Price,
			p.ImageURL, p.CrawlStatus, metadata, p.CreatedAt)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range products {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
	}
	return nil
}

// ProductsBySide returns one side of a job's catalog in insertion order.
func (s *Store) ProductsBySide(ctx context.Context, jobID uuid.UUID, side domain.Side) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, side, title, url, brand, category, price, image_url, crawl_status, metadata, created_at
		 FROM products WHERE job_id = $1 AND side = $2 ORDER BY created_at, id`, jobID, side)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProduct replaces a product's mutable fields after crawling.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) error {
	metadata, err := json.Marshal(product.Metadata)
	if err != nil {
		return fmt.Errorf("encode product metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE products SET title = $1, url = $2, brand = $3, category = $4, price = $5,
		 image_url = $6, crawl_status = $7, metadata = $8 WHERE id = $9`,
		product.Title, product.URL, product.Brand, product.Category, product.Price,
		product.ImageURL, product.CrawlStatus, metadata, product.ID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

// StoreEmbeddings upserts vectors and returns how many were stored.
// Zero-length vectors are skipped.
func (s *Store) StoreEmbeddings(ctx context.Context, embeddings []domain.Embedding) (int, error) {
	batch := &pgx.Batch{}
	queued := 0
	for _, e := range embeddings {
		if len(e.Vector) == 0 {
			continue
		}
		batch.Queue(
			`INSERT INTO embeddings (product_id, embedding) VALUES ($1, $2)
			 ON CONFLICT (product_id) DO UPDATE SET embedding = EXCLUDED.embedding`,
			e.ProductID, pgvector.NewVector(e.Vector))
		queued++
	}
	if queued == 0 {
		return 0, nil
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < queued; i++ {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("upsert embedding: %w", err)
		}
	}
	return queued, nil
}

// SearchSimilar runs the ANN query. Cosine distance orders ascending, so
// similarity comes back descending.
func (s *Store) SearchSimilar(ctx context.Context, vector []float32, jobID uuid.UUID, side domain.Side, limit int) ([]domain.CandidateRow, error) {
	query := pgvector.NewVector(vector)
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.job_id, p.side, p.title, p.url, p.brand, p.category, p.price,
		        p.image_url, p.crawl_status, p.metadata, p.created_at,
		        1 - (e.embedding <=> $1) AS similarity
		 FROM embeddings e
		 JOIN products p ON p.id = e.product_id
		 WHERE p.job_id = $2 AND p.side = $3
		 ORDER BY e.embedding <=> $1
		 LIMIT $4`, query, jobID, side, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var out []domain.CandidateRow
	for rows.Next() {
		var (
			p        domain.Product
			metadata []byte
			sim      float64
		)
		if err := rows.Scan(&p.ID, &p.JobID, &p.Side, &p.Title, &p.URL, &p.Brand, &p.Category,
			&p.Price, &p.ImageURL, &p.CrawlStatus, &metadata, &p.CreatedAt, &sim); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
				return nil, fmt.Errorf("decode product metadata: %w", err)
			}
		}
		out = append(out, domain.CandidateRow{Product: p, Similarity: sim})
	}
	return out, rows.Err()
}

// CreateMatch inserts one result. The full result is stored as jsonb with
// queryable columns lifted out.
func (s *Store) CreateMatch(ctx context.Context, result *domain.MatchResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode match result: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO matches (id, job_id, source_product_id, tier, is_no_match, status, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.ID, result.JobID, result.SourceProductID, result.Tier, result.IsNoMatch,
		result.Status, payload, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// MatchesByJob returns a job's results, oldest first.
func (s *Store) MatchesByJob(ctx context.Context, jobID uuid.UUID) ([]domain.MatchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload, status FROM matches WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("select matches: %w", err)
	}
	defer rows.Close()

	var out []domain.MatchResult
	for rows.Next() {
		var (
			payload []byte
			status  domain.MatchStatus
		)
		if err := rows.Scan(&payload, &status); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		var result domain.MatchResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("decode match result: %w", err)
		}
		// The status column is authoritative after review updates.
		result.Status = status
		out = append(out, result)
	}
	return out, rows.Err()
}

// UpdateMatchStatus changes the review status of one result.
func (s *Store) UpdateMatchStatus(ctx context.Context, id uuid.UUID, status domain.MatchStatus) error {
	res, err := s.pool.Exec(ctx, `UPDATE matches SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}
	if res.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

// SaveProgress upserts the single progress row per job.
func (s *Store) SaveProgress(ctx context.Context, progress domain.Progress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO job_progress (job_id, payload, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (job_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		progress.JobID, payload, progress.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// GetProgress returns the latest snapshot for one job.
func (s *Store) GetProgress(ctx context.Context, jobID uuid.UUID) (*domain.Progress, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM job_progress WHERE job_id = $1`, jobID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select progress: %w", err)
	}
	var progress domain.Progress
	if err := json.Unmarshal(payload, &progress); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &progress, nil
}

func scanProduct(rows pgx.Rows) (domain.Product, error) {
	var (
		p        domain.Product
		metadata []byte
	)
	if err := rows.Scan(&p.ID, &p.JobID, &p.Side, &p.Title, &p.URL, &p.Brand, &p.Category,
		&p.Price, &p.ImageURL, &p.CrawlStatus, &metadata, &p.CreatedAt); err != nil {
		return p, fmt.Errorf("scan product: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return p, fmt.Errorf("decode product metadata: %w", err)
		}
	}
	return p, nil
}
