package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"autoasesor/internal/resilience"
)

// Collection identifies one of the two logical vector collections.
type Collection string

const (
	// CollectionCatalog holds one point per car in inventory.
	CollectionCatalog Collection = "car_catalog"
	// CollectionKnowledge holds company knowledge-base chunks.
	CollectionKnowledge Collection = "knowledge_chunks"
)

func (c Collection) valid() bool {
	return c == CollectionCatalog || c == CollectionKnowledge
}

// Hit is a single similarity-search result. Score is cosine similarity
// in [0, 1], higher is closer.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// SearchFilters restricts a similarity search. Nil fields are ignored.
type SearchFilters struct {
	MaxPrice   *float64
	MinYear    *int
	MaxYear    *int
	MaxMileage *int
	Brand      *string
	Model      *string
}

// IsZero reports whether no filter is set
func (f *SearchFilters) IsZero() bool {
	if f == nil {
		return true
	}
	return f.MaxPrice == nil && f.MinYear == nil && f.MaxYear == nil &&
		f.MaxMileage == nil && f.Brand == nil && f.Model == nil
}

// WithoutBrand returns a copy with only the brand filter cleared. All
// other filters, the model filter included, stay in force.
func (f *SearchFilters) WithoutBrand() *SearchFilters {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Brand = nil
	return &cp
}

// Point is one upsertable vector entry.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// VectorRepository stores and searches embedding points in pgvector-backed
// Postgres tables, one table per collection.
type VectorRepository struct {
	db     *sqlx.DB
	gate   *resilience.Gate
	logger *zap.Logger
}

// NewVectorRepository creates a vector repository over an existing pool.
// maxInFlight caps concurrent store operations.
func NewVectorRepository(db *sqlx.DB, maxInFlight int, logger *zap.Logger) *VectorRepository {
	if maxInFlight <= 0 {
		maxInFlight = 10
	}
	return &VectorRepository{
		db:     db,
		gate:   resilience.NewGate(maxInFlight),
		logger: logger,
	}
}

// EnsureSchema creates the collection tables, indexes and the chat history
// table if they do not exist. dims is the embedding dimensionality.
func (r *VectorRepository) EnsureSchema(ctx context.Context, dims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS car_catalog (
			id UUID PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dims),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_chunks (
			id UUID PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dims),
		`CREATE INDEX IF NOT EXISTS car_catalog_price_idx ON car_catalog (((payload->>'price')::numeric))`,
		`CREATE INDEX IF NOT EXISTS car_catalog_year_idx ON car_catalog (((payload->>'year')::int))`,
		`CREATE INDEX IF NOT EXISTS car_catalog_km_idx ON car_catalog (((payload->>'km')::int))`,
		`CREATE INDEX IF NOT EXISTS car_catalog_make_idx ON car_catalog ((payload->>'make'))`,
		`CREATE INDEX IF NOT EXISTS car_catalog_model_idx ON car_catalog ((payload->>'model'))`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			query TEXT NOT NULL,
			response TEXT NOT NULL,
			intent TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS chat_history_user_idx ON chat_history (user_id, created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Search returns the topK nearest points by cosine distance, restricted by
// filters. An empty result is a nil slice, not an error.
func (r *VectorRepository) Search(ctx context.Context, vector []float32, topK int, filters *SearchFilters, collection Collection) ([]Hit, error) {
	if !collection.valid() {
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}
	if topK <= 0 {
		return nil, nil
	}

	whereClauses := []string{"1=1"}
	args := []interface{}{pgvector.NewVector(vector)}
	argIndex := 2

	if filters != nil {
		if filters.MaxPrice != nil {
			whereClauses = append(whereClauses, fmt.Sprintf("(payload->>'price')::numeric <= $%d", argIndex))
			args = append(args, *filters.MaxPrice)
			argIndex++
		}
		if filters.MinYear != nil {
			whereClauses = append(whereClauses, fmt.Sprintf("(payload->>'year')::int >= $%d", argIndex))
			args = append(args, *filters.MinYear)
			argIndex++
		}
		if filters.MaxYear != nil {
			whereClauses = append(whereClauses, fmt.Sprintf("(payload->>'year')::int <= $%d", argIndex))
			args = append(args, *filters.MaxYear)
			argIndex++
		}
		if filters.MaxMileage != nil {
			whereClauses = append(whereClauses, fmt.Sprintf("(payload->>'km')::int <= $%d", argIndex))
			args = append(args, *filters.MaxMileage)
			argIndex++
		}
		if filters.Brand != nil {
			whereClauses = append(whereClauses, fmt.Sprintf("payload->>'make' = $%d", argIndex))
			args = append(args, *filters.Brand)
			argIndex++
		}
		if filters.Model != nil {
			whereClauses = append(whereClauses, fmt.Sprintf("payload->>'model' = $%d", argIndex))
			args = append(args, *filters.Model)
			argIndex++
		}
	}

	query := fmt.Sprintf(`
		SELECT id, payload, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, collection, strings.Join(whereClauses, " AND "), argIndex)
	args = append(args, topK)

	var hits []Hit
	err := r.withGateAndRetry(ctx, func() error {
		rows, err := r.db.QueryxContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("similarity search failed: %w", err)
		}
		defer rows.Close()

		hits = nil
		for rows.Next() {
			var (
				id      string
				raw     []byte
				score   float64
				payload map[string]interface{}
			)
			if err := rows.Scan(&id, &raw, &score); err != nil {
				return fmt.Errorf("failed to scan hit: %w", err)
			}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("failed to decode payload: %w", err)
			}
			hits = append(hits, Hit{ID: id, Score: score, Payload: payload})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("vector search",
		zap.String("collection", string(collection)),
		zap.Int("top_k", topK),
		zap.Int("hits", len(hits)))

	return hits, nil
}

// Upsert inserts or replaces points in a collection
func (r *VectorRepository) Upsert(ctx context.Context, collection Collection, points []Point) error {
	if !collection.valid() {
		return fmt.Errorf("unknown collection: %s", collection)
	}
	if len(points) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload
	`, collection)

	return r.withGateAndRetry(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			raw, err := json.Marshal(p.Payload)
			if err != nil {
				return fmt.Errorf("failed to encode payload for %s: %w", p.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, p.ID, pgvector.NewVector(p.Vector), raw); err != nil {
				return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit upsert: %w", err)
		}
		return nil
	})
}

// DeleteByIDs removes points from a collection
func (r *VectorRepository) DeleteByIDs(ctx context.Context, collection Collection, ids []string) error {
	if !collection.valid() {
		return fmt.Errorf("unknown collection: %s", collection)
	}
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, collection)
	return r.withGateAndRetry(ctx, func() error {
		if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
			return fmt.Errorf("failed to delete points: %w", err)
		}
		return nil
	})
}

// ScrollPayloads returns a page of payloads in stable id order, for bulk
// reads like the vocabulary scan
func (r *VectorRepository) ScrollPayloads(ctx context.Context, collection Collection, limit, offset int) ([]map[string]interface{}, error) {
	if !collection.valid() {
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}

	query := fmt.Sprintf(`SELECT payload FROM %s ORDER BY id LIMIT $1 OFFSET $2`, collection)

	var payloads []map[string]interface{}
	err := r.withGateAndRetry(ctx, func() error {
		rows, err := r.db.QueryxContext(ctx, query, limit, offset)
		if err != nil {
			return fmt.Errorf("payload scroll failed: %w", err)
		}
		defer rows.Close()

		payloads = nil
		for rows.Next() {
			var raw []byte
			if err := rows.Scan(&raw); err != nil {
				return fmt.Errorf("failed to scan payload: %w", err)
			}
			var payload map[string]interface{}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("failed to decode payload: %w", err)
			}
			payloads = append(payloads, payload)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return payloads, nil
}

func (r *VectorRepository) withGateAndRetry(ctx context.Context, fn func() error) error {
	if err := r.gate.Acquire(ctx); err != nil {
		return fmt.Errorf("vector store gate: %w", err)
	}
	defer r.gate.Release()

	return resilience.RetryWithBackoff(ctx, resilience.DefaultRetry, fn)
}
