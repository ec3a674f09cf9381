package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	version    BIGINT      NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING GIN (data jsonb_path_ops);
`

const defaultMaxAttempts = 5

// Store keeps every collection in a single JSONB table. Transactions run at
// SERIALIZABLE and are retried on serialisation failures and deadlocks.
type Store struct {
	log         *slog.Logger
	pool        *pgxpool.Pool
	maxAttempts int
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool, maxAttempts: defaultMaxAttempts}
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	return getDocument(ctx, s.pool, collection, id, false)
}

func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]*docstore.Document, error) {
	return queryDocuments(ctx, s.pool, collection, filters, false)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		s.log.Warn("docstore transaction retry", "attempt", attempt, "err", err)
	}
	return fmt.Errorf("docstore: transaction aborted after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	t := &pgTx{tx: tx}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := t.flush(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getDocument(ctx context.Context, q querier, collection, id string, lock bool) (*docstore.Document, error) {
	sql := `SELECT data, version, created_at, updated_at FROM documents WHERE collection=$1 AND id=$2`
	if lock {
		sql += ` FOR UPDATE`
	}
	var (
		raw []byte
		doc = docstore.Document{Collection: collection, ID: id}
	)
	err := q.QueryRow(ctx, sql, collection, id).Scan(&raw, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docstore.ErrNotFound
		}
		return nil, err
	}
	data, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	doc.Data = data
	return &doc, nil
}

func queryDocuments(ctx context.Context, q querier, collection string, filters []docstore.Filter, lock bool) ([]*docstore.Document, error) {
	match := map[string]any{}
	for _, f := range filters {
		match[f.Field] = f.Value
	}
	pattern, err := json.Marshal(match)
	if err != nil {
		return nil, err
	}

	sql := `SELECT id, data, version, created_at, updated_at FROM documents
		WHERE collection=$1 AND data @> $2::jsonb
		ORDER BY id`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, collection, string(pattern))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*docstore.Document{}
	for rows.Next() {
		var (
			raw []byte
			doc = docstore.Document{Collection: collection}
		)
		if err := rows.Scan(&doc.ID, &raw, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		if doc.Data, err = decode(raw); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, doc.ID, err)
		}
		out = append(out, &doc)
	}
	return out, rows.Err()
}

func decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

type pgWrite struct {
	create     bool
	remove     bool
	merge      bool
	collection string
	id         string
	data       []byte
}

type pgTx struct {
	tx     pgx.Tx
	writes []pgWrite
}

func (t *pgTx) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if len(t.writes) > 0 {
		return nil, docstore.ErrReadAfterWrite
	}
	return getDocument(ctx, t.tx, collection, id, true)
}

func (t *pgTx) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]*docstore.Document, error) {
	if len(t.writes) > 0 {
		return nil, docstore.ErrReadAfterWrite
	}
	return queryDocuments(ctx, t.tx, collection, filters, true)
}

func (t *pgTx) Create(collection, id string, data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, pgWrite{create: true, collection: collection, id: id, data: b})
	return nil
}

func (t *pgTx) Set(collection, id string, data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, pgWrite{collection: collection, id: id, data: b})
	return nil
}

func (t *pgTx) Merge(collection, id string, fields map[string]any) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, pgWrite{merge: true, collection: collection, id: id, data: b})
	return nil
}

func (t *pgTx) Delete(collection, id string) error {
	t.writes = append(t.writes, pgWrite{remove: true, collection: collection, id: id})
	return nil
}

func (t *pgTx) flush(ctx context.Context) error {
	now := time.Now().UTC()
	for _, w := range t.writes {
		var err error
		switch {
		case w.remove:
			_, err = t.tx.Exec(ctx, `DELETE FROM documents WHERE collection=$1 AND id=$2`, w.collection, w.id)
		case w.create:
			_, err = t.tx.Exec(ctx, `INSERT INTO documents (collection, id, data, version, created_at, updated_at)
				VALUES ($1,$2,$3::jsonb,1,$4,$4)`, w.collection, w.id, string(w.data), now)
			if isUniqueViolation(err) {
				return fmt.Errorf("create %s/%s: %w", w.collection, w.id, docstore.ErrAlreadyExists)
			}
		case w.merge:
			_, err = t.tx.Exec(ctx, `INSERT INTO documents (collection, id, data, version, created_at, updated_at)
				VALUES ($1,$2,$3::jsonb,1,$4,$4)
				ON CONFLICT (collection, id) DO UPDATE SET data=documents.data || $3::jsonb, version=documents.version+1, updated_at=$4`,
				w.collection, w.id, string(w.data), now)
		default:
			_, err = t.tx.Exec(ctx, `INSERT INTO documents (collection, id, data, version, created_at, updated_at)
				VALUES ($1,$2,$3::jsonb,1,$4,$4)
				ON CONFLICT (collection, id) DO UPDATE SET data=$3::jsonb, version=documents.version+1, updated_at=$4`,
				w.collection, w.id, string(w.data), now)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
