package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the documents table. Applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection text NOT NULL,
	key        text NOT NULL,
	doc        jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, key)
);
CREATE INDEX IF NOT EXISTS documents_updated_at_idx ON documents (collection, updated_at);
`

// Postgres is a Store backed by a Postgres JSONB table.
type Postgres struct {
	pool         *pgxpool.Pool
	pollInterval time.Duration
}

// PostgresOption configures a Postgres store.
type PostgresOption func(*Postgres)

// WithPollInterval sets the Watch polling interval.
func WithPollInterval(d time.Duration) PostgresOption {
	return func(p *Postgres) { p.pollInterval = d }
}

// NewPostgres creates a Postgres-backed document store from a DSN.
func NewPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: connect: %w", err)
	}
	p := &Postgres{pool: pool, pollInterval: 2 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Migrate applies the documents table schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("docstore: migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Get retrieves a document by key.
func (p *Postgres) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s/%s: %v", ErrUnavailable, collection, key, err)
	}
	return doc, nil
}

// Put stores a document, replacing any existing one under the key.
func (p *Postgres) Put(ctx context.Context, collection, key string, doc []byte) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO documents (collection, key, doc, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (collection, key)
		 DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		collection, key, doc,
	)
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", ErrUnavailable, collection, key, err)
	}
	return nil
}

// Query returns all documents whose top-level string field matches the predicate.
func (p *Postgres) Query(ctx context.Context, collection, field string, op Op, value string) ([]Entry, error) {
	sql, err := predicateSQL(op)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, sql, collection, field, value)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrUnavailable, collection, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Doc); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrUnavailable, collection, err)
	}
	return out, nil
}

// Delete removes a document by key.
func (p *Postgres) Delete(ctx context.Context, collection, key string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	)
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", ErrUnavailable, collection, key, err)
	}
	return nil
}

// DeleteMatching removes all documents matching the predicate. The predicate
// runs inside the DELETE statement, so a row refreshed between a caller's
// read and this call is re-checked and survives.
func (p *Postgres) DeleteMatching(ctx context.Context, collection, field string, op Op, value string) (int64, error) {
	var sql string
	switch op {
	case OpEqual:
		sql = `DELETE FROM documents WHERE collection = $1 AND doc->>$2 = $3`
	case OpLess:
		sql = `DELETE FROM documents WHERE collection = $1 AND doc->>$2 < $3`
	case OpGreater:
		sql = `DELETE FROM documents WHERE collection = $1 AND doc->>$2 > $3`
	default:
		return 0, fmt.Errorf("docstore: unsupported op %q", op)
	}
	tag, err := p.pool.Exec(ctx, sql, collection, field, value)
	if err != nil {
		return 0, fmt.Errorf("%w: delete matching in %s: %v", ErrUnavailable, collection, err)
	}
	return tag.RowsAffected(), nil
}

// Watch polls for document writes in a collection. Deletions are not
// surfaced by this implementation; callers needing delete events should use
// the Memory store or query periodically.
func (p *Postgres) Watch(ctx context.Context, collection string, fn func(Event)) (func(), error) {
	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		since := time.Now()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
			}
			rows, err := p.pool.Query(watchCtx,
				`SELECT key, doc, updated_at FROM documents
				 WHERE collection = $1 AND updated_at > $2
				 ORDER BY updated_at`,
				collection, since,
			)
			if err != nil {
				continue
			}
			for rows.Next() {
				var e Event
				var at time.Time
				if err := rows.Scan(&e.Key, &e.Doc, &at); err != nil {
					break
				}
				e.Type = EventPut
				e.Collection = collection
				if at.After(since) {
					since = at
				}
				fn(e)
			}
			rows.Close()
		}
	}()
	return cancel, nil
}

func predicateSQL(op Op) (string, error) {
	switch op {
	case OpEqual:
		return `SELECT key, doc FROM documents WHERE collection = $1 AND doc->>$2 = $3`, nil
	case OpLess:
		return `SELECT key, doc FROM documents WHERE collection = $1 AND doc->>$2 < $3`, nil
	case OpGreater:
		return `SELECT key, doc FROM documents WHERE collection = $1 AND doc->>$2 > $3`, nil
	}
	return "", fmt.Errorf("docstore: unsupported op %q", op)
}
