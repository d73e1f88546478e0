// Package postgres stores documents as JSONB rows in a single table. It is
// a document store adapter, not a query engine: equality filters, one sort
// field and a limit are all it supports.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/omendivilg/CoffeeBox/internal/store"
	"github.com/omendivilg/CoffeeBox/pkg/database"
	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
)

// SQLSTATE codes mapped by mapError.
const (
	codeQueryCanceled     = "57014"
	codeObjectNotInPrereq = "55000"
	codeUndefinedTable    = "42P01"
)

const documentsTable = "documents"

// Store is a store.DocumentStore backed by PostgreSQL.
type Store struct {
	db             database.DBTX
	requireIndexes bool

	// Indexes are never dropped at runtime, so only positive lookups are
	// cached. A missing index is checked again on the next query.
	ready sync.Map
}

// New returns a store using db. When requireIndexes is true, queries whose
// index is missing from pg_indexes fail with store.ErrDegradedQuery instead
// of falling back to a sequential scan.
func New(db database.DBTX, requireIndexes bool) *Store {
	return &Store{db: db, requireIndexes: requireIndexes}
}

var _ store.DocumentStore = (*Store)(nil)

// Get implements store.DocumentStore.
func (s *Store) Get(ctx context.Context, collection, id string) (doc store.Document, err error) {
	const query = `SELECT data FROM documents WHERE collection = $1 AND id = $2`

	ctx, end := database.TraceQuery(ctx, "Get", collection, query)
	defer func() { end(err) }()

	var raw []byte
	if err := s.db.QueryRow(ctx, query, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, store.ErrNotFound)
		}
		return store.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, mapError(ctx, err))
	}

	fields, err := decode(raw)
	if err != nil {
		return store.Document{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return store.Document{ID: id, Fields: fields}, nil
}

// Query implements store.DocumentStore.
func (s *Store) Query(ctx context.Context, collection string, q store.Query) (docs []store.Document, err error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	sql, args, err := buildQuery(collection, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	ctx, end := database.TraceQuery(ctx, "Query", collection, sql)
	defer func() { end(err) }()

	if idx := store.RequiredIndex(collection, q); idx != "" && s.requireIndexes {
		if err := s.checkIndex(ctx, idx); err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, mapError(ctx, err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		fields, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		docs = append(docs, store.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, mapError(ctx, err))
	}
	return docs, nil
}

// Insert implements store.DocumentStore.
func (s *Store) Insert(ctx context.Context, collection string, fields map[string]any) (id string, err error) {
	const query = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`

	ctx, end := database.TraceQuery(ctx, "Insert", collection, query)
	defer func() { end(err) }()

	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode %s document: %w", collection, err)
	}

	id = uuid.NewString()
	if _, err := s.db.Exec(ctx, query, collection, id, string(data)); err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, mapError(ctx, err))
	}
	return id, nil
}

// Update implements store.DocumentStore. The JSONB concatenation operator
// replaces only the keys present in fields.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) (err error) {
	const query = `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2`

	ctx, end := database.TraceQuery(ctx, "Update", collection, query)
	defer func() { end(err) }()

	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s update: %w", collection, id, err)
	}

	tag, err := s.db.Exec(ctx, query, collection, id, string(data))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, mapError(ctx, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) checkIndex(ctx context.Context, name string) error {
	if _, ok := s.ready.Load(name); ok {
		return nil
	}

	const query = `SELECT EXISTS(SELECT 1 FROM pg_indexes WHERE tablename = $1 AND indexname = $2)`
	var exists bool
	if err := s.db.QueryRow(ctx, query, documentsTable, name).Scan(&exists); err != nil {
		return fmt.Errorf("check index %s: %w", name, mapError(ctx, err))
	}
	if !exists {
		return fmt.Errorf("index %s: %w", name, store.ErrDegradedQuery)
	}
	s.ready.Store(name, true)
	return nil
}

// buildQuery renders q as SQL. Field names are validated by the caller and
// inlined so the expression matches the partial indexes created by the
// migrations; values are always bound.
func buildQuery(collection string, q store.Query) (string, []any, error) {
	var b strings.Builder
	args := []any{collection}

	b.WriteString("SELECT id, data FROM documents WHERE collection = $1")
	for _, f := range q.Filters {
		value, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		args = append(args, string(value))
		fmt.Fprintf(&b, " AND data->'%s' = $%d::jsonb", f.Field, len(args))
	}
	if q.OrderBy != nil {
		// Documents without the field sort as the smallest value, matching
		// the memory store: last when descending, first when ascending.
		dir := "ASC NULLS FIRST"
		if q.OrderBy.Descending {
			dir = "DESC NULLS LAST"
		}
		fmt.Fprintf(&b, " ORDER BY data->'%s' %s, id", q.OrderBy.Field, dir)
	} else {
		b.WriteString(" ORDER BY id")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args, nil
}

// mapError turns missing-index conditions into store.ErrDegradedQuery. A
// statement timeout is a failed fetch, not a degraded one. Caller
// cancellation is reported as such.
func mapError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeObjectNotInPrereq, codeUndefinedTable:
			return fmt.Errorf("%s (SQLSTATE %s): %w", pgErr.Message, pgErr.Code, store.ErrDegradedQuery)
		case codeQueryCanceled:
			return apperrors.Unavailable("the query timed out", err)
		}
	}
	return err
}

func decode(raw []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
