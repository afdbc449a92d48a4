package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"chat-sync/internal/observability"
	"chat-sync/internal/store"
)

// Store is a sqlx/Postgres implementation of store.Store. Each document is
// one JSONB row keyed by (collection, id). Change notifications are fanned
// out in-process after the write commits.
type Store struct {
	db       *sqlx.DB
	log      *zap.Logger
	notifier *notifier
}

// Connect opens the database, runs migrations and returns a ready Store.
func Connect(dsn string, log *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")
	return New(db, log), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log, notifier: newNotifier()}
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
            collection TEXT NOT NULL,
            id TEXT NOT NULL,
            data JSONB NOT NULL,
            updated_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY (collection, id)
        );`,
		`CREATE INDEX IF NOT EXISTS documents_username_idx
            ON documents ((data->>'username')) WHERE collection = 'users';`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Get performs a point read of one document.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	started := time.Now()
	var data []byte
	err := s.db.GetContext(ctx, &data,
		`SELECT data FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		err = store.ErrNotFound
	}
	observability.ObserveStoreOp("get", collection, started, err)
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: data}, nil
}

// Set creates or fully overwrites a document and notifies subscribers.
func (s *Store) Set(ctx context.Context, collection, id string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	started := time.Now()
	var data []byte
	err = s.db.QueryRowxContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
         ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
         RETURNING data`,
		collection, id, body).Scan(&data)
	observability.ObserveStoreOp("set", collection, started, err)
	if err != nil {
		return err
	}

	s.notifier.publish(collection, id, snapshot(id, data))
	return nil
}

// Update merges named fields into an existing document. An ArrayUnion value
// appends to the named array field within the same statement; everything else
// replaces the field. Returns store.ErrNotFound when the document is missing.
func (s *Store) Update(ctx context.Context, collection, id string, merges store.Merges) error {
	// Field names are code-supplied constants, never user input, so they are
	// interpolated into the jsonb path literals directly.
	expr := "data"
	args := []any{collection, id}
	plain := map[string]any{}

	for field, value := range merges {
		union, ok := value.(store.ArrayUnion)
		if !ok {
			plain[field] = value
			continue
		}
		elems, err := json.Marshal(union.Elems)
		if err != nil {
			return fmt.Errorf("encode array elements: %w", err)
		}
		args = append(args, elems)
		expr = fmt.Sprintf(
			"jsonb_set(%s, '{%s}', COALESCE(data->'%s', '[]'::jsonb) || $%d::jsonb)",
			expr, field, field, len(args))
	}
	if len(plain) > 0 {
		body, err := json.Marshal(plain)
		if err != nil {
			return fmt.Errorf("encode merges: %w", err)
		}
		args = append(args, body)
		expr = fmt.Sprintf("%s || $%d::jsonb", expr, len(args))
	}

	started := time.Now()
	var data []byte
	err := s.db.QueryRowxContext(ctx, fmt.Sprintf(
		`UPDATE documents SET data = %s, updated_at = NOW()
         WHERE collection=$1 AND id=$2 RETURNING data`, expr), args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		err = store.ErrNotFound
	}
	observability.ObserveStoreOp("update", collection, started, err)
	if err != nil {
		return err
	}

	s.notifier.publish(collection, id, snapshot(id, data))
	return nil
}

// Query returns all documents of a collection whose field equals value.
func (s *Store) Query(ctx context.Context, collection, field, value string) ([]store.Document, error) {
	started := time.Now()
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, data FROM documents WHERE collection=$1 AND data->>$2 = $3`,
		collection, field, value)
	observability.ObserveStoreOp("query", collection, started, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		docs = append(docs, store.Document{ID: id, Data: data})
	}
	return docs, rows.Err()
}

// Subscribe registers a change listener for one document path. The current
// document state is delivered as the first snapshot (Exists=false when it has
// not been created yet). Registration happens before the initial read, so a
// write racing the subscription may be observed twice; consumers recompute
// derived state from full snapshots, which makes redelivery harmless.
func (s *Store) Subscribe(collection, id string, onChange func(store.Snapshot), onError func(error)) func() {
	sub := &subscriber{onChange: onChange, onError: onError}
	cancel := s.notifier.add(collection, id, sub)
	observability.IncSubscriptions(collection)

	go func() {
		doc, err := s.Get(context.Background(), collection, id)
		if errors.Is(err, store.ErrNotFound) {
			sub.deliver(store.Snapshot{Document: store.Document{ID: id}, Exists: false})
			return
		}
		if err != nil {
			s.log.Warn("initial subscription read failed",
				zap.String("collection", collection), zap.String("id", id), zap.Error(err))
			sub.fail(err)
			return
		}
		sub.deliver(store.Snapshot{Document: doc, Exists: true})
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			observability.DecSubscriptions(collection)
		})
	}
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func snapshot(id string, data []byte) store.Snapshot {
	return store.Snapshot{Document: store.Document{ID: id, Data: data}, Exists: true}
}
