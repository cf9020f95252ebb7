package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/codec"
)

// Backend is the backend name used in wrapped errors, logs and metrics.
const Backend = "sql"

// ErrInvalidCollectionName marks collection names that cannot serve as SQL
// identifiers. The data table name is built from the collection name, so
// the same character rules apply.
var ErrInvalidCollectionName = errors.New("collection name is not a valid sql identifier")

// CollectionFactory builds the collection for one GetCollection call in
// place of the default implementation. When a factory is configured on the
// store, every GetCollection delegates to it; the default collection type
// is never constructed. Factory errors are returned to the caller
// unchanged.
type CollectionFactory func(store *Store, name string, opts vecstore.CollectionOptions) (vecstore.Collection, error)

// Store is a vector store over a relational database.
//
// The wrapped *sql.DB is shared, not owned: the store never opens, pings
// or closes it, and several stores may sit on the same handle. Build one
// with New.
type Store struct {
	db       *sql.DB
	provider QueryProvider
	factory  CollectionFactory
	registry string
	prefix   string
	codec    codec.Codec
	logger   *vecstore.Logger
	metrics  vecstore.MetricsCollector
	runner   *vecstore.Runner

	prepared   atomic.Bool
	prepareSFG singleflight.Group
}

var (
	_ vecstore.Store    = (*Store)(nil)
	_ vecstore.Preparer = (*Store)(nil)
)

// DB returns the shared database handle. Closing it is the caller's job.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Provider returns the query provider resolved at build time.
func (s *Store) Provider() QueryProvider {
	return s.provider
}

// GetCollection returns a handle to the named collection. The definition
// is resolved from recordType's vstore tags unless def is non-nil, in
// which case def wins. No database access happens here; Ensure creates the
// backing table when needed.
//
// With a CollectionFactory configured, construction is delegated to it
// entirely. Otherwise the default SQL collection is built.
func (s *Store) GetCollection(name string, recordType any, def *vecstore.Definition) (vecstore.Collection, error) {
	if name == "" {
		s.logger.LogGetCollection(name, s.factory != nil, vecstore.ErrEmptyCollectionName)
		s.metrics.RecordGetCollection(Backend, s.factory != nil, vecstore.ErrEmptyCollectionName)
		return nil, vecstore.ErrEmptyCollectionName
	}

	opts, err := vecstore.NewCollectionOptions(recordType, def)
	if err != nil {
		s.logger.LogGetCollection(name, s.factory != nil, err)
		s.metrics.RecordGetCollection(Backend, s.factory != nil, err)
		return nil, err
	}

	if s.factory != nil {
		col, err := s.factory(s, name, opts)
		s.logger.LogGetCollection(name, true, err)
		s.metrics.RecordGetCollection(Backend, true, err)
		return col, err
	}

	col, err := newCollection(s, name, opts)
	if err != nil {
		s.logger.LogGetCollection(name, false, err)
		s.metrics.RecordGetCollection(Backend, false, err)
		return nil, err
	}
	s.logger.LogGetCollection(name, false, nil)
	s.metrics.RecordGetCollection(Backend, false, nil)
	return col, nil
}

// ListCollections returns the names of all registered collections in
// ascending order. A backend without collections yields an empty slice.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	start := time.Now()
	names, err := s.listCollections(ctx)
	s.logger.LogListCollections(ctx, len(names), err)
	s.metrics.RecordListCollections(Backend, time.Since(start), err)
	return names, err
}

func (s *Store) listCollections(ctx context.Context) ([]string, error) {
	if err := s.Prepare(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.provider.ListRegistrySQL(s.registry))
	if err != nil {
		return nil, vecstore.NewBackendError(Backend, "list_collections", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, vecstore.NewBackendError(Backend, "list_collections", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, vecstore.NewBackendError(Backend, "list_collections", err)
	}
	return names, nil
}

// ListCollectionsAsync runs ListCollections on the store's Runner.
func (s *Store) ListCollectionsAsync(ctx context.Context) *vecstore.Future[[]string] {
	return vecstore.RunOn(s.runner, ctx, s.ListCollections)
}

// Prepare creates the collection registry. It runs at most once per store:
// repeated and concurrent calls after a success are no-ops, a failed
// attempt leaves the store unprepared so the next call retries.
func (s *Store) Prepare(ctx context.Context) error {
	if s.prepared.Load() {
		return nil
	}

	start := time.Now()
	_, err, _ := s.prepareSFG.Do("prepare", func() (any, error) {
		if s.prepared.Load() {
			return nil, nil
		}
		for _, stmt := range s.provider.CreateRegistrySQL(s.registry) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return nil, vecstore.NewBackendError(Backend, "prepare", err)
			}
		}
		s.prepared.Store(true)
		return nil, nil
	})
	s.logger.LogPrepare(ctx, err)
	s.metrics.RecordPrepare(Backend, time.Since(start), err)
	return err
}

// PrepareAsync runs Prepare on the store's Runner.
func (s *Store) PrepareAsync(ctx context.Context) *vecstore.Future[struct{}] {
	return vecstore.RunOn(s.runner, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.Prepare(ctx)
	})
}
