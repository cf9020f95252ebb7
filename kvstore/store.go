package kvstore

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/hashdb"
)

// Backend is the backend name used in wrapped errors, logs and metrics.
const Backend = "kv"

const (
	// MetaNamespace records every ensured collection: one record per
	// collection, keyed by collection name, carrying the marshaled
	// definition.
	MetaNamespace = "__definitions"

	// reservedPrefix marks namespaces owned by the store itself.
	reservedPrefix = "__"
)

// ErrReservedCollectionName marks collection names that collide with the
// store's own namespaces.
var ErrReservedCollectionName = errors.New(`collection names must not start with "__"`)

// CollectionFactory builds the collection for one GetCollection call in
// place of the default implementation. When a factory is configured on the
// store, every GetCollection delegates to it; the default collection type
// is never constructed. Factory errors are returned to the caller
// unchanged.
type CollectionFactory func(store *Store, name string, opts vecstore.CollectionOptions) (vecstore.Collection, error)

// Store is a vector store over an embedded hashdb database.
//
// The wrapped *hashdb.DB is shared, not owned: the store never opens or
// replaces it, and several stores may sit on the same handle. Build one
// with New.
type Store struct {
	db      *hashdb.DB
	factory CollectionFactory
	codec   codec.Codec
	logger  *vecstore.Logger
	metrics vecstore.MetricsCollector
	runner  *vecstore.Runner

	prepared atomic.Bool
}

var (
	_ vecstore.Store    = (*Store)(nil)
	_ vecstore.Preparer = (*Store)(nil)
)

// DB returns the shared database handle.
func (s *Store) DB() *hashdb.DB {
	return s.db
}

// GetCollection returns a handle to the named collection. The definition
// is resolved from recordType's vstore tags unless def is non-nil, in
// which case def wins. No database access happens here; Ensure creates the
// backing namespace when needed.
//
// With a CollectionFactory configured, construction is delegated to it
// entirely. Otherwise the default hashdb collection is built.
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

// ListCollections returns the names of all ensured collections in
// ascending order. Namespaces created directly on the shared handle do not
// appear. A backend without collections yields an empty slice.
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

	keys, err := s.db.Keys(MetaNamespace)
	if err != nil {
		return nil, vecstore.NewBackendError(Backend, "list_collections", err)
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, reservedPrefix) {
			continue
		}
		names = append(names, key)
	}
	return names, nil
}

// ListCollectionsAsync runs ListCollections on the store's Runner.
func (s *Store) ListCollectionsAsync(ctx context.Context) *vecstore.Future[[]string] {
	return vecstore.RunOn(s.runner, ctx, s.ListCollections)
}

// Prepare creates the metadata namespace. Idempotent: namespace creation
// is atomic, so repeated and concurrent calls cannot conflict.
func (s *Store) Prepare(ctx context.Context) error {
	if s.prepared.Load() {
		return nil
	}

	start := time.Now()
	err := s.db.CreateNamespace(MetaNamespace)
	if err != nil && !errors.Is(err, hashdb.ErrNamespaceExists) {
		err = vecstore.NewBackendError(Backend, "prepare", err)
	} else {
		err = nil
		s.prepared.Store(true)
	}
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
