package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/codec"
)

// Backend is the backend name used in wrapped errors, logs and metrics.
const Backend = "redis"

// scanCount is the COUNT hint passed to SCAN.
const scanCount = 256

// ErrInvalidCollectionName marks collection names that cannot be embedded
// in the store's key patterns.
var ErrInvalidCollectionName = errors.New("collection name contains reserved pattern characters")

// patternChars are the glob metacharacters of SCAN MATCH. Names and
// prefixes containing them would corrupt the store's key patterns.
const patternChars = `*?[]\`

// CollectionFactory builds the collection for one GetCollection call in
// place of the default implementation. When a factory is configured on the
// store, every GetCollection delegates to it; the default collection type
// is never constructed. Factory errors are returned to the caller
// unchanged.
type CollectionFactory func(store *Store, name string, opts vecstore.CollectionOptions) (vecstore.Collection, error)

// Store is a vector store over Redis.
//
// The wrapped *redis.Client is shared, not owned: the store never
// connects, pings or closes it, and several stores may sit on the same
// client. Build one with New.
type Store struct {
	client  *redis.Client
	factory CollectionFactory
	prefix  string
	codec   codec.Codec
	logger  *vecstore.Logger
	metrics vecstore.MetricsCollector
	runner  *vecstore.Runner
}

var _ vecstore.Store = (*Store)(nil)

// Client returns the shared Redis client. Closing it is the caller's job.
func (s *Store) Client() *redis.Client {
	return s.client
}

// KeyPrefix returns the prefix under which the store keeps all its keys.
func (s *Store) KeyPrefix() string {
	return s.prefix
}

// GetCollection returns a handle to the named collection. The definition
// is resolved from recordType's vstore tags unless def is non-nil, in
// which case def wins. No Redis access happens here; Ensure writes the
// collection metadata when needed.
//
// With a CollectionFactory configured, construction is delegated to it
// entirely. Otherwise the default Redis collection is built.
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

// ListCollections returns the names of all collections with metadata under
// the store's prefix, in ascending order. A backend without collections
// yields an empty slice.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	start := time.Now()
	names, err := s.listCollections(ctx)
	s.logger.LogListCollections(ctx, len(names), err)
	s.metrics.RecordListCollections(Backend, time.Since(start), err)
	return names, err
}

func (s *Store) listCollections(ctx context.Context) ([]string, error) {
	metaPrefix := s.prefix + "c:"

	keys, err := s.scanKeys(ctx, metaPrefix+"*")
	if err != nil {
		return nil, vecstore.NewBackendError(Backend, "list_collections", err)
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, metaPrefix))
	}
	sort.Strings(names)
	return names, nil
}

// ListCollectionsAsync runs ListCollections on the store's Runner.
func (s *Store) ListCollectionsAsync(ctx context.Context) *vecstore.Future[[]string] {
	return vecstore.RunOn(s.runner, ctx, s.ListCollections)
}

// scanKeys walks the keyspace with SCAN and returns every key matching
// pattern exactly once. SCAN may repeat keys across cursor iterations, so
// results are deduplicated.
func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		seen   = make(map[string]struct{})
		cursor uint64
	)

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, err
		}

		for _, key := range batch {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}

		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func validateName(name string) error {
	if strings.ContainsAny(name, patternChars) {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	return nil
}
