package redisstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/distance"
)

const (
	// fetchBatchSize is the number of records fetched per MGET during a
	// search.
	fetchBatchSize = 128

	// fetchConcurrency bounds the parallel MGET batches of one search.
	fetchConcurrency = 8

	// deleteBatchSize is the number of keys removed per DEL during a drop.
	deleteBatchSize = 512
)

// recordPayload is the stored wire form of one record.
type recordPayload struct {
	Fields map[string]any `json:"fields,omitempty"`
	Vector []float32      `json:"vector,omitempty"`
}

// Collection is the default Redis collection implementation. The key
// layout is fixed at construction; the operations only read and write
// under it.
type Collection struct {
	store *Store
	name  string
	opts  vecstore.CollectionOptions
	def   *vecstore.Definition

	metaKey      string
	recordPrefix string
}

var _ vecstore.Collection = (*Collection)(nil)

func newCollection(s *Store, name string, opts vecstore.CollectionOptions) (*Collection, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	return &Collection{
		store:        s,
		name:         name,
		opts:         opts,
		def:          opts.Definition(),
		metaKey:      s.prefix + "c:" + name,
		recordPrefix: s.prefix + "r:" + name + ":",
	}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// MetaKey returns the Redis key holding the collection's metadata.
func (c *Collection) MetaKey() string {
	return c.metaKey
}

// RecordKey returns the Redis key of the record stored under key.
func (c *Collection) RecordKey(key string) string {
	return c.recordPrefix + key
}

// Definition returns the resolved record definition. Read-only.
func (c *Collection) Definition() *vecstore.Definition {
	return c.def
}

// Ensure writes the collection metadata. Idempotent.
func (c *Collection) Ensure(ctx context.Context) error {
	data, err := c.store.codec.Marshal(c.def)
	if err != nil {
		return vecstore.NewBackendError(Backend, "ensure", err)
	}

	if err := c.store.client.Set(ctx, c.metaKey, data, 0).Err(); err != nil {
		return vecstore.NewBackendError(Backend, "ensure", err)
	}

	c.store.logger.DebugContext(ctx, "collection ensured", "collection", c.name)
	return nil
}

// Exists reports whether the collection metadata is present.
func (c *Collection) Exists(ctx context.Context) (bool, error) {
	n, err := c.store.client.Exists(ctx, c.metaKey).Result()
	if err != nil {
		return false, vecstore.NewBackendError(Backend, "exists", err)
	}
	return n > 0, nil
}

// Drop removes all records and then the metadata, so a collection stays
// listed until its records are gone. Dropping a missing collection is not
// an error.
func (c *Collection) Drop(ctx context.Context) error {
	keys, err := c.store.scanKeys(ctx, c.recordPrefix+"*")
	if err != nil {
		return vecstore.NewBackendError(Backend, "drop", err)
	}

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		if err := c.store.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return vecstore.NewBackendError(Backend, "drop", err)
		}
	}

	if err := c.store.client.Del(ctx, c.metaKey).Err(); err != nil {
		return vecstore.NewBackendError(Backend, "drop", err)
	}

	c.store.logger.DebugContext(ctx, "collection dropped", "collection", c.name, "records", len(keys))
	return nil
}

// Upsert inserts or replaces one record and returns its key. Records with
// an empty key field get a generated UUID key.
func (c *Collection) Upsert(ctx context.Context, record any) (string, error) {
	start := time.Now()
	key, err := c.upsert(ctx, record)
	c.store.logger.LogUpsert(ctx, c.name, key, err)
	c.store.metrics.RecordUpsert(c.name, time.Since(start), err)
	return key, err
}

func (c *Collection) upsert(ctx context.Context, record any) (string, error) {
	key, fields, vector, err := vecstore.EncodeRecord(c.def, record)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = uuid.NewString()
	}

	if err := c.requireExists(ctx); err != nil {
		return "", err
	}

	data, err := c.store.codec.Marshal(recordPayload{Fields: fields, Vector: vector})
	if err != nil {
		return "", vecstore.NewBackendError(Backend, "upsert", err)
	}

	if err := c.store.client.Set(ctx, c.recordPrefix+key, data, 0).Err(); err != nil {
		return "", vecstore.NewBackendError(Backend, "upsert", err)
	}
	return key, nil
}

// Get loads the record stored under key into dest. Returns ErrNotFound
// when no record exists under key.
func (c *Collection) Get(ctx context.Context, key string, dest any) error {
	start := time.Now()
	err := c.get(ctx, key, dest)
	c.store.metrics.RecordGet(c.name, time.Since(start), err)
	return err
}

func (c *Collection) get(ctx context.Context, key string, dest any) error {
	if err := c.requireExists(ctx); err != nil {
		return err
	}

	data, err := c.store.client.Get(ctx, c.recordPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %q", vecstore.ErrNotFound, key)
	}
	if err != nil {
		return vecstore.NewBackendError(Backend, "get", err)
	}

	fields, vector, err := c.decodePayload(data)
	if err != nil {
		return vecstore.NewBackendError(Backend, "get", err)
	}
	return vecstore.DecodeRecord(c.def, key, fields, vector, dest)
}

// Delete removes the record stored under key. Deleting a missing key is
// not an error.
func (c *Collection) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := c.deleteKey(ctx, key)
	c.store.logger.LogDelete(ctx, c.name, key, err)
	c.store.metrics.RecordDelete(c.name, time.Since(start), err)
	return err
}

func (c *Collection) deleteKey(ctx context.Context, key string) error {
	if err := c.requireExists(ctx); err != nil {
		return err
	}

	if err := c.store.client.Del(ctx, c.recordPrefix+key).Err(); err != nil {
		return vecstore.NewBackendError(Backend, "delete", err)
	}
	return nil
}

// Search returns the records scoring highest against the query vector,
// best first. The collection's records are scanned and fetched in bounded
// parallel batches; filtering and scoring happen client-side.
func (c *Collection) Search(ctx context.Context, vector []float32, optFns ...vecstore.SearchOption) ([]vecstore.Match, error) {
	opts := vecstore.NewSearchOptions(optFns...)
	start := time.Now()
	matches, err := c.search(ctx, vector, opts)
	c.store.logger.LogSearch(ctx, c.name, opts.Limit, len(matches), err)
	c.store.metrics.RecordSearch(c.name, opts.Limit, time.Since(start), err)
	return matches, err
}

func (c *Collection) search(ctx context.Context, vector []float32, opts vecstore.SearchOptions) ([]vecstore.Match, error) {
	vf, ok := c.def.VectorField()
	if !ok {
		return nil, fmt.Errorf("%w: collection %q has no vector field", vecstore.ErrInvalidDefinition, c.name)
	}
	if len(vector) != vf.Dimensions {
		return nil, &vecstore.ErrDimensionMismatch{Expected: vf.Dimensions, Actual: len(vector)}
	}

	filters, err := c.canonicalFilters(opts.Filters)
	if err != nil {
		return nil, err
	}

	if err := c.requireExists(ctx); err != nil {
		return nil, err
	}

	keys, err := c.store.scanKeys(ctx, c.recordPrefix+"*")
	if err != nil {
		return nil, vecstore.NewBackendError(Backend, "search", err)
	}

	batches := make([][]string, 0, len(keys)/fetchBatchSize+1)
	for start := 0; start < len(keys); start += fetchBatchSize {
		end := min(start+fetchBatchSize, len(keys))
		batches = append(batches, keys[start:end])
	}

	results := make([][]vecstore.Match, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for i, batch := range batches {
		g.Go(func() error {
			found, err := c.fetchAndScore(gctx, batch, vector, vf, filters)
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, vecstore.NewBackendError(Backend, "search", err)
	}

	tk := vecstore.NewTopK(opts.Limit)
	for _, found := range results {
		for _, m := range found {
			tk.Push(m)
		}
	}
	return tk.Sorted(), nil
}

// fetchAndScore loads one batch of record keys and returns the matches
// that pass the filters. Keys deleted between scan and fetch come back as
// nil values and are skipped.
func (c *Collection) fetchAndScore(ctx context.Context, keys []string, query []float32, vf vecstore.Field, filters []filter) ([]vecstore.Match, error) {
	vals, err := c.store.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	matches := make([]vecstore.Match, 0, len(keys))
	for i, val := range vals {
		raw, ok := val.(string)
		if !ok {
			continue
		}

		fields, vec, err := c.decodePayload([]byte(raw))
		if err != nil {
			return nil, err
		}
		if len(vec) != len(query) || !matchesAll(fields, filters) {
			continue
		}

		matches = append(matches, vecstore.Match{
			Key:    keys[i][len(c.recordPrefix):],
			Score:  distance.Score(vf.Metric, query, vec),
			Fields: fields,
		})
	}
	return matches, nil
}

// filter is one equality constraint with its value in canonical form.
type filter struct {
	name  string
	value any
}

// canonicalFilters validates the filter map and normalizes the values, in
// deterministic field order.
func (c *Collection) canonicalFilters(filters map[string]any) ([]filter, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]filter, 0, len(names))
	for _, name := range names {
		f, ok := c.def.Field(name)
		if !ok || f.Kind != vecstore.DataField {
			return nil, fmt.Errorf("unknown filter field %q", name)
		}
		val, err := vecstore.CanonicalFieldValue(f, filters[name])
		if err != nil {
			return nil, err
		}
		out = append(out, filter{name: name, value: val})
	}
	return out, nil
}

func matchesAll(fields map[string]any, filters []filter) bool {
	for _, f := range filters {
		val, ok := fields[f.name]
		if !ok || !vecstore.FieldValueEqual(val, f.value) {
			return false
		}
	}
	return true
}

// requireExists fails with ErrCollectionNotFound when the collection has
// no metadata. Records are plain keys in Redis, so this check is what
// keeps operations on unensured collections from silently succeeding.
func (c *Collection) requireExists(ctx context.Context) error {
	n, err := c.store.client.Exists(ctx, c.metaKey).Result()
	if err != nil {
		return vecstore.NewBackendError(Backend, "exists", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", vecstore.ErrCollectionNotFound, c.name)
	}
	return nil
}

// decodePayload unmarshals a stored record and undoes the widening the
// codec applies to canonical field values: numbers for int fields come
// back as float64, bytes as base64 strings.
func (c *Collection) decodePayload(data []byte) (map[string]any, []float32, error) {
	var payload recordPayload
	if err := c.store.codec.Unmarshal(data, &payload); err != nil {
		return nil, nil, err
	}

	for _, f := range c.def.DataFields() {
		val, ok := payload.Fields[f.Name]
		if !ok || val == nil {
			continue
		}
		switch f.Type {
		case vecstore.TypeInt:
			if n, ok := val.(float64); ok {
				payload.Fields[f.Name] = int64(n)
			}
		case vecstore.TypeBytes:
			if s, ok := val.(string); ok {
				b, err := base64.StdEncoding.DecodeString(s)
				if err != nil {
					return nil, nil, fmt.Errorf("field %q: %w", f.Name, err)
				}
				payload.Fields[f.Name] = b
			}
		}
	}

	return payload.Fields, payload.Vector, nil
}
