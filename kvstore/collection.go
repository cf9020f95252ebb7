package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/hashdb"
)

// Collection is the default hashdb collection implementation. It stores
// each record as one namespace entry in canonical field form, with indexed
// data fields mirrored into the namespace's equality postings.
type Collection struct {
	store   *Store
	name    string
	opts    vecstore.CollectionOptions
	def     *vecstore.Definition
	indexed []string
}

var _ vecstore.Collection = (*Collection)(nil)

func newCollection(s *Store, name string, opts vecstore.CollectionOptions) (*Collection, error) {
	if strings.HasPrefix(name, reservedPrefix) {
		return nil, fmt.Errorf("%w: %q", ErrReservedCollectionName, name)
	}

	def := opts.Definition()

	var indexed []string
	for _, f := range def.DataFields() {
		if f.Indexed {
			indexed = append(indexed, f.Name)
		}
	}

	return &Collection{
		store:   s,
		name:    name,
		opts:    opts,
		def:     def,
		indexed: indexed,
	}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Definition returns the resolved record definition. Read-only.
func (c *Collection) Definition() *vecstore.Definition {
	return c.def
}

// Ensure creates the backing namespace with its equality postings and
// records the collection in the metadata namespace. Idempotent. The
// metadata record is written last so a collection only shows up in
// listings once its namespace exists.
func (c *Collection) Ensure(ctx context.Context) error {
	if err := c.store.Prepare(ctx); err != nil {
		return err
	}

	if err := c.store.db.CreateNamespace(c.name, c.indexed...); err != nil && !errors.Is(err, hashdb.ErrNamespaceExists) {
		return vecstore.NewBackendError(Backend, "ensure", err)
	}

	defJSON, err := c.store.codec.Marshal(c.def)
	if err != nil {
		return vecstore.NewBackendError(Backend, "ensure", err)
	}
	meta := hashdb.Record{Fields: map[string]any{"definition": string(defJSON)}}
	if err := c.store.db.Set(MetaNamespace, c.name, meta); err != nil {
		return vecstore.NewBackendError(Backend, "ensure", err)
	}

	c.store.logger.DebugContext(ctx, "collection ensured", "collection", c.name)
	return nil
}

// Exists reports whether the collection is recorded in the backend.
func (c *Collection) Exists(ctx context.Context) (bool, error) {
	if err := c.store.Prepare(ctx); err != nil {
		return false, err
	}

	_, err := c.store.db.Get(MetaNamespace, c.name)
	if errors.Is(err, hashdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, vecstore.NewBackendError(Backend, "exists", err)
	}
	return true, nil
}

// Drop removes the namespace and the metadata record. Dropping a missing
// collection is not an error.
func (c *Collection) Drop(ctx context.Context) error {
	if err := c.store.Prepare(ctx); err != nil {
		return err
	}

	c.store.db.DropNamespace(c.name)
	if err := c.store.db.Delete(MetaNamespace, c.name); err != nil {
		return vecstore.NewBackendError(Backend, "drop", err)
	}

	c.store.logger.DebugContext(ctx, "collection dropped", "collection", c.name)
	return nil
}

// Upsert inserts or replaces one record and returns its key. Records with
// an empty key field get a generated UUID key.
func (c *Collection) Upsert(ctx context.Context, record any) (string, error) {
	start := time.Now()
	key, err := c.upsert(record)
	c.store.logger.LogUpsert(ctx, c.name, key, err)
	c.store.metrics.RecordUpsert(c.name, time.Since(start), err)
	return key, err
}

func (c *Collection) upsert(record any) (string, error) {
	key, fields, vector, err := vecstore.EncodeRecord(c.def, record)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = uuid.NewString()
	}

	if err := c.store.db.Set(c.name, key, hashdb.Record{Fields: fields, Vector: vector}); err != nil {
		return "", c.mapErr("upsert", err)
	}
	return key, nil
}

// Get loads the record stored under key into dest. Returns ErrNotFound
// when no record exists under key.
func (c *Collection) Get(ctx context.Context, key string, dest any) error {
	start := time.Now()
	err := c.get(key, dest)
	c.store.metrics.RecordGet(c.name, time.Since(start), err)
	return err
}

func (c *Collection) get(key string, dest any) error {
	rec, err := c.store.db.Get(c.name, key)
	if errors.Is(err, hashdb.ErrKeyNotFound) {
		return fmt.Errorf("%w: %q", vecstore.ErrNotFound, key)
	}
	if err != nil {
		return c.mapErr("get", err)
	}
	return vecstore.DecodeRecord(c.def, key, rec.Fields, rec.Vector, dest)
}

// Delete removes the record stored under key. Deleting a missing key is
// not an error.
func (c *Collection) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := c.deleteKey(key)
	c.store.logger.LogDelete(ctx, c.name, key, err)
	c.store.metrics.RecordDelete(c.name, time.Since(start), err)
	return err
}

func (c *Collection) deleteKey(key string) error {
	if err := c.store.db.Delete(c.name, key); err != nil {
		return c.mapErr("delete", err)
	}
	return nil
}

// Search returns the records scoring highest against the query vector,
// best first. Filters on indexed fields narrow the candidates through the
// namespace's postings before any vector math; remaining filters apply
// during the scan.
func (c *Collection) Search(ctx context.Context, vector []float32, optFns ...vecstore.SearchOption) ([]vecstore.Match, error) {
	opts := vecstore.NewSearchOptions(optFns...)
	start := time.Now()
	matches, err := c.search(vector, opts)
	c.store.logger.LogSearch(ctx, c.name, opts.Limit, len(matches), err)
	c.store.metrics.RecordSearch(c.name, opts.Limit, time.Since(start), err)
	return matches, err
}

func (c *Collection) search(vector []float32, opts vecstore.SearchOptions) ([]vecstore.Match, error) {
	vf, ok := c.def.VectorField()
	if !ok {
		return nil, fmt.Errorf("%w: collection %q has no vector field", vecstore.ErrInvalidDefinition, c.name)
	}
	if len(vector) != vf.Dimensions {
		return nil, &vecstore.ErrDimensionMismatch{Expected: vf.Dimensions, Actual: len(vector)}
	}

	indexed, scanned, err := c.partitionFilters(opts.Filters)
	if err != nil {
		return nil, err
	}

	tk := vecstore.NewTopK(opts.Limit)
	if len(indexed) > 0 {
		err = c.searchByIndex(tk, vector, vf, indexed, scanned)
	} else {
		err = c.searchByScan(tk, vector, vf, scanned)
	}
	if err != nil {
		return nil, err
	}
	return tk.Sorted(), nil
}

// filter is one equality constraint with its value in canonical form.
type filter struct {
	name  string
	value any
}

// partitionFilters validates the filter map and splits it into filters
// answered by postings and filters applied during the scan, each in
// deterministic field order.
func (c *Collection) partitionFilters(filters map[string]any) (indexed, scanned []filter, err error) {
	if len(filters) == 0 {
		return nil, nil, nil
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f, ok := c.def.Field(name)
		if !ok || f.Kind != vecstore.DataField {
			return nil, nil, fmt.Errorf("unknown filter field %q", name)
		}
		val, err := vecstore.CanonicalFieldValue(f, filters[name])
		if err != nil {
			return nil, nil, err
		}
		if f.Indexed {
			indexed = append(indexed, filter{name: name, value: val})
		} else {
			scanned = append(scanned, filter{name: name, value: val})
		}
	}
	return indexed, scanned, nil
}

// searchByIndex narrows candidates through the postings and loads only the
// surviving keys. Namespaces created before a field was declared indexed
// reject Find; those searches fall back to a full scan.
func (c *Collection) searchByIndex(tk *vecstore.TopK, query []float32, vf vecstore.Field, indexed, scanned []filter) error {
	var candidates []string
	for i, f := range indexed {
		keys, err := c.store.db.Find(c.name, f.name, f.value)
		if err != nil {
			if errors.Is(err, hashdb.ErrFieldNotIndexed) {
				return c.searchByScan(tk, query, vf, append(scanned, indexed...))
			}
			return c.mapErr("search", err)
		}
		if i == 0 {
			candidates = keys
		} else {
			candidates = intersect(candidates, keys)
		}
		if len(candidates) == 0 {
			return nil
		}
	}

	for _, key := range candidates {
		rec, err := c.store.db.Get(c.name, key)
		if errors.Is(err, hashdb.ErrKeyNotFound) {
			// Deleted between Find and Get.
			continue
		}
		if err != nil {
			return c.mapErr("search", err)
		}
		if len(rec.Vector) != len(query) || !matchesAll(rec.Fields, scanned) {
			continue
		}
		tk.Push(vecstore.Match{
			Key:    key,
			Score:  distance.Score(vf.Metric, query, rec.Vector),
			Fields: rec.Fields,
		})
	}
	return nil
}

// searchByScan visits every record. The scan callback aliases namespace
// storage, so fields are copied before they land in a match.
func (c *Collection) searchByScan(tk *vecstore.TopK, query []float32, vf vecstore.Field, filters []filter) error {
	err := c.store.db.Scan(c.name, func(key string, rec hashdb.Record) bool {
		if len(rec.Vector) != len(query) || !matchesAll(rec.Fields, filters) {
			return true
		}
		fields := make(map[string]any, len(rec.Fields))
		for k, v := range rec.Fields {
			fields[k] = v
		}
		tk.Push(vecstore.Match{
			Key:    key,
			Score:  distance.Score(vf.Metric, query, rec.Vector),
			Fields: fields,
		})
		return true
	})
	if err != nil {
		return c.mapErr("search", err)
	}
	return nil
}

// mapErr translates hashdb errors into the store's error vocabulary.
func (c *Collection) mapErr(op string, err error) error {
	if errors.Is(err, hashdb.ErrNamespaceNotFound) {
		return fmt.Errorf("%w: %q", vecstore.ErrCollectionNotFound, c.name)
	}
	return vecstore.NewBackendError(Backend, op, err)
}

// matchesAll applies equality filters to a record's fields. Numbers match
// across widths so filters keep working after a snapshot restore widens
// stored integers.
func matchesAll(fields map[string]any, filters []filter) bool {
	for _, f := range filters {
		val, ok := fields[f.name]
		if !ok || !vecstore.FieldValueEqual(val, f.value) {
			return false
		}
	}
	return true
}

// intersect merges two sorted key slices.
func intersect(a, b []string) []string {
	out := make([]string, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}
