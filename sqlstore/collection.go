package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/distance"
)

// Collection is the default SQL collection implementation. All statements
// are generated once at construction from the store's query provider; the
// operations only bind parameters and scan rows.
type Collection struct {
	store *Store
	name  string
	opts  vecstore.CollectionOptions
	def   *vecstore.Definition
	table string

	createSQL []string
	dropSQL   string
	upsertSQL string
	getSQL    string
	deleteSQL string
}

var _ vecstore.Collection = (*Collection)(nil)

func newCollection(s *Store, name string, opts vecstore.CollectionOptions) (*Collection, error) {
	if err := ValidateIdentifier(name); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	def := opts.Definition()
	if err := validateFieldIdentifiers(def); err != nil {
		return nil, err
	}

	c := &Collection{
		store: s,
		name:  name,
		opts:  opts,
		def:   def,
		table: s.prefix + name,
	}

	var err error
	if c.createSQL, err = s.provider.CreateCollectionSQL(c.table, def); err != nil {
		return nil, fmt.Errorf("%w: %v", vecstore.ErrInvalidDefinition, err)
	}
	c.dropSQL = s.provider.DropCollectionSQL(c.table)
	if c.upsertSQL, err = s.provider.UpsertSQL(c.table, def); err != nil {
		return nil, fmt.Errorf("%w: %v", vecstore.ErrInvalidDefinition, err)
	}
	if c.getSQL, err = s.provider.GetSQL(c.table, def); err != nil {
		return nil, fmt.Errorf("%w: %v", vecstore.ErrInvalidDefinition, err)
	}
	if c.deleteSQL, err = s.provider.DeleteSQL(c.table, def); err != nil {
		return nil, fmt.Errorf("%w: %v", vecstore.ErrInvalidDefinition, err)
	}

	return c, nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Table returns the name of the backing data table.
func (c *Collection) Table() string {
	return c.table
}

// Definition returns the resolved record definition. Read-only.
func (c *Collection) Definition() *vecstore.Definition {
	return c.def
}

// Ensure creates the data table, its indexes, and the registry entry.
// Idempotent. The registry row is written last so a collection only shows
// up in listings once its table exists.
func (c *Collection) Ensure(ctx context.Context) error {
	if err := c.store.Prepare(ctx); err != nil {
		return err
	}

	for _, stmt := range c.createSQL {
		if _, err := c.store.db.ExecContext(ctx, stmt); err != nil {
			return vecstore.NewBackendError(Backend, "ensure", err)
		}
	}

	defJSON, err := c.store.codec.Marshal(c.def)
	if err != nil {
		return vecstore.NewBackendError(Backend, "ensure", err)
	}
	reg := c.store.provider.UpsertRegistrySQL(c.store.registry)
	if _, err := c.store.db.ExecContext(ctx, reg, c.name, string(defJSON)); err != nil {
		return vecstore.NewBackendError(Backend, "ensure", err)
	}

	c.store.logger.DebugContext(ctx, "collection ensured", "collection", c.name, "table", c.table)
	return nil
}

// Exists reports whether the collection is registered in the backend.
func (c *Collection) Exists(ctx context.Context) (bool, error) {
	if err := c.store.Prepare(ctx); err != nil {
		return false, err
	}
	return c.exists(ctx)
}

func (c *Collection) exists(ctx context.Context) (bool, error) {
	var defJSON string
	err := c.store.db.QueryRowContext(ctx, c.store.provider.SelectRegistrySQL(c.store.registry), c.name).Scan(&defJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, vecstore.NewBackendError(Backend, "exists", err)
	}
	return true, nil
}

// Drop removes the data table and the registry entry. Dropping a missing
// collection is not an error.
func (c *Collection) Drop(ctx context.Context) error {
	if err := c.store.Prepare(ctx); err != nil {
		return err
	}

	if _, err := c.store.db.ExecContext(ctx, c.dropSQL); err != nil {
		return vecstore.NewBackendError(Backend, "drop", err)
	}
	if _, err := c.store.db.ExecContext(ctx, c.store.provider.DeleteRegistrySQL(c.store.registry), c.name); err != nil {
		return vecstore.NewBackendError(Backend, "drop", err)
	}

	c.store.logger.DebugContext(ctx, "collection dropped", "collection", c.name, "table", c.table)
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

	args := make([]any, 0, len(c.def.Fields))
	args = append(args, key)
	for _, f := range c.def.DataFields() {
		args = append(args, fields[f.Name])
	}
	if _, ok := c.def.VectorField(); ok {
		v, err := c.store.provider.EncodeVector(vector)
		if err != nil {
			return "", vecstore.NewBackendError(Backend, "upsert", err)
		}
		args = append(args, v)
	}

	if _, err := c.store.db.ExecContext(ctx, c.upsertSQL, args...); err != nil {
		return "", c.missingOr(ctx, "upsert", err)
	}
	return key, nil
}

// Get loads the record stored under key into dest. Returns ErrNotFound
// when no row exists under key.
func (c *Collection) Get(ctx context.Context, key string, dest any) error {
	start := time.Now()
	err := c.get(ctx, key, dest)
	c.store.metrics.RecordGet(c.name, time.Since(start), err)
	return err
}

func (c *Collection) get(ctx context.Context, key string, dest any) error {
	dests, finish := c.scanDests()
	err := c.store.db.QueryRowContext(ctx, c.getSQL, key).Scan(dests...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", vecstore.ErrNotFound, key)
	}
	if err != nil {
		return c.missingOr(ctx, "get", err)
	}

	k, fields, vec, err := finish()
	if err != nil {
		return vecstore.NewBackendError(Backend, "get", err)
	}
	return vecstore.DecodeRecord(c.def, k, fields, vec, dest)
}

// Delete removes the record stored under key. Deleting a missing key is
// not an error.
func (c *Collection) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := c.delete(ctx, key)
	c.store.logger.LogDelete(ctx, c.name, key, err)
	c.store.metrics.RecordDelete(c.name, time.Since(start), err)
	return err
}

func (c *Collection) delete(ctx context.Context, key string) error {
	if _, err := c.store.db.ExecContext(ctx, c.deleteSQL, key); err != nil {
		return c.missingOr(ctx, "delete", err)
	}
	return nil
}

// Search returns the records scoring highest against the query vector,
// best first. With a native provider the database pre-orders and limits
// the rows; either way the final scores come from the distance package so
// they stay comparable across providers.
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

	filterFields, filterArgs, err := c.filterArgs(opts.Filters)
	if err != nil {
		return nil, err
	}

	query, native, err := c.store.provider.SearchSQL(c.table, c.def, filterFields, opts.Limit)
	if err != nil {
		return nil, vecstore.NewBackendError(Backend, "search", err)
	}

	args := filterArgs
	if native {
		qv, err := c.store.provider.EncodeVector(vector)
		if err != nil {
			return nil, vecstore.NewBackendError(Backend, "search", err)
		}
		args = append(args, qv)
	}

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.missingOr(ctx, "search", err)
	}
	defer rows.Close()

	dests, finish := c.scanDests()
	tk := vecstore.NewTopK(opts.Limit)
	for rows.Next() {
		if err := rows.Scan(dests...); err != nil {
			return nil, vecstore.NewBackendError(Backend, "search", err)
		}
		key, fields, vec, err := finish()
		if err != nil {
			return nil, vecstore.NewBackendError(Backend, "search", err)
		}
		if len(vec) != len(vector) {
			continue
		}
		tk.Push(vecstore.Match{
			Key:    key,
			Score:  distance.Score(vf.Metric, vector, vec),
			Fields: fields,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, vecstore.NewBackendError(Backend, "search", err)
	}
	return tk.Sorted(), nil
}

// filterArgs resolves the filter map to a deterministic field order and
// the bind values in that order.
func (c *Collection) filterArgs(filters map[string]any) ([]string, []any, error) {
	if len(filters) == 0 {
		return nil, nil, nil
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		f, ok := c.def.Field(name)
		if !ok || f.Kind != vecstore.DataField {
			return nil, nil, fmt.Errorf("unknown filter field %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	for _, name := range names {
		args = append(args, filters[name])
	}
	return names, args, nil
}

// scanDests builds the scan destinations for one record row in the
// provider row shape: key, data fields, vector. The destinations are
// reusable across rows; finish snapshots the current row.
func (c *Collection) scanDests() ([]any, func() (string, map[string]any, []float32, error)) {
	data := c.def.DataFields()
	dests := make([]any, 0, len(data)+2)

	var key string
	dests = append(dests, &key)

	type fieldDest struct {
		field vecstore.Field
		value any
	}
	fdests := make([]fieldDest, 0, len(data))
	for _, f := range data {
		var d any
		switch f.Type {
		case vecstore.TypeInt:
			d = new(sql.NullInt64)
		case vecstore.TypeFloat:
			d = new(sql.NullFloat64)
		case vecstore.TypeBool:
			d = new(sql.NullBool)
		case vecstore.TypeBytes:
			d = new([]byte)
		default:
			d = new(sql.NullString)
		}
		fdests = append(fdests, fieldDest{field: f, value: d})
		dests = append(dests, d)
	}

	var extractVec func() ([]float32, error)
	if _, ok := c.def.VectorField(); ok {
		d, extract := c.store.provider.VectorDest()
		dests = append(dests, d)
		extractVec = extract
	}

	finish := func() (string, map[string]any, []float32, error) {
		fields := make(map[string]any, len(fdests))
		for _, fd := range fdests {
			switch d := fd.value.(type) {
			case *sql.NullInt64:
				if d.Valid {
					fields[fd.field.Name] = d.Int64
				}
			case *sql.NullFloat64:
				if d.Valid {
					fields[fd.field.Name] = d.Float64
				}
			case *sql.NullBool:
				if d.Valid {
					fields[fd.field.Name] = d.Bool
				}
			case *[]byte:
				if *d != nil {
					fields[fd.field.Name] = *d
				}
			case *sql.NullString:
				if d.Valid {
					fields[fd.field.Name] = d.String
				}
			}
		}

		var vec []float32
		if extractVec != nil {
			v, err := extractVec()
			if err != nil {
				return "", nil, nil, err
			}
			vec = v
		}
		return key, fields, vec, nil
	}

	return dests, finish
}

// missingOr maps a statement failure on an unregistered collection to
// ErrCollectionNotFound; anything else stays a backend error. The registry
// probe only runs on the failure path.
func (c *Collection) missingOr(ctx context.Context, op string, err error) error {
	if ok, exErr := c.exists(ctx); exErr == nil && !ok {
		return fmt.Errorf("%w: %q", vecstore.ErrCollectionNotFound, c.name)
	}
	return vecstore.NewBackendError(Backend, op, err)
}
