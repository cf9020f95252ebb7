package vecstore

import "context"

// Collection is a backend-bound handle to one named group of records.
//
// Instances are produced by a Store's GetCollection (directly or through a
// configured CollectionFactory) and share the store's backend handle. They
// hold no other backend state, so acquiring the same collection twice yields
// independent but equivalent handles.
type Collection interface {
	// Name returns the collection name, unique within the store's backend.
	Name() string

	// Ensure creates the backend structures for this collection if they do
	// not exist yet. Idempotent.
	Ensure(ctx context.Context) error

	// Exists reports whether the collection exists in the backend.
	Exists(ctx context.Context) (bool, error)

	// Drop removes the collection and all of its records.
	Drop(ctx context.Context) error

	// Upsert inserts or replaces one record and returns its key. Records
	// with an empty key field get a generated key.
	Upsert(ctx context.Context, record any) (string, error)

	// Get loads the record stored under key into dest, a pointer to a
	// struct with vstore tags or a *map[string]any. Returns ErrNotFound
	// when no record exists under key.
	Get(ctx context.Context, key string, dest any) error

	// Delete removes the record stored under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Search returns the records scoring highest against the query vector,
	// best first. Scores follow the higher-is-better convention of the
	// collection's vector field metric.
	Search(ctx context.Context, vector []float32, optFns ...SearchOption) ([]Match, error)
}

// Match is a single search hit.
type Match struct {
	Key    string
	Score  float32
	Fields map[string]any
}

// DefaultSearchLimit bounds result sets when no explicit limit is given.
const DefaultSearchLimit = 10

// SearchOptions holds resolved search parameters.
type SearchOptions struct {
	// Limit caps the number of matches returned.
	Limit int

	// Filters are equality constraints on data fields; a record must match
	// all of them to be scored.
	Filters map[string]any
}

// SearchOption configures a Search call.
type SearchOption func(*SearchOptions)

// NewSearchOptions applies optFns over the defaults. Used by collection
// implementations; callers pass SearchOption values to Search directly.
func NewSearchOptions(optFns ...SearchOption) SearchOptions {
	opts := SearchOptions{
		Limit: DefaultSearchLimit,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}
	return opts
}

// WithLimit sets the maximum number of matches to return.
func WithLimit(limit int) SearchOption {
	return func(o *SearchOptions) {
		o.Limit = limit
	}
}

// WithFilter adds an equality constraint on a data field. Multiple filters
// combine with AND semantics.
func WithFilter(field string, value any) SearchOption {
	return func(o *SearchOptions) {
		if o.Filters == nil {
			o.Filters = make(map[string]any)
		}
		o.Filters[field] = value
	}
}
