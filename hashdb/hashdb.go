package hashdb

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/hupe1980/vecstore/codec"
)

// Errors returned by DB operations.
var (
	ErrNamespaceExists   = errors.New("hashdb: namespace already exists")
	ErrNamespaceNotFound = errors.New("hashdb: namespace not found")
	ErrKeyNotFound       = errors.New("hashdb: key not found")
	ErrFieldNotIndexed   = errors.New("hashdb: field not indexed")
)

// Record is a single entry: scalar fields plus an optional vector.
type Record struct {
	Fields map[string]any `json:"fields,omitempty"`
	Vector []float32      `json:"vector,omitempty"`
}

func cloneRecord(rec Record) Record {
	out := Record{}

	if rec.Fields != nil {
		out.Fields = make(map[string]any, len(rec.Fields))
		for k, v := range rec.Fields {
			out.Fields[k] = v
		}
	}

	if rec.Vector != nil {
		out.Vector = make([]float32, len(rec.Vector))
		copy(out.Vector, rec.Vector)
	}

	return out
}

// DB is an in-memory hash database partitioned into namespaces. All methods
// are safe for concurrent use.
type DB struct {
	namespaces *xsync.MapOf[string, *namespace]

	logger      *slog.Logger
	codec       codec.Codec
	compression Compression
	ioRate      int64
}

// Option defines a configuration option for the DB.
type Option func(*DB)

// WithLogger sets the logger for the database.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// WithCodec sets the codec used to serialize snapshots.
func WithCodec(c codec.Codec) Option {
	return func(db *DB) {
		if c != nil {
			db.codec = c
		}
	}
}

// WithSnapshotCompression sets the compression algorithm for snapshots.
func WithSnapshotCompression(c Compression) Option {
	return func(db *DB) {
		db.compression = c
	}
}

// WithSnapshotRateLimit throttles snapshot IO to the given bytes per
// second. A value of 0 or less disables throttling.
func WithSnapshotRateLimit(bytesPerSec int64) Option {
	return func(db *DB) {
		db.ioRate = bytesPerSec
	}
}

// Open creates a new empty DB.
func Open(opts ...Option) *DB {
	db := &DB{
		namespaces:  xsync.NewMapOf[string, *namespace](),
		logger:      noopLogger(),
		codec:       codec.Default,
		compression: CompressionZstd,
	}

	for _, opt := range opts {
		opt(db)
	}

	return db
}

// noopLogger returns a logger that discards everything.
func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// CreateNamespace creates a new namespace. Lookups via Find are only
// possible on the fields named in indexedFields.
func (db *DB) CreateNamespace(name string, indexedFields ...string) error {
	ns := newNamespace(name, indexedFields)

	if _, loaded := db.namespaces.LoadOrStore(name, ns); loaded {
		return fmt.Errorf("%w: %q", ErrNamespaceExists, name)
	}

	db.logger.Debug("namespace created", "namespace", name, "indexed_fields", indexedFields)

	return nil
}

// DropNamespace removes a namespace and all its records. Dropping a missing
// namespace is a no-op.
func (db *DB) DropNamespace(name string) {
	db.namespaces.Delete(name)
	db.logger.Debug("namespace dropped", "namespace", name)
}

// HasNamespace reports whether the namespace exists.
func (db *DB) HasNamespace(name string) bool {
	_, ok := db.namespaces.Load(name)

	return ok
}

// Namespaces returns all namespace names, sorted.
func (db *DB) Namespaces() []string {
	var names []string

	db.namespaces.Range(func(name string, _ *namespace) bool {
		names = append(names, name)

		return true
	})

	sort.Strings(names)

	return names
}

// Set stores a record under the given key, replacing any previous record.
// The record is copied, so the caller may reuse it.
func (db *DB) Set(namespace, key string, rec Record) error {
	ns, err := db.namespace(namespace)
	if err != nil {
		return err
	}

	ns.set(key, rec)

	return nil
}

// Get returns a copy of the record stored under key.
func (db *DB) Get(namespace, key string) (Record, error) {
	ns, err := db.namespace(namespace)
	if err != nil {
		return Record{}, err
	}

	return ns.get(key)
}

// Delete removes the record stored under key. Deleting a missing key is a
// no-op.
func (db *DB) Delete(namespace, key string) error {
	ns, err := db.namespace(namespace)
	if err != nil {
		return err
	}

	ns.delete(key)

	return nil
}

// Keys returns all keys in the namespace, sorted.
func (db *DB) Keys(namespace string) ([]string, error) {
	ns, err := db.namespace(namespace)
	if err != nil {
		return nil, err
	}

	return ns.keys(), nil
}

// Count returns the number of records in the namespace.
func (db *DB) Count(namespace string) (int, error) {
	ns, err := db.namespace(namespace)
	if err != nil {
		return 0, err
	}

	return ns.records.Size(), nil
}

// Scan visits every record in the namespace until fn returns false. The
// visit order is unspecified. The record passed to fn aliases internal
// storage and must not be mutated or retained.
func (db *DB) Scan(namespace string, fn func(key string, rec Record) bool) error {
	ns, err := db.namespace(namespace)
	if err != nil {
		return err
	}

	ns.records.Range(func(key string, rec Record) bool {
		return fn(key, rec)
	})

	return nil
}

// Find returns the keys of all records whose indexed field equals value,
// sorted. Querying a field that was not declared in CreateNamespace fails
// with ErrFieldNotIndexed.
func (db *DB) Find(namespace, field string, value any) ([]string, error) {
	ns, err := db.namespace(namespace)
	if err != nil {
		return nil, err
	}

	return ns.find(field, value)
}

func (db *DB) namespace(name string) (*namespace, error) {
	ns, ok := db.namespaces.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNamespaceNotFound, name)
	}

	return ns, nil
}
