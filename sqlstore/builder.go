package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/codec"
)

const (
	// DefaultRegistryTable is the table recording known collections.
	DefaultRegistryTable = "vecstore_collections"

	// DefaultTablePrefix prefixes every collection's data table.
	DefaultTablePrefix = "vec_"
)

// New creates a builder for a SQL-backed vector store over db. The handle
// is mandatory and shared: the caller opens it, keeps it open for the
// store's lifetime, and closes it afterwards.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration.
//
// Example:
//
//	store, err := sqlstore.New(db).
//	    QueryProvider(sqlstore.NewPostgresQueryProvider()).
//	    Logger(logger).
//	    Build(ctx)
func New(db *sql.DB) Builder {
	return Builder{
		db:       db,
		registry: DefaultRegistryTable,
		prefix:   DefaultTablePrefix,
	}
}

// Builder is an immutable fluent builder for creating SQL-backed stores.
// Each method returns a new builder with the updated configuration.
type Builder struct {
	db       *sql.DB
	provider QueryProvider
	factory  CollectionFactory
	registry string
	prefix   string
	codec    codec.Codec
	logger   *vecstore.Logger
	metrics  vecstore.MetricsCollector
	runner   *vecstore.Runner
}

// QueryProvider sets the SQL dialect provider. Default: the portable
// DefaultQueryProvider. The provider is resolved exactly once, in Build;
// the store never re-resolves it.
func (b Builder) QueryProvider(p QueryProvider) Builder {
	b.provider = p
	return b
}

// CollectionFactory routes every GetCollection call through f instead of
// the default collection implementation.
func (b Builder) CollectionFactory(f CollectionFactory) Builder {
	b.factory = f
	return b
}

// RegistryTable overrides the name of the collection registry table.
func (b Builder) RegistryTable(name string) Builder {
	b.registry = name
	return b
}

// TablePrefix overrides the prefix of collection data tables. An empty
// prefix is allowed; collection names then double as table names.
func (b Builder) TablePrefix(prefix string) Builder {
	b.prefix = prefix
	return b
}

// Codec sets the codec for persisted definitions in the registry.
func (b Builder) Codec(c codec.Codec) Builder {
	b.codec = c
	return b
}

// Logger sets the structured logger for operation tracing.
func (b Builder) Logger(l *vecstore.Logger) Builder {
	b.logger = l
	return b
}

// Metrics sets the metrics collector for monitoring.
func (b Builder) Metrics(mc vecstore.MetricsCollector) Builder {
	b.metrics = mc
	return b
}

// Runner sets the worker pool backing the *Async methods.
func (b Builder) Runner(r *vecstore.Runner) Builder {
	b.runner = r
	return b
}

// Build constructs the store and prepares its backend before returning, so
// a non-error result is ready for collection operations. A nil handle
// fails immediately with ErrMissingHandle.
func (b Builder) Build(ctx context.Context) (*Store, error) {
	s, err := b.construct()
	if err != nil {
		return nil, err
	}
	if err := s.Prepare(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// BuildAsync constructs and prepares the store on its Runner. Await the
// returned Future for the ready store.
func (b Builder) BuildAsync(ctx context.Context) *vecstore.Future[*Store] {
	return vecstore.RunOn(b.runner, ctx, func(ctx context.Context) (*Store, error) {
		return b.Build(ctx)
	})
}

// MustBuild builds the store, panicking on error.
func (b Builder) MustBuild(ctx context.Context) *Store {
	s, err := b.Build(ctx)
	if err != nil {
		panic(err)
	}
	return s
}

func (b Builder) construct() (*Store, error) {
	if b.db == nil {
		return nil, vecstore.ErrMissingHandle
	}
	if err := ValidateIdentifier(b.registry); err != nil {
		return nil, fmt.Errorf("registry table: %w", err)
	}
	if b.prefix != "" {
		if err := ValidateIdentifier(b.prefix); err != nil {
			return nil, fmt.Errorf("table prefix: %w", err)
		}
	}

	provider := b.provider
	if provider == nil {
		provider = NewDefaultQueryProvider()
	}
	cdc := b.codec
	if cdc == nil {
		cdc = codec.Default
	}
	logger := b.logger
	if logger == nil {
		logger = vecstore.NoopLogger()
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = vecstore.NoopMetricsCollector{}
	}

	return &Store{
		db:       b.db,
		provider: provider,
		factory:  b.factory,
		registry: b.registry,
		prefix:   b.prefix,
		codec:    cdc,
		logger:   logger.WithBackend(Backend),
		metrics:  metrics,
		runner:   b.runner,
	}, nil
}
