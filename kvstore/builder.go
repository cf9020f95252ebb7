package kvstore

import (
	"context"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/hashdb"
)

// New creates a builder for a hashdb-backed vector store over db. The
// handle is mandatory and shared: the caller opens it and keeps it for the
// store's lifetime.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration.
//
// Example:
//
//	store, err := kvstore.New(db).
//	    Logger(logger).
//	    Build(ctx)
func New(db *hashdb.DB) Builder {
	return Builder{
		db: db,
	}
}

// Builder is an immutable fluent builder for creating hashdb-backed
// stores. Each method returns a new builder with the updated
// configuration.
type Builder struct {
	db      *hashdb.DB
	factory CollectionFactory
	codec   codec.Codec
	logger  *vecstore.Logger
	metrics vecstore.MetricsCollector
	runner  *vecstore.Runner
}

// CollectionFactory routes every GetCollection call through f instead of
// the default collection implementation.
func (b Builder) CollectionFactory(f CollectionFactory) Builder {
	b.factory = f
	return b
}

// Codec sets the codec for persisted definitions in the metadata
// namespace.
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
		db:      b.db,
		factory: b.factory,
		codec:   cdc,
		logger:  logger.WithBackend(Backend),
		metrics: metrics,
		runner:  b.runner,
	}, nil
}
