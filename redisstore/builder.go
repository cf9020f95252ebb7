package redisstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/codec"
)

// DefaultKeyPrefix is the key prefix used when none is configured.
const DefaultKeyPrefix = "vec:"

// New creates a builder for a Redis-backed vector store over client. The
// client is mandatory and shared: the caller connects it and keeps it for
// the store's lifetime.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration.
//
// Example:
//
//	store, err := redisstore.New(client).
//	    KeyPrefix("search:").
//	    Build(ctx)
func New(client *redis.Client) Builder {
	return Builder{
		client: client,
		prefix: DefaultKeyPrefix,
	}
}

// Builder is an immutable fluent builder for creating Redis-backed
// stores. Each method returns a new builder with the updated
// configuration.
type Builder struct {
	client  *redis.Client
	factory CollectionFactory
	prefix  string
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

// KeyPrefix sets the prefix under which the store keeps all its keys.
// Distinct prefixes isolate stores sharing one Redis database.
func (b Builder) KeyPrefix(prefix string) Builder {
	b.prefix = prefix
	return b
}

// Codec sets the codec for persisted definitions and records.
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

// Build constructs the store. Redis needs no schema bootstrap, so the
// returned store is ready for collection operations immediately; Build
// only validates the configuration. A nil client fails with
// ErrMissingHandle.
func (b Builder) Build(_ context.Context) (*Store, error) {
	return b.construct()
}

// BuildAsync constructs the store on its Runner. Await the returned
// Future for the ready store.
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
	if b.client == nil {
		return nil, vecstore.ErrMissingHandle
	}
	if strings.ContainsAny(b.prefix, patternChars) {
		return nil, fmt.Errorf("%w: key prefix %q", ErrInvalidCollectionName, b.prefix)
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
		client:  b.client,
		factory: b.factory,
		prefix:  b.prefix,
		codec:   cdc,
		logger:  logger.WithBackend(Backend),
		metrics: metrics,
		runner:  b.runner,
	}, nil
}
