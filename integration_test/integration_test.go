package integration_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/hashdb"
	"github.com/hupe1980/vecstore/kvstore"
	"github.com/hupe1980/vecstore/redisstore"
	"github.com/hupe1980/vecstore/sqlstore"
)

const embeddingDim = 8

type document struct {
	ID        string    `vstore:"key,name=id"`
	Source    string    `vstore:"data,indexed"`
	Rank      int64     `vstore:"data"`
	Embedding []float32 `vstore:"vector,dim=8,metric=cosine"`
}

type backendCase struct {
	name    string
	factory func(t *testing.T) vecstore.Store
}

func backendCases() []backendCase {
	return []backendCase{
		{name: "SQL", factory: newSQLStore},
		{name: "KV", factory: newKVStore},
		{name: "Redis", factory: newRedisStore},
	}
}

func newSQLStore(t *testing.T) vecstore.Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := sqlstore.New(db).Build(context.Background())
	require.NoError(t, err)

	return store
}

func newKVStore(t *testing.T) vecstore.Store {
	t.Helper()

	store, err := kvstore.New(hashdb.Open()).Build(context.Background())
	require.NoError(t, err)

	return store
}

func newRedisStore(t *testing.T) vecstore.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := redisstore.New(client).Build(context.Background())
	require.NoError(t, err)

	return store
}

// Every backend walks the same collection lifecycle with identical
// observable state at each step.
func TestLifecycle(t *testing.T) {
	for _, tc := range backendCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := tc.factory(t)

			col, err := store.GetCollection("documents", document{}, nil)
			require.NoError(t, err)

			exists, err := col.Exists(ctx)
			require.NoError(t, err)
			assert.False(t, exists)

			require.NoError(t, col.Ensure(ctx))
			require.NoError(t, col.Ensure(ctx))

			exists, err = col.Exists(ctx)
			require.NoError(t, err)
			assert.True(t, exists)

			names, err := store.ListCollections(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"documents"}, names)

			require.NoError(t, col.Drop(ctx))
			require.NoError(t, col.Drop(ctx))

			exists, err = col.Exists(ctx)
			require.NoError(t, err)
			assert.False(t, exists)

			names, err = store.ListCollections(ctx)
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

// Every backend reports the same sentinel errors for the same failure.
func TestErrorContract(t *testing.T) {
	for _, tc := range backendCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := tc.factory(t)

			ghost, err := store.GetCollection("ghost", document{}, nil)
			require.NoError(t, err)

			_, err = ghost.Upsert(ctx, document{ID: "d-1", Embedding: make([]float32, embeddingDim)})
			require.ErrorIs(t, err, vecstore.ErrCollectionNotFound)

			var got document
			require.ErrorIs(t, ghost.Get(ctx, "d-1", &got), vecstore.ErrCollectionNotFound)
			require.ErrorIs(t, ghost.Delete(ctx, "d-1"), vecstore.ErrCollectionNotFound)

			_, err = ghost.Search(ctx, make([]float32, embeddingDim))
			require.ErrorIs(t, err, vecstore.ErrCollectionNotFound)

			col, err := store.GetCollection("documents", document{}, nil)
			require.NoError(t, err)
			require.NoError(t, col.Ensure(ctx))

			require.ErrorIs(t, col.Get(ctx, "missing", &got), vecstore.ErrNotFound)

			_, err = col.Search(ctx, make([]float32, embeddingDim-1))
			var dim *vecstore.ErrDimensionMismatch
			require.ErrorAs(t, err, &dim)
			assert.Equal(t, embeddingDim, dim.Expected)

			_, err = col.Search(ctx, make([]float32, embeddingDim), vecstore.WithFilter("Nope", 1))
			require.ErrorContains(t, err, "unknown filter field")
		})
	}
}

// Every backend round-trips records identically, including generated keys
// and map destinations.
func TestRoundTrip(t *testing.T) {
	for _, tc := range backendCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := tc.factory(t)

			col, err := store.GetCollection("documents", document{}, nil)
			require.NoError(t, err)
			require.NoError(t, col.Ensure(ctx))

			want := document{
				ID:        "d-1",
				Source:    "web",
				Rank:      3,
				Embedding: []float32{1, 0, 0, 0, 0, 0, 0, 0},
			}

			key, err := col.Upsert(ctx, want)
			require.NoError(t, err)
			assert.Equal(t, "d-1", key)

			var got document
			require.NoError(t, col.Get(ctx, "d-1", &got))
			assert.Equal(t, want, got)

			var m map[string]any
			require.NoError(t, col.Get(ctx, "d-1", &m))
			assert.Equal(t, "d-1", m["id"])
			assert.Equal(t, "web", m["Source"])
			assert.Equal(t, int64(3), m["Rank"])

			generated, err := col.Upsert(ctx, document{Source: "feed", Embedding: want.Embedding})
			require.NoError(t, err)
			assert.NotEmpty(t, generated)

			require.NoError(t, col.Delete(ctx, generated))
			require.ErrorIs(t, col.Get(ctx, generated, &got), vecstore.ErrNotFound)
		})
	}
}
