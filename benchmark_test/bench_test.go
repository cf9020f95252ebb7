package benchmark_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/hashdb"
	"github.com/hupe1980/vecstore/kvstore"
	"github.com/hupe1980/vecstore/redisstore"
	"github.com/hupe1980/vecstore/sqlstore"
	"github.com/hupe1980/vecstore/testutil"
)

const (
	benchDim = 128

	// benchRecords is the corpus size shared by the read benchmarks.
	benchRecords = 2048
)

type doc struct {
	ID        string    `vstore:"key,name=id"`
	Source    string    `vstore:"data,indexed"`
	Rank      int64     `vstore:"data"`
	Embedding []float32 `vstore:"vector,dim=128,metric=cosine"`
}

type backendCase struct {
	name    string
	factory func(b *testing.B) vecstore.Store
}

func backendCases() []backendCase {
	return []backendCase{
		{name: "KV", factory: newKVStore},
		{name: "SQLite", factory: newSQLStore},
		{name: "Redis", factory: newRedisStore},
	}
}

func newKVStore(b *testing.B) vecstore.Store {
	b.Helper()

	store, err := kvstore.New(hashdb.Open()).Build(context.Background())
	if err != nil {
		b.Fatal(err)
	}
	return store
}

func newSQLStore(b *testing.B) vecstore.Store {
	b.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		b.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	b.Cleanup(func() { _ = db.Close() })

	store, err := sqlstore.New(db).Build(context.Background())
	if err != nil {
		b.Fatal(err)
	}
	return store
}

func newRedisStore(b *testing.B) vecstore.Store {
	b.Helper()

	mr := miniredis.RunT(b)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() { _ = client.Close() })

	store, err := redisstore.New(client).Build(context.Background())
	if err != nil {
		b.Fatal(err)
	}
	return store
}

func newCollection(b *testing.B, store vecstore.Store) vecstore.Collection {
	b.Helper()

	col, err := store.GetCollection("docs", doc{}, nil)
	if err != nil {
		b.Fatal(err)
	}
	if err := col.Ensure(context.Background()); err != nil {
		b.Fatal(err)
	}
	return col
}

// seedDocs fills the collection with n records and returns their keys in
// insertion order. Every fourth record carries Source "feed" for the
// filtered benchmarks.
func seedDocs(b *testing.B, col vecstore.Collection, n int) []string {
	b.Helper()

	ctx := context.Background()
	rng := testutil.NewRNG(1)
	vectors := rng.UnitVectors(n, benchDim)

	keys := make([]string, n)
	for i := 0; i < n; i++ {
		source := "archive"
		if i%4 == 0 {
			source = "feed"
		}
		keys[i] = fmt.Sprintf("d-%05d", i)
		_, err := col.Upsert(ctx, doc{
			ID:        keys[i],
			Source:    source,
			Rank:      int64(i),
			Embedding: vectors[i],
		})
		if err != nil {
			b.Fatal(err)
		}
	}
	return keys
}

// queries are generated outside the timed region so every backend scores
// the same workload.
func benchQueries(n int) [][]float32 {
	rng := testutil.NewRNG(2)
	return rng.UnitVectors(n, benchDim)
}

func BenchmarkUpsert(b *testing.B) {
	for _, tc := range backendCases() {
		b.Run(tc.name, func(b *testing.B) {
			ctx := context.Background()
			col := newCollection(b, tc.factory(b))

			rng := testutil.NewRNG(1)
			vec := make([]float32, benchDim)
			rng.FillUniform(vec)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, err := col.Upsert(ctx, doc{
					ID:        fmt.Sprintf("d-%d", i),
					Source:    "archive",
					Rank:      int64(i),
					Embedding: vec,
				})
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkUpsertParallel(b *testing.B) {
	for _, tc := range backendCases() {
		b.Run(tc.name, func(b *testing.B) {
			ctx := context.Background()
			col := newCollection(b, tc.factory(b))

			rng := testutil.NewRNG(1)
			vec := make([]float32, benchDim)
			rng.FillUniform(vec)

			var next atomic.Uint64
			b.ReportAllocs()
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					_, err := col.Upsert(ctx, doc{
						ID:        fmt.Sprintf("d-%d", next.Add(1)),
						Source:    "archive",
						Embedding: vec,
					})
					if err != nil {
						b.Fatal(err)
					}
				}
			})
		})
	}
}

func BenchmarkGet(b *testing.B) {
	for _, tc := range backendCases() {
		b.Run(tc.name, func(b *testing.B) {
			ctx := context.Background()
			col := newCollection(b, tc.factory(b))
			keys := seedDocs(b, col, benchRecords)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var d doc
				if err := col.Get(ctx, keys[i%len(keys)], &d); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearch(b *testing.B) {
	for _, tc := range backendCases() {
		b.Run(tc.name, func(b *testing.B) {
			ctx := context.Background()
			col := newCollection(b, tc.factory(b))
			seedDocs(b, col, benchRecords)
			queries := benchQueries(256)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, err := col.Search(ctx, queries[i%len(queries)])
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	for _, tc := range backendCases() {
		b.Run(tc.name, func(b *testing.B) {
			ctx := context.Background()
			col := newCollection(b, tc.factory(b))
			seedDocs(b, col, benchRecords)
			queries := benchQueries(256)

			var qIdx atomic.Uint64
			b.ReportAllocs()
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					q := queries[qIdx.Add(1)%uint64(len(queries))]
					if _, err := col.Search(ctx, q); err != nil {
						b.Fatal(err)
					}
				}
			})
		})
	}
}

func BenchmarkSearchFiltered(b *testing.B) {
	for _, tc := range backendCases() {
		b.Run(tc.name, func(b *testing.B) {
			ctx := context.Background()
			col := newCollection(b, tc.factory(b))
			seedDocs(b, col, benchRecords)
			queries := benchQueries(256)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, err := col.Search(ctx, queries[i%len(queries)],
					vecstore.WithFilter("Source", "feed"),
				)
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkEncodeRecord(b *testing.B) {
	opts, err := vecstore.NewCollectionOptions(doc{}, nil)
	if err != nil {
		b.Fatal(err)
	}
	def := opts.Definition()

	rng := testutil.NewRNG(1)
	vec := make([]float32, benchDim)
	rng.FillUniform(vec)
	rec := doc{ID: "d-1", Source: "archive", Rank: 7, Embedding: vec}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, _, err := vecstore.EncodeRecord(def, rec); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeRecord(b *testing.B) {
	opts, err := vecstore.NewCollectionOptions(doc{}, nil)
	if err != nil {
		b.Fatal(err)
	}
	def := opts.Definition()

	rng := testutil.NewRNG(1)
	vec := make([]float32, benchDim)
	rng.FillUniform(vec)
	key, fields, vector, err := vecstore.EncodeRecord(def, doc{
		ID:        "d-1",
		Source:    "archive",
		Rank:      7,
		Embedding: vec,
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var d doc
		if err := vecstore.DecodeRecord(def, key, fields, vector, &d); err != nil {
			b.Fatal(err)
		}
	}
}
