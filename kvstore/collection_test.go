package kvstore_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/hashdb"
	"github.com/hupe1980/vecstore/kvstore"
)

type event struct {
	ID      string    `vstore:"key"`
	Name    string    `vstore:"data"`
	Count   int       `vstore:"data"`
	Ratio   float64   `vstore:"data"`
	Active  bool      `vstore:"data"`
	Payload []byte    `vstore:"data"`
	Vec     []float32 `vstore:"vector,dim=2,metric=l2"`
}

func ensureCollection(t *testing.T, store *kvstore.Store, recordType any, name string) vecstore.Collection {
	t.Helper()

	col, err := store.GetCollection(name, recordType, nil)
	require.NoError(t, err)
	require.NoError(t, col.Ensure(context.Background()))

	return col
}

func seedArticles(t *testing.T, col vecstore.Collection) {
	t.Helper()
	ctx := context.Background()

	records := []article{
		{ID: "a-1", Title: "intro to go", Category: "go", Views: 100, Embedding: []float32{1, 0, 0}},
		{ID: "a-2", Title: "advanced go", Category: "go", Views: 50, Embedding: []float32{0.9, 0.1, 0}},
		{ID: "a-3", Title: "intro to rust", Category: "rust", Views: 70, Embedding: []float32{0, 1, 0}},
		{ID: "a-4", Title: "rust async", Category: "rust", Views: 30, Embedding: []float32{0, 0, 1}},
	}
	for _, rec := range records {
		_, err := col.Upsert(ctx, rec)
		require.NoError(t, err)
	}
}

func TestCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	col, err := store.GetCollection("articles", article{}, nil)
	require.NoError(t, err)

	exists, err := col.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, col.Ensure(ctx))
	require.NoError(t, col.Ensure(ctx))
	assert.True(t, store.DB().HasNamespace("articles"))

	exists, err = col.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "articles")

	require.NoError(t, col.Drop(ctx))
	require.NoError(t, col.Drop(ctx))
	assert.False(t, store.DB().HasNamespace("articles"))

	exists, err = col.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	names, err = store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestUpsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")

	want := article{
		ID:        "a-1",
		Title:     "intro to go",
		Category:  "go",
		Views:     100,
		Embedding: []float32{0.1, 0.2, 0.3},
	}

	key, err := col.Upsert(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, "a-1", key)

	var got article
	require.NoError(t, col.Get(ctx, "a-1", &got))
	assert.Equal(t, want, got)
}

func TestUpsertAllFieldTypes(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), event{}, "events")

	want := event{
		ID:      "e-1",
		Name:    "deploy",
		Count:   42,
		Ratio:   0.75,
		Active:  true,
		Payload: []byte{0xde, 0xad},
		Vec:     []float32{1.5, -2.5},
	}

	_, err := col.Upsert(ctx, want)
	require.NoError(t, err)

	var got event
	require.NoError(t, col.Get(ctx, "e-1", &got))
	assert.Equal(t, want, got)
}

func TestUpsertGeneratesKey(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")

	key, err := col.Upsert(ctx, article{Title: "keyless", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	require.NotEmpty(t, key)

	_, err = uuid.Parse(key)
	require.NoError(t, err)

	var got article
	require.NoError(t, col.Get(ctx, key, &got))
	assert.Equal(t, key, got.ID)
	assert.Equal(t, "keyless", got.Title)
}

// Replacing a record must move its posting entries: the old field value no
// longer answers filtered searches, the new one does.
func TestUpsertReplacesUpdatesIndex(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")

	_, err := col.Upsert(ctx, article{ID: "a-1", Title: "first", Category: "go", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	_, err = col.Upsert(ctx, article{ID: "a-1", Title: "second", Category: "rust", Embedding: []float32{0, 1, 0}})
	require.NoError(t, err)

	var got article
	require.NoError(t, col.Get(ctx, "a-1", &got))
	assert.Equal(t, "second", got.Title)
	assert.Equal(t, []float32{0, 1, 0}, got.Embedding)

	matches, err := col.Search(ctx, []float32{0, 1, 0}, vecstore.WithFilter("Category", "go"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = col.Search(ctx, []float32{0, 1, 0}, vecstore.WithFilter("Category", "rust"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a-1", matches[0].Key)
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")

	var got article
	err := col.Get(ctx, "nope", &got)
	require.ErrorIs(t, err, vecstore.ErrNotFound)
}

func TestGetIntoMap(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")

	_, err := col.Upsert(ctx, article{ID: "a-1", Title: "mapped", Category: "go", Views: 7, Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, col.Get(ctx, "a-1", &got))

	assert.Equal(t, "a-1", got["id"])
	assert.Equal(t, "mapped", got["Title"])
	assert.Equal(t, int64(7), got["Views"])
	assert.Equal(t, []float32{1, 0, 0}, got["Embedding"])
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")

	_, err := col.Upsert(ctx, article{ID: "a-1", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)

	require.NoError(t, col.Delete(ctx, "a-1"))
	require.NoError(t, col.Delete(ctx, "a-1"))

	var got article
	require.ErrorIs(t, col.Get(ctx, "a-1", &got), vecstore.ErrNotFound)
}

func TestSearchOrdersByScore(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")
	seedArticles(t, col)

	matches, err := col.Search(ctx, []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, matches, 4)

	assert.Equal(t, "a-1", matches[0].Key)
	assert.Equal(t, "a-2", matches[1].Key)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}

	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, "intro to go", matches[0].Fields["Title"])
	assert.Equal(t, int64(100), matches[0].Fields["Views"])
}

func TestSearchLimit(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")
	seedArticles(t, col)

	matches, err := col.Search(ctx, []float32{1, 0, 0}, vecstore.WithLimit(2))
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a-1", matches[0].Key)
	assert.Equal(t, "a-2", matches[1].Key)
}

// Category is indexed, so this filter is answered from the postings.
func TestSearchFilterIndexed(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")
	seedArticles(t, col)

	matches, err := col.Search(ctx, []float32{1, 0, 0}, vecstore.WithFilter("Category", "rust"))
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, "rust", m.Fields["Category"])
	}

	matches, err = col.Search(ctx, []float32{1, 0, 0}, vecstore.WithFilter("Category", "elixir"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NotNil(t, matches)
}

// Views is not indexed, so this filter runs as a scan.
func TestSearchFilterUnindexed(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")
	seedArticles(t, col)

	matches, err := col.Search(ctx, []float32{1, 0, 0}, vecstore.WithFilter("Views", 100))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a-1", matches[0].Key)
}

// Mixed filters narrow through the postings first, then check the rest
// per candidate.
func TestSearchFilterMixed(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")
	seedArticles(t, col)

	matches, err := col.Search(ctx, []float32{1, 0, 0},
		vecstore.WithFilter("Category", "go"),
		vecstore.WithFilter("Views", 100),
		vecstore.WithLimit(1),
	)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a-1", matches[0].Key)
}

// A namespace created before the collection's index declarations cannot
// answer posting lookups; the search falls back to a scan instead of
// failing.
func TestSearchIndexedFilterFallsBackToScan(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.DB().CreateNamespace("articles"))

	col := ensureCollection(t, store, article{}, "articles")
	seedArticles(t, col)

	matches, err := col.Search(ctx, []float32{1, 0, 0}, vecstore.WithFilter("Category", "go"))
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a-1", matches[0].Key)
	assert.Equal(t, "a-2", matches[1].Key)
}

func TestSearchUnknownFilterField(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")
	seedArticles(t, col)

	_, err := col.Search(ctx, []float32{1, 0, 0}, vecstore.WithFilter("Nope", 1))
	require.ErrorContains(t, err, "unknown filter field")
}

func TestSearchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")

	_, err := col.Search(ctx, []float32{1, 0})
	var dim *vecstore.ErrDimensionMismatch
	require.ErrorAs(t, err, &dim)
	assert.Equal(t, 3, dim.Expected)
	assert.Equal(t, 2, dim.Actual)
}

func TestSearchSkipsRecordsWithoutVector(t *testing.T) {
	ctx := context.Background()
	col := ensureCollection(t, newTestStore(t), article{}, "articles")

	_, err := col.Upsert(ctx, article{ID: "a-1", Title: "no vector"})
	require.NoError(t, err)
	_, err = col.Upsert(ctx, article{ID: "a-2", Title: "with vector", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)

	matches, err := col.Search(ctx, []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a-2", matches[0].Key)

	var got article
	require.NoError(t, col.Get(ctx, "a-1", &got))
	assert.Nil(t, got.Embedding)
}

func TestOperationsOnMissingCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	col, err := store.GetCollection("ghost", article{}, nil)
	require.NoError(t, err)

	_, err = col.Upsert(ctx, article{ID: "a-1", Embedding: []float32{1, 0, 0}})
	require.ErrorIs(t, err, vecstore.ErrCollectionNotFound)

	var got article
	err = col.Get(ctx, "a-1", &got)
	require.ErrorIs(t, err, vecstore.ErrCollectionNotFound)

	require.ErrorIs(t, col.Delete(ctx, "a-1"), vecstore.ErrCollectionNotFound)

	_, err = col.Search(ctx, []float32{1, 0, 0})
	require.ErrorIs(t, err, vecstore.ErrCollectionNotFound)
}

// A snapshot carries collections and store metadata together. After a
// restore into a fresh database, a new store lists, reads and searches the
// data, including posting-backed filters whose numbers the snapshot codec
// widened to float64.
func TestSearchSurvivesSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := hashdb.Open()

	store, err := kvstore.New(db).Build(ctx)
	require.NoError(t, err)
	col := ensureCollection(t, store, article{}, "articles")
	seedArticles(t, col)

	var buf bytes.Buffer
	require.NoError(t, db.Save(ctx, &buf))

	restored := hashdb.Open()
	require.NoError(t, restored.Load(ctx, &buf))

	store2, err := kvstore.New(restored).Build(ctx)
	require.NoError(t, err)

	names, err := store2.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"articles"}, names)

	col2, err := store2.GetCollection("articles", article{}, nil)
	require.NoError(t, err)

	var got article
	require.NoError(t, col2.Get(ctx, "a-1", &got))
	assert.Equal(t, "intro to go", got.Title)
	assert.EqualValues(t, 100, got.Views)
	assert.Equal(t, []float32{1, 0, 0}, got.Embedding)

	matches, err := col2.Search(ctx, []float32{1, 0, 0}, vecstore.WithFilter("Category", "go"))
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a-1", matches[0].Key)

	matches, err = col2.Search(ctx, []float32{1, 0, 0}, vecstore.WithFilter("Views", 100))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a-1", matches[0].Key)
}
