package kvstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/hashdb"
	"github.com/hupe1980/vecstore/kvstore"
)

type article struct {
	ID        string    `vstore:"key,name=id"`
	Title     string    `vstore:"data"`
	Category  string    `vstore:"data,indexed"`
	Views     int64     `vstore:"data"`
	Embedding []float32 `vstore:"vector,dim=3,metric=cosine"`
}

func newTestStore(t *testing.T) *kvstore.Store {
	t.Helper()

	store, err := kvstore.New(hashdb.Open()).Build(context.Background())
	require.NoError(t, err)

	return store
}

func TestBuildMissingHandle(t *testing.T) {
	ctx := context.Background()

	_, err := kvstore.New(nil).Build(ctx)
	require.ErrorIs(t, err, vecstore.ErrMissingHandle)

	_, err = kvstore.New(nil).BuildAsync(ctx).Await(ctx)
	require.ErrorIs(t, err, vecstore.ErrMissingHandle)
}

func TestBuildPreparesStore(t *testing.T) {
	db := hashdb.Open()

	_, err := kvstore.New(db).Build(context.Background())
	require.NoError(t, err)

	assert.True(t, db.HasNamespace(kvstore.MetaNamespace))
}

func TestBuildAsync(t *testing.T) {
	ctx := context.Background()

	store, err := kvstore.New(hashdb.Open()).BuildAsync(ctx).Await(ctx)
	require.NoError(t, err)

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMustBuildPanics(t *testing.T) {
	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		err, ok := rec.(error)
		require.True(t, ok)
		require.ErrorIs(t, err, vecstore.ErrMissingHandle)
	}()

	kvstore.New(nil).MustBuild(context.Background())
}

func TestGetCollectionEmptyName(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetCollection("", article{}, nil)
	require.ErrorIs(t, err, vecstore.ErrEmptyCollectionName)
}

func TestGetCollectionMissingRecordType(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetCollection("articles", nil, nil)
	require.ErrorIs(t, err, vecstore.ErrMissingRecordType)
}

func TestGetCollectionReservedName(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetCollection("__secrets", article{}, nil)
	require.ErrorIs(t, err, kvstore.ErrReservedCollectionName)
}

func TestGetCollectionExplicitDefinitionWins(t *testing.T) {
	store := newTestStore(t)

	def := &vecstore.Definition{
		Fields: []vecstore.Field{
			{Name: "id", Kind: vecstore.KeyField},
			{Name: "vec", Kind: vecstore.VectorField, Dimensions: 4},
		},
	}

	col, err := store.GetCollection("articles", article{}, def)
	require.NoError(t, err)

	kvCol, ok := col.(*kvstore.Collection)
	require.True(t, ok)
	assert.Same(t, def, kvCol.Definition())
}

func TestGetCollectionDefaultBranch(t *testing.T) {
	store := newTestStore(t)

	col, err := store.GetCollection("articles", article{}, nil)
	require.NoError(t, err)

	kvCol, ok := col.(*kvstore.Collection)
	require.True(t, ok)
	assert.Equal(t, "articles", kvCol.Name())
}

type stubCollection struct {
	vecstore.Collection
	name string
}

func (s *stubCollection) Name() string { return s.name }

func TestGetCollectionFactoryBranch(t *testing.T) {
	ctx := context.Background()

	var (
		built    *stubCollection
		gotName  string
		gotStore *kvstore.Store
	)
	factory := func(store *kvstore.Store, name string, opts vecstore.CollectionOptions) (vecstore.Collection, error) {
		gotStore = store
		gotName = name
		built = &stubCollection{name: "custom-" + name}
		return built, nil
	}

	store, err := kvstore.New(hashdb.Open()).CollectionFactory(factory).Build(ctx)
	require.NoError(t, err)

	col, err := store.GetCollection("articles", article{}, nil)
	require.NoError(t, err)

	assert.Same(t, built, col)
	assert.Same(t, store, gotStore)
	assert.Equal(t, "articles", gotName)
	assert.Equal(t, "custom-articles", col.Name())
}

func TestGetCollectionFactoryErrorPassesThrough(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	factory := func(store *kvstore.Store, name string, opts vecstore.CollectionOptions) (vecstore.Collection, error) {
		return nil, errBoom
	}

	store, err := kvstore.New(hashdb.Open()).CollectionFactory(factory).Build(ctx)
	require.NoError(t, err)

	_, err = store.GetCollection("articles", article{}, nil)
	require.ErrorIs(t, err, errBoom)

	var be *vecstore.BackendError
	assert.False(t, errors.As(err, &be))
}

func TestPrepareIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Prepare(ctx))
	require.NoError(t, store.Prepare(ctx))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Prepare(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	_, err := store.PrepareAsync(ctx).Await(ctx)
	require.NoError(t, err)
}

func TestListCollections(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.NotNil(t, names)

	for _, name := range []string{"zebras", "articles"} {
		col, err := store.GetCollection(name, article{}, nil)
		require.NoError(t, err)
		require.NoError(t, col.Ensure(ctx))
	}

	names, err = store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"articles", "zebras"}, names)

	names, err = store.ListCollectionsAsync(ctx).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"articles", "zebras"}, names)
}

// Namespaces created directly on the shared handle are not collections:
// only ensured collections appear in listings.
func TestListCollectionsIgnoresForeignNamespaces(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.DB().CreateNamespace("scratch"))

	col, err := store.GetCollection("articles", article{}, nil)
	require.NoError(t, err)
	require.NoError(t, col.Ensure(ctx))

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"articles"}, names)
}

// Two stores over one handle share all backend state: collections ensured
// through one are visible and usable through the other.
func TestTwoStoresOneHandle(t *testing.T) {
	ctx := context.Background()
	db := hashdb.Open()

	store1, err := kvstore.New(db).Build(ctx)
	require.NoError(t, err)
	store2, err := kvstore.New(db).Build(ctx)
	require.NoError(t, err)

	col1, err := store1.GetCollection("articles", article{}, nil)
	require.NoError(t, err)
	require.NoError(t, col1.Ensure(ctx))

	key, err := col1.Upsert(ctx, article{ID: "a-1", Title: "shared", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)

	names, err := store2.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"articles"}, names)

	col2, err := store2.GetCollection("articles", article{}, nil)
	require.NoError(t, err)

	var got article
	require.NoError(t, col2.Get(ctx, key, &got))
	assert.Equal(t, "shared", got.Title)
}

func TestMetricsRecorded(t *testing.T) {
	ctx := context.Background()
	mc := &vecstore.BasicMetricsCollector{}

	store, err := kvstore.New(hashdb.Open()).Metrics(mc).Build(ctx)
	require.NoError(t, err)

	col, err := store.GetCollection("articles", article{}, nil)
	require.NoError(t, err)
	require.NoError(t, col.Ensure(ctx))

	_, err = col.Upsert(ctx, article{ID: "a-1", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	_, err = col.Search(ctx, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = store.ListCollections(ctx)
	require.NoError(t, err)

	stats := mc.GetStats()
	assert.EqualValues(t, 1, stats.PrepareCount)
	assert.EqualValues(t, 1, stats.GetCollectionCount)
	assert.EqualValues(t, 1, stats.UpsertCount)
	assert.EqualValues(t, 1, stats.SearchCount)
	assert.EqualValues(t, 1, stats.ListCount)
	assert.Zero(t, stats.UpsertErrors)
	assert.Zero(t, stats.SearchErrors)
}
