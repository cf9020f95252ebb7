package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/sqlstore"
)

type article struct {
	ID        string    `vstore:"key,name=id"`
	Title     string    `vstore:"data"`
	Category  string    `vstore:"data,indexed"`
	Views     int64     `vstore:"data"`
	Embedding []float32 `vstore:"vector,dim=3,metric=cosine"`
}

// newTestDB opens an in-memory SQLite database. The pool is pinned to one
// connection because every pool connection would otherwise get its own
// private in-memory database.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	store, err := sqlstore.New(newTestDB(t)).Build(context.Background())
	require.NoError(t, err)

	return store
}

func TestBuildMissingHandle(t *testing.T) {
	ctx := context.Background()

	_, err := sqlstore.New(nil).Build(ctx)
	require.ErrorIs(t, err, vecstore.ErrMissingHandle)

	_, err = sqlstore.New(nil).BuildAsync(ctx).Await(ctx)
	require.ErrorIs(t, err, vecstore.ErrMissingHandle)
}

func TestBuildValidatesIdentifiers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := sqlstore.New(db).RegistryTable("bad name").Build(ctx)
	require.ErrorContains(t, err, "identifier")

	_, err = sqlstore.New(db).TablePrefix("1bad").Build(ctx)
	require.ErrorContains(t, err, "identifier")
}

func TestBuildPreparesStore(t *testing.T) {
	db := newTestDB(t)

	_, err := sqlstore.New(db).Build(context.Background())
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM vecstore_collections").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestBuildAsync(t *testing.T) {
	ctx := context.Background()

	store, err := sqlstore.New(newTestDB(t)).BuildAsync(ctx).Await(ctx)
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

	sqlstore.New(nil).MustBuild(context.Background())
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

func TestGetCollectionInvalidName(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetCollection("bad name", article{}, nil)
	require.ErrorIs(t, err, sqlstore.ErrInvalidCollectionName)
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

	sqlCol, ok := col.(*sqlstore.Collection)
	require.True(t, ok)
	assert.Same(t, def, sqlCol.Definition())
}

// GetCollection must stay a pure dispatch: a store whose handle is already
// closed still hands out collections, and only the first operation fails.
func TestGetCollectionNoBackendAccess(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	store, err := sqlstore.New(db).Build(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	col, err := store.GetCollection("articles", article{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "articles", col.Name())

	require.Error(t, col.Ensure(ctx))
}

func TestGetCollectionDefaultBranch(t *testing.T) {
	store := newTestStore(t)

	col, err := store.GetCollection("articles", article{}, nil)
	require.NoError(t, err)

	sqlCol, ok := col.(*sqlstore.Collection)
	require.True(t, ok)
	assert.Equal(t, "articles", sqlCol.Name())
	assert.Equal(t, "vec_articles", sqlCol.Table())
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
		gotStore *sqlstore.Store
	)
	factory := func(store *sqlstore.Store, name string, opts vecstore.CollectionOptions) (vecstore.Collection, error) {
		gotStore = store
		gotName = name
		built = &stubCollection{name: "custom-" + name}
		return built, nil
	}

	store, err := sqlstore.New(newTestDB(t)).CollectionFactory(factory).Build(ctx)
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

	factory := func(store *sqlstore.Store, name string, opts vecstore.CollectionOptions) (vecstore.Collection, error) {
		return nil, errBoom
	}

	store, err := sqlstore.New(newTestDB(t)).CollectionFactory(factory).Build(ctx)
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

// Two stores over one handle share all backend state: collections ensured
// through one are visible and usable through the other.
func TestTwoStoresOneHandle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	store1, err := sqlstore.New(db).Build(ctx)
	require.NoError(t, err)
	store2, err := sqlstore.New(db).Build(ctx)
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

	store, err := sqlstore.New(newTestDB(t)).Metrics(mc).Build(ctx)
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
