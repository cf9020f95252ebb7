package vecstore

import "context"

// Store is the contract every vector store front satisfies, regardless of
// the backend behind it.
//
// A Store wraps a backend handle it does not own: it never connects,
// disconnects, or closes. Collections produced by GetCollection share that
// same handle and the same non-ownership rule.
type Store interface {
	// GetCollection returns a handle to the named collection.
	//
	// Dispatch is a strict two-branch decision: if a CollectionFactory was
	// configured on the store, construction is delegated to it entirely;
	// otherwise the backend's default collection type is built. No I/O
	// happens here. The definition is resolved from recordType's vstore
	// tags unless def is non-nil, in which case def wins.
	GetCollection(name string, recordType any, def *Definition) (Collection, error)

	// ListCollections returns the distinct collection names currently
	// existing in the backend. Order is unspecified and no snapshot
	// isolation is implied. An empty backend yields an empty slice.
	ListCollections(ctx context.Context) ([]string, error)

	// ListCollectionsAsync runs ListCollections on the store's Runner.
	ListCollectionsAsync(ctx context.Context) *Future[[]string]
}

// Preparer is implemented by stores whose backend needs one-time bootstrap
// (schema or support-structure creation) before normal operations are
// guaranteed to succeed.
//
// Prepare must be idempotent: calling it repeatedly, or concurrently, on an
// already-prepared backend neither errors nor corrupts state.
type Preparer interface {
	Prepare(ctx context.Context) error

	// PrepareAsync runs Prepare on the store's Runner.
	PrepareAsync(ctx context.Context) *Future[struct{}]
}
