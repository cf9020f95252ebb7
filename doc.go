// Package vecstore provides a backend-agnostic vector store abstraction.
//
// A Store is a thin front over a backend the caller already operates: a
// *sql.DB, a *redis.Client, or the in-tree hashdb engine. The store never
// owns that handle. It resolves collections, lists them, and (where the
// backend needs it) performs one-time schema bootstrap. Everything else,
// including the handle's lifecycle, stays with the caller.
//
// # Quick Start
//
// SQL backend (sqlite shown; postgres via sqlstore.NewPostgresQueryProvider):
//
//	db, _ := sql.Open("sqlite", "file:vec.db")
//	defer db.Close()
//
//	store, err := sqlstore.New(db).Build(ctx)
//	if err != nil { ... }
//
//	coll, err := store.GetCollection("docs", Document{}, nil)
//	if err != nil { ... }
//	_ = coll.Ensure(ctx)
//	key, _ := coll.Upsert(ctx, Document{Text: "hello", Embedding: []float32{...}})
//
// Records describe their schema with vstore struct tags:
//
//	type Document struct {
//	    ID        string    `vstore:"key"`
//	    Text      string    `vstore:"data"`
//	    Category  string    `vstore:"data,indexed"`
//	    Embedding []float32 `vstore:"vector,dim=128,metric=cosine"`
//	}
//
// An explicit *Definition always wins over tag inference.
//
// # Custom Collections
//
// Each backend accepts a CollectionFactory. When one is configured,
// GetCollection delegates construction entirely to it; otherwise the
// backend's default collection type is built. This is the extension seam for
// callers that need collection behavior the defaults do not provide.
//
// # Asynchronous Variants
//
// Listing and preparation may block on backend I/O. Their *Async variants
// run on a bounded Runner and hand back a Future:
//
//	f := store.ListCollectionsAsync(ctx)
//	names, err := f.Await(ctx)
//
// The synchronous builder entry point never returns an unprepared store:
// Build constructs the store, waits for preparation, then returns it.
package vecstore
