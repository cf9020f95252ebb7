// Package kvstore implements a vector store on top of an embedded hashdb
// database.
//
// The store wraps a *hashdb.DB it does not own: callers open the database,
// pass it in, and keep it for snapshots or direct access. Every collection
// created from the store shares that handle.
//
// Each collection maps to one namespace of the same name. Records are kept
// in canonical field form with the vector alongside, so the data path does
// no serialization. Data fields declared indexed are answered from the
// namespace's equality postings during filtered searches; everything else
// is a scan.
//
// Namespaces starting with "__" are reserved for the store itself: ensured
// collections are recorded in the "__definitions" namespace, which backs
// ListCollections and Exists. Snapshots taken with hashdb's Save capture
// collections and metadata together, so a restored database serves a fresh
// store immediately.
//
// Example:
//
//	db := hashdb.Open()
//
//	store, err := kvstore.New(db).Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	type Article struct {
//	    ID        string    `vstore:"key,name=id"`
//	    Title     string    `vstore:"data"`
//	    Embedding []float32 `vstore:"vector,dim=768"`
//	}
//
//	col, err := store.GetCollection("articles", Article{}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := col.Ensure(ctx); err != nil {
//	    log.Fatal(err)
//	}
package kvstore
