// Package redisstore implements a vector store on top of Redis.
//
// The store wraps a *redis.Client it does not own: callers open the
// client, pass it in, and close it when they are done. Every collection
// created from the store shares that client.
//
// Each record is one Redis string holding the codec-encoded fields and
// vector. Keys follow a fixed layout under a configurable prefix:
//
//	<prefix>c:<collection>        collection metadata (the definition)
//	<prefix>r:<collection>:<key>  one record
//
// ListCollections and Drop walk these layouts with SCAN, so they never
// block the server the way KEYS would. Searches scan the collection's
// records, fetch them in bounded parallel batches, and score them
// client-side; filters run record-side, so index hints on data fields have
// no effect on this backend.
//
// Redis needs no schema bootstrap, so the store has no Prepare and Build
// validates configuration only.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	defer client.Close()
//
//	store, err := redisstore.New(client).Build(ctx)
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
package redisstore
