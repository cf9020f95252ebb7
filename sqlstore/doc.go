// Package sqlstore implements a vector store on top of a relational
// database reached through database/sql.
//
// The store wraps a *sql.DB it does not own: callers open the handle,
// pass it in, and close it when they are done. Every collection created
// from the store shares that handle.
//
// Each collection maps to one data table whose columns mirror the record
// definition: the key column, one column per data field, and a vector
// column when the definition has a vector field. Known collections are
// tracked in a registry table created by Prepare.
//
// SQL generation is pluggable through QueryProvider. The built-in
// DefaultQueryProvider targets SQLite-compatible engines and scores
// vectors in Go, PostgresQueryProvider targets PostgreSQL with the
// pgvector extension and pushes similarity ordering into the database.
//
// Example:
//
//	db, err := sql.Open("sqlite", "file:app.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	store, err := sqlstore.New(db).Build(ctx)
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
package sqlstore
