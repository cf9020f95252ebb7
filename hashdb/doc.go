// Package hashdb implements an in-memory hash database partitioned into
// namespaces. It is the embedded engine behind the kvstore backend.
//
// Each namespace maps string keys to records holding scalar fields and an
// optional vector. Reads and writes go through lock-free concurrent maps,
// while equality lookups on indexed fields are served from roaring bitmap
// postings instead of full scans.
//
// The database can be serialized into a compressed snapshot stream and
// shipped to a blobstore for backup:
//
//	db := hashdb.Open(hashdb.WithSnapshotCompression(hashdb.CompressionZstd))
//	_ = db.CreateNamespace("articles", "category")
//	_ = db.Set("articles", "a-1", hashdb.Record{
//		Fields: map[string]any{"category": "news"},
//		Vector: []float32{0.1, 0.9},
//	})
//
//	name, err := db.BackupTo(ctx, blobStore, "backups/articles")
//
// Numeric field values are indexed by value, not by Go type: an integer
// stored as int64 is found again after a snapshot round trip turns it into
// a float64.
package hashdb
