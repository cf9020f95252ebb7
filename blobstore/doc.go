// Package blobstore abstracts durable storage for database snapshots.
//
// A Store holds named, immutable blobs. The kvstore backup path streams
// snapshot files into a Store and restores from them, so implementations
// only need sequential reads and writes, no random access.
//
// Available implementations:
//
//   - MemoryStore: in-memory, for tests
//   - LocalStore: local filesystem
//   - s3.Store: Amazon S3 (subpackage blobstore/s3)
//   - minio.Store: MinIO and other S3-compatible object stores
//     (subpackage blobstore/minio)
//
// All implementations report missing blobs with an error satisfying
// errors.Is(err, blobstore.ErrNotFound).
package blobstore
