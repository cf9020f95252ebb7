// Package minio implements blobstore.Store for MinIO and other
// S3-compatible object stores.
//
// Self-hosted deployments get the same streaming snapshot storage as the
// blobstore/s3 package without an AWS dependency.
package minio
