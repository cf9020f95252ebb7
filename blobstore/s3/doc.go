// Package s3 implements blobstore.Store on Amazon S3.
//
// Uploads stream through the s3/manager uploader, so snapshots larger than
// memory never buffer locally. CommitStore additionally layers a DynamoDB
// commit log on top, giving backups the atomic latest-pointer updates that
// plain S3 cannot provide.
package s3
