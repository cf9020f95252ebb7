package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for durable storage of named blobs.
//
// Blob names use "/" as a separator regardless of platform, e.g.
// "backups/orders/snap-0001.vsnap".
type Store interface {
	// Put streams the contents of r into the blob, replacing any previous
	// contents under the same name.
	Put(ctx context.Context, name string, r io.Reader) error

	// Open opens the blob for sequential reading. The caller must close the
	// returned reader.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs starting with prefix, sorted
	// lexically. An empty prefix lists everything.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Committer is an optional interface for stores that can record the most
// recent blob of a series atomically. Backup code prefers it over a plain
// pointer blob when the store supports it, so concurrent writers cannot
// clobber each other's pointer updates.
type Committer interface {
	// Commit records name as the latest committed blob and returns the new
	// commit version.
	Commit(ctx context.Context, name string) (uint64, error)

	// Latest returns the most recently committed blob name. It returns
	// ErrNotFound when nothing has been committed yet.
	Latest(ctx context.Context) (string, error)
}

// ValidateName rejects names that are empty, absolute, or escape the store
// root via ".." elements.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("blobstore: empty blob name")
	}

	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("blobstore: absolute blob name %q", name)
	}

	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return fmt.Errorf("blobstore: blob name %q escapes store root", name)
		}
	}

	return nil
}
