package hashdb

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecstore/blobstore"
)

// latestPointer is the blob holding the name of the newest backup when the
// store has no commit log.
const latestPointer = "LATEST"

// BackupTo streams a snapshot into the blob store under prefix and records
// it as the latest backup. It returns the name of the written blob.
//
// When the store implements blobstore.Committer, the latest pointer is
// updated through its commit log. Otherwise a plain pointer blob named
// "LATEST" is written, which is safe only for a single backup writer.
func (db *DB) BackupTo(ctx context.Context, store blobstore.Store, prefix string) (string, error) {
	name := path.Join(prefix, backupName())

	pr, pw := io.Pipe()

	saveErr := make(chan error, 1)

	go func() {
		err := db.Save(ctx, pw)
		pw.CloseWithError(err)
		saveErr <- err
	}()

	putErr := store.Put(ctx, name, pr)
	if putErr != nil {
		// Unblock the snapshot writer if the upload died first.
		pr.CloseWithError(putErr)
	}

	if err := <-saveErr; err != nil {
		return "", err
	}

	if putErr != nil {
		return "", fmt.Errorf("hashdb: upload backup: %w", putErr)
	}

	if c, ok := store.(blobstore.Committer); ok {
		if _, err := c.Commit(ctx, name); err != nil {
			return "", fmt.Errorf("hashdb: commit backup: %w", err)
		}
	} else {
		pointer := path.Join(prefix, latestPointer)
		if err := store.Put(ctx, pointer, strings.NewReader(name)); err != nil {
			return "", fmt.Errorf("hashdb: update latest pointer: %w", err)
		}
	}

	db.logger.Info("backup written", "blob", name)

	return name, nil
}

// RestoreFrom replaces the database contents with the named backup blob.
func (db *DB) RestoreFrom(ctx context.Context, store blobstore.Store, name string) error {
	rc, err := store.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("hashdb: open backup %q: %w", name, err)
	}
	defer rc.Close()

	if err := db.Load(ctx, rc); err != nil {
		return err
	}

	db.logger.Info("backup restored", "blob", name)

	return nil
}

// RestoreLatest restores the most recent backup under prefix and returns
// the name of the blob it restored from.
func (db *DB) RestoreLatest(ctx context.Context, store blobstore.Store, prefix string) (string, error) {
	name, err := latestBackup(ctx, store, prefix)
	if err != nil {
		return "", err
	}

	if err := db.RestoreFrom(ctx, store, name); err != nil {
		return "", err
	}

	return name, nil
}

func latestBackup(ctx context.Context, store blobstore.Store, prefix string) (string, error) {
	if c, ok := store.(blobstore.Committer); ok {
		name, err := c.Latest(ctx)
		if err != nil {
			return "", fmt.Errorf("hashdb: read commit log: %w", err)
		}

		return name, nil
	}

	rc, err := store.Open(ctx, path.Join(prefix, latestPointer))
	if err != nil {
		return "", fmt.Errorf("hashdb: read latest pointer: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("hashdb: read latest pointer: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

// backupName builds a sortable, collision-free blob name.
func backupName() string {
	ts := time.Now().UTC().Format("20060102T150405")

	return fmt.Sprintf("snap-%s-%s.vsnap", ts, uuid.NewString()[:8])
}
