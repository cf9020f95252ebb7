package hashdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/internal/iolimit"
)

// Compression defines the compression algorithm used for snapshots.
type Compression uint8

const (
	// CompressionNone stores snapshots uncompressed.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 stream compression (fast, moderate ratio).
	CompressionLZ4 Compression = 1
	// CompressionZstd uses zstd stream compression (better ratio).
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

var (
	snapshotMagic = [4]byte{'V', 'S', 'H', 'D'}

	snapshotVersion = uint8(1)
)

// maxCodecNameLen bounds the codec name field so a corrupt header cannot
// trigger a huge allocation.
const maxCodecNameLen = 256

type snapshotData struct {
	Namespaces []snapshotNamespace `json:"namespaces"`
}

type snapshotNamespace struct {
	Name          string            `json:"name"`
	IndexedFields []string          `json:"indexed_fields,omitempty"`
	Records       map[string]Record `json:"records"`
}

// Save serializes the entire database into w. The stream starts with a
// fixed header naming the compression and codec, so Load can decode it with
// any configuration.
//
// Namespaces are captured one at a time. Writes that land during the save
// may or may not be included, but every namespace is internally consistent.
func (db *DB) Save(ctx context.Context, w io.Writer) error {
	snap := db.buildSnapshot()

	payload, err := db.codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("hashdb: marshal snapshot: %w", err)
	}

	lw := iolimit.NewWriter(ctx, w, db.ioRate)

	if err := writeSnapshotHeader(lw, db.compression, db.codec.Name()); err != nil {
		return err
	}

	cw, err := newCompressionWriter(lw, db.compression)
	if err != nil {
		return err
	}

	if _, err := cw.Write(payload); err != nil {
		cw.Close()

		return fmt.Errorf("hashdb: write snapshot: %w", err)
	}

	if err := cw.Close(); err != nil {
		return fmt.Errorf("hashdb: flush snapshot: %w", err)
	}

	total := 0
	for _, ns := range snap.Namespaces {
		total += len(ns.Records)
	}

	db.logger.Info("snapshot saved",
		"namespaces", len(snap.Namespaces),
		"records", total,
		"compression", db.compression.String(),
		"codec", db.codec.Name(),
	)

	return nil
}

// Load replaces the entire database contents with a snapshot previously
// written by Save. Callers must ensure no concurrent access while a restore
// is in progress.
func (db *DB) Load(ctx context.Context, r io.Reader) error {
	lr := iolimit.NewReader(ctx, r, db.ioRate)

	compression, codecName, err := readSnapshotHeader(lr)
	if err != nil {
		return err
	}

	c, err := codec.ByName(codecName)
	if err != nil {
		return fmt.Errorf("hashdb: snapshot codec: %w", err)
	}

	cr, err := newCompressionReader(lr, compression)
	if err != nil {
		return err
	}
	defer cr.Close()

	payload, err := io.ReadAll(cr)
	if err != nil {
		return fmt.Errorf("hashdb: read snapshot: %w", err)
	}

	var snap snapshotData
	if err := c.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("hashdb: unmarshal snapshot: %w", err)
	}

	db.namespaces.Clear()

	total := 0

	for _, s := range snap.Namespaces {
		ns := newNamespace(s.Name, s.IndexedFields)

		for key, rec := range s.Records {
			ns.set(key, rec)
		}

		db.namespaces.Store(s.Name, ns)
		total += len(s.Records)
	}

	db.logger.Info("snapshot loaded",
		"namespaces", len(snap.Namespaces),
		"records", total,
		"compression", compression.String(),
		"codec", codecName,
	)

	return nil
}

func (db *DB) buildSnapshot() snapshotData {
	snap := snapshotData{}

	db.namespaces.Range(func(name string, ns *namespace) bool {
		s := snapshotNamespace{
			Name:          name,
			IndexedFields: append([]string(nil), ns.indexedFields...),
			Records:       make(map[string]Record, ns.records.Size()),
		}

		ns.records.Range(func(key string, rec Record) bool {
			s.Records[key] = rec

			return true
		})

		snap.Namespaces = append(snap.Namespaces, s)

		return true
	})

	return snap
}

func writeSnapshotHeader(w io.Writer, compression Compression, codecName string) error {
	if _, err := w.Write(snapshotMagic[:]); err != nil {
		return fmt.Errorf("hashdb: write snapshot header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, snapshotVersion); err != nil {
		return fmt.Errorf("hashdb: write snapshot header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint8(compression)); err != nil {
		return fmt.Errorf("hashdb: write snapshot header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(codecName))); err != nil {
		return fmt.Errorf("hashdb: write snapshot header: %w", err)
	}

	if _, err := io.WriteString(w, codecName); err != nil {
		return fmt.Errorf("hashdb: write snapshot header: %w", err)
	}

	return nil
}

func readSnapshotHeader(r io.Reader) (Compression, string, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, "", fmt.Errorf("hashdb: read snapshot header: %w", err)
	}

	if magic != snapshotMagic {
		return 0, "", fmt.Errorf("hashdb: bad snapshot magic %q", magic)
	}

	var version uint8
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, "", fmt.Errorf("hashdb: read snapshot header: %w", err)
	}

	if version != snapshotVersion {
		return 0, "", fmt.Errorf("hashdb: unsupported snapshot version %d", version)
	}

	var compression uint8
	if err := binary.Read(r, binary.LittleEndian, &compression); err != nil {
		return 0, "", fmt.Errorf("hashdb: read snapshot header: %w", err)
	}

	if compression > uint8(CompressionZstd) {
		return 0, "", fmt.Errorf("hashdb: unsupported snapshot compression %d", compression)
	}

	var nameLen uint32
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return 0, "", fmt.Errorf("hashdb: read snapshot header: %w", err)
	}

	if nameLen > maxCodecNameLen {
		return 0, "", fmt.Errorf("hashdb: snapshot codec name too long (%d bytes)", nameLen)
	}

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return 0, "", fmt.Errorf("hashdb: read snapshot header: %w", err)
	}

	return Compression(compression), string(name), nil
}

func newCompressionWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("hashdb: create zstd writer: %w", err)
		}

		return enc, nil
	default:
		return nil, fmt.Errorf("hashdb: unsupported snapshot compression %d", uint8(c))
	}
}

func newCompressionReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("hashdb: create zstd reader: %w", err)
		}

		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("hashdb: unsupported snapshot compression %d", uint8(c))
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}
