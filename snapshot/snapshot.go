// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot persists a board replica to a local cache file so a
// session can open with recent state while the Board Service is slow or
// unreachable. A session writes a snapshot after convergence points; on
// the next open, Check returns the cached board when the file verifies
// and is fresh enough.
//
// The file is written atomically (write to temporary file, fsync,
// rename) so readers never see a partial snapshot, and every load
// verifies a keyed checksum before the body is decoded. A snapshot is a
// cache: any verification failure means cold start, never repair.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
)

// Snapshot is the persisted payload: the full board replica plus the
// time it was captured. SavedAt is set by the caller so tests control
// it; Check compares it against the freshness window.
//
// The board's own types carry json tags only; CBOR encodes them under
// those same field names.
type Snapshot struct {
	Board   board.Board `cbor:"board"`
	SavedAt time.Time   `cbor:"saved_at"`
}

// snapshotVersion is the cache file format version byte. Bumped on any
// layout or body encoding change; readers reject versions they do not
// know.
const snapshotVersion byte = 0x01

// fileMagic identifies a fluxboard snapshot file. Readable ASCII so the
// format is recognizable in hex dumps.
var fileMagic = [4]byte{'F', 'X', 'B', 'S'}

// headerSize is the fixed prefix before the compressed body: magic (4),
// version (1), uncompressed body size (4), checksum (32).
const headerSize = 4 + 1 + 4 + 32

// checksumDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// snapshot bodies. A fixed constant; changing it invalidates every
// existing snapshot file. The byte values are the ASCII encoding of the
// domain name, zero-padded to 32 bytes, so the key is inspectable in
// hex dumps without sacrificing any property of BLAKE3 keyed mode.
var checksumDomainKey = [32]byte{
	'f', 'l', 'u', 'x', 'b', 'o', 'a', 'r', 'd', '.', 's', 'n', 'a', 'p', 's', 'h',
	'o', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer encoding,
// no indefinite-length items. The same board state always produces
// identical file bytes.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are silently ignored for forward compatibility.
var decMode cbor.DecMode

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. zstd.Encoder and zstd.Decoder are
// safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// PathFor returns the snapshot file path for one board inside cacheDir.
// Boards are keyed by share token, which is already a URL-safe string.
func PathFor(cacheDir, shareToken string) string {
	return filepath.Join(cacheDir, shareToken+".fxbs")
}

// Write atomically writes a snapshot file:
//
//	[Magic: 4 bytes "FXBS"] [Version: 1 byte (0x01)]
//	[Uncompressed size: 4 bytes big-endian]
//	[Checksum: 32 bytes keyed BLAKE3 of the compressed body]
//	[Body: zstd-compressed deterministic CBOR of Snapshot]
//
// The checksum covers the compressed body, so corruption is caught
// before the decompressor ever runs. The file is written to a temporary
// location in the same directory, fsynced for durability, and renamed
// into place; readers never see a partial write.
//
// The file is created with mode 0600 (owner read/write only). The
// parent directory must already exist.
func Write(path string, snapshot Snapshot) error {
	body, err := encMode.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot body: %w", err)
	}
	if len(body) > math.MaxUint32 {
		return fmt.Errorf("snapshot body is %d bytes, exceeds format maximum", len(body))
	}

	compressed := zstdEncoder.EncodeAll(body, nil)
	sum := checksum(compressed)

	data := make([]byte, 0, headerSize+len(compressed))
	data = append(data, fileMagic[:]...)
	data = append(data, snapshotVersion)
	data = binary.BigEndian.AppendUint32(data, uint32(len(body)))
	data = append(data, sum[:]...)
	data = append(data, compressed...)

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary snapshot file: %w", err)
	}

	// Write, sync, close, in that order. If any step fails, remove the
	// temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary snapshot file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary snapshot file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary snapshot file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming snapshot file into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss
	// between the rename and the OS flushing directory metadata.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}

// Read reads, verifies, and decodes a snapshot file. When the file does
// not exist, the returned error wraps os.ErrNotExist (testable with
// errors.Is). Any framing, checksum, or decode failure is an error;
// Read never returns a partially trusted board.
func Read(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}

	if len(data) < headerSize {
		return Snapshot{}, fmt.Errorf("snapshot file %s is %d bytes, minimum is %d", path, len(data), headerSize)
	}
	if !bytes.Equal(data[:4], fileMagic[:]) {
		return Snapshot{}, fmt.Errorf("snapshot file %s is not a snapshot (bad magic)", path)
	}
	if version := data[4]; version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("snapshot file %s version %d is not supported (expected %d)",
			path, version, snapshotVersion)
	}

	uncompressedSize := binary.BigEndian.Uint32(data[5:9])
	var stored [32]byte
	copy(stored[:], data[9:headerSize])
	compressed := data[headerSize:]

	if computed := checksum(compressed); computed != stored {
		return Snapshot{}, fmt.Errorf("snapshot file %s failed checksum verification", path)
	}

	body, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return Snapshot{}, fmt.Errorf("decompressing snapshot file %s: %w", path, err)
	}
	if len(body) != int(uncompressedSize) {
		return Snapshot{}, fmt.Errorf("snapshot file %s body is %d bytes, header says %d",
			path, len(body), uncompressedSize)
	}

	var snapshot Snapshot
	if err := decMode.Unmarshal(body, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("parsing snapshot file %s: %w", path, err)
	}
	return snapshot, nil
}

// Check reads a snapshot file and verifies it was written recently
// enough to be useful. Returns the snapshot and true when the file
// exists, verifies, and its SavedAt is within maxAge of now. Returns a
// zero Snapshot and false when the file does not exist or is older than
// maxAge. The caller supplies now; nothing in this package reads the
// wall clock.
//
// Any other error (permission denied, corruption, version mismatch) is
// returned as-is so the caller can distinguish "no snapshot" from
// "snapshot exists but unusable."
func Check(path string, maxAge time.Duration, now time.Time) (Snapshot, bool, error) {
	snapshot, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}

	if now.Sub(snapshot.SavedAt) > maxAge {
		return Snapshot{}, false, nil
	}

	return snapshot, true, nil
}

// Clear removes a snapshot file. Idempotent: returns nil when the file
// does not exist.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing snapshot file: %w", err)
	}
	return nil
}

// checksum computes the snapshot-domain BLAKE3 keyed hash of data.
func checksum(data []byte) [32]byte {
	// NewKeyed requires exactly 32 bytes, which checksumDomainKey
	// guarantees, so this cannot fail.
	hasher, err := blake3.NewKeyed(checksumDomainKey[:])
	if err != nil {
		panic("snapshot: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}
