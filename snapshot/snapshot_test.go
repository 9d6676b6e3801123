// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
)

func testBoard() board.Board {
	return board.Board{
		ID:         "board-1",
		Title:      "Launch plan",
		ShareToken: "tok-123",
		Channel:    7,
		Columns: []board.Column{
			{ID: "col-a", BoardID: "board-1", Title: "Todo", Position: 0, Cards: []board.Card{
				{ID: "c1", ColumnID: "col-a", Title: "Write draft", Position: 0, LabelIDs: []string{"l1"}},
				{ID: "c2", ColumnID: "col-a", Title: "Review draft", Position: 1},
			}},
			{ID: "col-b", BoardID: "board-1", Title: "Done", Position: 1, Cards: []board.Card{
				{ID: "c3", ColumnID: "col-b", Title: "Kickoff", Position: 0},
			}},
		},
		Labels: []board.Label{
			{ID: "l1", BoardID: "board-1", Name: "urgent", Color: "#ff0000"},
			{ID: "l2", BoardID: "board-1", Name: "design", Color: "#00aa55"},
		},
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")
	want := Snapshot{
		Board:   testBoard(),
		SavedAt: time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC),
	}

	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(got.Board, want.Board) {
		t.Errorf("Board roundtrip:\n got %#v\nwant %#v", got.Board, want.Board)
	}
	if !got.SavedAt.Equal(want.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", got.SavedAt, want.SavedAt)
	}
}

func TestWriteDeterministic(t *testing.T) {
	directory := t.TempDir()
	snapshot := Snapshot{
		Board:   testBoard(),
		SavedAt: time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC),
	}

	firstPath := filepath.Join(directory, "first.fxbs")
	secondPath := filepath.Join(directory, "second.fxbs")
	if err := Write(firstPath, snapshot); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	if err := Write(secondPath, snapshot); err != nil {
		t.Fatalf("Write second: %v", err)
	}

	first, err := os.ReadFile(firstPath)
	if err != nil {
		t.Fatalf("ReadFile first: %v", err)
	}
	second, err := os.ReadFile(secondPath)
	if err != nil {
		t.Fatalf("ReadFile second: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same snapshot should produce byte-identical files")
	}
}

func TestWriteOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")

	first := Snapshot{Board: testBoard(), SavedAt: time.Now()}
	if err := Write(path, first); err != nil {
		t.Fatalf("Write first: %v", err)
	}

	second := first
	second.Board.Title = "Launch plan v2"
	if err := Write(path, second); err != nil {
		t.Fatalf("Write second: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Board.Title != "Launch plan v2" {
		t.Errorf("Title = %q, want %q (second write should overwrite)", got.Board.Title, "Launch plan v2")
	}
}

func TestWriteFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")

	if err := Write(path, Snapshot{Board: testBoard(), SavedAt: time.Now()}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if permissions := info.Mode().Perm(); permissions != 0600 {
		t.Errorf("permissions = %04o, want 0600", permissions)
	}
}

func TestWriteNoTemporaryFileLeftBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")

	if err := Write(path, Snapshot{Board: testBoard(), SavedAt: time.Now()}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	temporaryPath := path + ".tmp"
	if _, err := os.Stat(temporaryPath); !os.IsNotExist(err) {
		t.Errorf("temporary file %s still exists after successful Write", temporaryPath)
	}
}

func TestWriteParentDirectoryMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent", "board.fxbs")

	if err := Write(path, Snapshot{Board: testBoard(), SavedAt: time.Now()}); err == nil {
		t.Fatal("Write to nonexistent parent directory should fail")
	}
}

func TestReadNonexistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.fxbs")

	_, err := Read(path)
	if err == nil {
		t.Fatal("Read nonexistent file should return an error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap os.ErrNotExist, got: %v", err)
	}
}

func TestReadFlippedBodyByteFailsChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")
	if err := Write(path, Snapshot{Board: testBoard(), SavedAt: time.Now()}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Read(path)
	if err == nil {
		t.Fatal("Read should reject a corrupted body")
	}
	if !strings.Contains(err.Error(), "checksum") {
		t.Errorf("error should name the checksum failure, got: %v", err)
	}
}

func TestReadTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")
	if err := os.WriteFile(path, []byte("FXBS"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Read(path); err == nil {
		t.Fatal("Read should reject a file shorter than the header")
	}
}

func TestReadWrongMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")
	data := make([]byte, headerSize)
	copy(data, "JPEG")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Read(path)
	if err == nil {
		t.Fatal("Read should reject a file with wrong magic")
	}
	if !strings.Contains(err.Error(), "magic") {
		t.Errorf("error should name the magic failure, got: %v", err)
	}
}

func TestReadUnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")
	if err := Write(path, Snapshot{Board: testBoard(), SavedAt: time.Now()}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[4] = 0x7f
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Read(path)
	if err == nil {
		t.Fatal("Read should reject an unknown format version")
	}
	if !strings.Contains(err.Error(), "version") {
		t.Errorf("error should name the version failure, got: %v", err)
	}
}

func TestCheckRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")
	savedAt := time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC)
	if err := Write(path, Snapshot{Board: testBoard(), SavedAt: savedAt}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, found, err := Check(path, time.Minute, savedAt.Add(30*time.Second))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !found {
		t.Fatal("Check should return found=true for a recent snapshot")
	}
	if got.Board.ID != "board-1" {
		t.Errorf("Board.ID = %q, want %q", got.Board.ID, "board-1")
	}

	// A snapshot exactly maxAge old is still usable.
	_, found, err = Check(path, time.Minute, savedAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("Check at boundary: %v", err)
	}
	if !found {
		t.Error("Check should return found=true at exactly maxAge")
	}
}

func TestCheckStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")
	savedAt := time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC)
	if err := Write(path, Snapshot{Board: testBoard(), SavedAt: savedAt}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, found, err := Check(path, time.Minute, savedAt.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if found {
		t.Error("Check should return found=false for a stale snapshot")
	}
}

func TestCheckNonexistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.fxbs")

	_, found, err := Check(path, time.Minute, time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Check should not return an error for nonexistent file, got: %v", err)
	}
	if found {
		t.Error("Check should return found=false for nonexistent file")
	}
}

func TestCheckCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")
	if err := os.WriteFile(path, []byte("FXBS garbage that is long enough to pass the header length check"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, _, err := Check(path, time.Minute, time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC))
	if err == nil {
		t.Fatal("Check should return an error for a corrupt snapshot (not silently ignore it)")
	}
}

func TestClearExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.fxbs")
	if err := Write(path, Snapshot{Board: testBoard(), SavedAt: time.Now()}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := Clear(path); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist after Clear")
	}
}

func TestClearNonexistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.fxbs")

	if err := Clear(path); err != nil {
		t.Errorf("Clear nonexistent file should be idempotent, got: %v", err)
	}
}

func TestPathFor(t *testing.T) {
	got := PathFor("/var/cache/fluxboard", "tok-123")
	want := filepath.Join("/var/cache/fluxboard", "tok-123.fxbs")
	if got != want {
		t.Errorf("PathFor = %q, want %q", got, want)
	}
}
