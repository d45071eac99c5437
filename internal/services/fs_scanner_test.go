package services

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, scanner *FSScanner, root string) (uint64, uint64, *ResultStore, *ProgressMirror) {
	t.Helper()
	store := NewResultStore(4)
	progress := NewProgressMirror()
	progress.Reset(root)
	var files atomic.Uint64
	size, err := scanner.Scan(context.Background(), root, 0, store, &files, progress)
	require.NoError(t, err)
	return size, files.Load(), store, progress
}

func TestScannerMaterializationRule(t *testing.T) {
	root := t.TempDir()
	writeSized(t, filepath.Join(root, "a", "one.txt"), 10)
	writeSized(t, filepath.Join(root, "a", "b", "two.txt"), 20)
	writeSized(t, filepath.Join(root, "a", "b", "c", "three.txt"), 30)
	writeSized(t, filepath.Join(root, "a", "b", "big", "blob.bin"), 2*1024*1024)

	size, files, store, _ := scanAll(t, NewFSScanner(), root)

	assert.Equal(t, uint64(60+2*1024*1024), size)
	assert.Equal(t, uint64(4), files)

	records := store.Records()
	require.Len(t, records, 3)
	// Post-order: a directory is recorded after everything beneath it.
	assert.Equal(t, filepath.Join(root, "a", "b", "big"), records[0].Path)
	assert.Equal(t, filepath.Join(root, "a", "b"), records[1].Path)
	assert.Equal(t, filepath.Join(root, "a"), records[2].Path)
	assert.Equal(t, size, records[2].Size)
	assert.Equal(t, uint64(4), records[2].FileCount)
	assert.Equal(t, uint64(20+30+2*1024*1024), records[1].Size)
	assert.NotContains(t, recordPaths(records), root)
	assert.NotContains(t, recordPaths(records), filepath.Join(root, "a", "b", "c"))
}

func TestScannerCustomThresholdAndDepth(t *testing.T) {
	root := t.TempDir()
	writeSized(t, filepath.Join(root, "a", "b", "file"), 500)
	writeSized(t, filepath.Join(root, "x", "small"), 5)

	scanner := NewFSScanner(WithThreshold(100), WithMaterializeDepth(0))
	_, _, store, _ := scanAll(t, scanner, root)

	assert.Equal(t, []string{
		filepath.Join(root, "a"),
		filepath.Join(root, "a", "b"),
	}, recordPaths(store.Records()))
}

func TestScannerSkipsFilteredDirectories(t *testing.T) {
	root := t.TempDir()
	writeSized(t, filepath.Join(root, ".git", "objects", "pack", "pack-1.pack"), 5000)
	writeSized(t, filepath.Join(root, "web", "node_modules", "lib", "index.js"), 4000)
	writeSized(t, filepath.Join(root, "web", "app.js"), 30)
	writeSized(t, filepath.Join(root, "code.txt"), 10)
	// Only directories are filtered; a regular file named like a skipped
	// directory still counts.
	writeSized(t, filepath.Join(root, "Cache"), 7)

	size, files, store, _ := scanAll(t, NewFSScanner(), root)

	assert.Equal(t, uint64(47), size)
	assert.Equal(t, uint64(3), files)
	for _, path := range recordPaths(store.Records()) {
		assert.NotContains(t, path, ".git")
		assert.NotContains(t, path, "node_modules")
	}
}

func TestScannerExtraSkipNames(t *testing.T) {
	root := t.TempDir()
	writeSized(t, filepath.Join(root, "target", "app.bin"), 900)
	writeSized(t, filepath.Join(root, "main.rs"), 100)

	size, files, _, _ := scanAll(t, NewFSScanner(WithPathFilter(NewPathFilter("target"))), root)
	assert.Equal(t, uint64(100), size)
	assert.Equal(t, uint64(1), files)
}

func TestScannerSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeSized(t, filepath.Join(outside, "huge.bin"), 1<<20)
	writeSized(t, filepath.Join(outside, "nested", "more.bin"), 1<<21)
	writeSized(t, filepath.Join(root, "real.txt"), 10)
	if err := os.Symlink(filepath.Join(outside, "huge.bin"), filepath.Join(root, "link.bin")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "linkdir")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "gone"), filepath.Join(root, "dangling")))

	size, files, _, _ := scanAll(t, NewFSScanner(), root)
	assert.Equal(t, uint64(10+1<<20), size, "file links count their target, directory links are not followed")
	assert.Equal(t, uint64(2), files)
}

func TestScannerAbsorbsUnreadableDirectories(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := t.TempDir()
	writeSized(t, filepath.Join(root, "open", "ok.txt"), 10)
	writeSized(t, filepath.Join(root, "locked", "secret.txt"), 1000)
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	size, files, store, _ := scanAll(t, NewFSScanner(), root)
	assert.Equal(t, uint64(10), size)
	assert.Equal(t, uint64(1), files)

	paths := recordPaths(store.Records())
	assert.Contains(t, paths, filepath.Join(root, "open"))
	assert.NotContains(t, paths, locked, "a directory that cannot be opened is not recorded")
}

func TestScannerMissingDirectoryIsEmpty(t *testing.T) {
	size, files, store, _ := scanAll(t, NewFSScanner(), filepath.Join(t.TempDir(), "gone"))
	assert.Zero(t, size)
	assert.Zero(t, files)
	assert.Zero(t, store.Len())
}

func TestScannerUpdatesProgress(t *testing.T) {
	root, total, count := buildTree(t)
	size, files, _, progress := scanAll(t, NewFSScanner(), root)

	snapshot := progress.Snapshot()
	assert.Equal(t, total, size)
	assert.Equal(t, count, files)
	assert.Equal(t, total, snapshot.BytesScanned)
	assert.Equal(t, count, snapshot.FilesScanned)
	assert.True(t, isWithin(root, snapshot.Current))
}

func TestScannerStopsOnCancel(t *testing.T) {
	root, _, _ := buildTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var files atomic.Uint64
	store := NewResultStore(4)
	_, err := NewFSScanner().Scan(ctx, root, 0, store, &files, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.Len())
}

func TestScannerReportsStoreExhaustion(t *testing.T) {
	root, _, _ := buildTree(t)
	var files atomic.Uint64
	store := NewResultStore(1, WithRecordLimit(2))
	_, err := NewFSScanner().Scan(context.Background(), root, 0, store, &files, nil)
	assert.ErrorIs(t, err, ErrStoreFull)
}
