package services

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diskscout/internal/domain"
)

func scannedTree(t *testing.T) domain.ScanResult {
	t.Helper()
	root, _, _ := buildTree(t)
	result, err := NewCoordinator(NewFSScanner()).Run(context.Background(), root)
	require.NoError(t, err)
	require.NotEmpty(t, result.Records)
	return result
}

// entryOffset is where the fixed-size record of entry index starts. Entry 0
// is the root; record i of the saved slice is entry i+1.
func entryOffset(index int) int {
	return binary.Size(cacheHeader{}) + index*binary.Size(cacheEntryFields{})
}

// pathOffset is where entry index's path starts inside the file.
func pathOffset(data []byte, index int) int {
	entryCount := int(binary.LittleEndian.Uint32(data[8:]))
	tableStart := entryOffset(entryCount)
	return tableStart + int(binary.LittleEndian.Uint32(data[entryOffset(index):]))
}

func TestCacheRoundTrip(t *testing.T) {
	result := scannedTree(t)
	cache := newTestCache(t)

	require.NoError(t, cache.Save(result.RootPath, result.Records, result.TotalSize, result.FileCount))
	require.True(t, cache.IsValid(result.RootPath))

	loaded, ok := cache.Load(result.RootPath)
	require.True(t, ok)
	assert.True(t, loaded.FromCache)
	assert.Equal(t, result.TotalSize, loaded.TotalSize)
	assert.Equal(t, result.FileCount, loaded.FileCount)
	assert.Equal(t, result.Records, loaded.Records)
}

func TestCacheRoundTripWithoutRecords(t *testing.T) {
	root := t.TempDir()
	cache := newTestCache(t)

	require.NoError(t, cache.Save(root, nil, 6000, 3))
	loaded, ok := cache.Load(root)
	require.True(t, ok)
	assert.Equal(t, uint64(6000), loaded.TotalSize)
	assert.Equal(t, uint64(3), loaded.FileCount)
	assert.Empty(t, loaded.Records)
}

func TestCacheFreshness(t *testing.T) {
	result := scannedTree(t)
	cache := newTestCache(t)
	require.NoError(t, cache.Save(result.RootPath, result.Records, result.TotalSize, result.FileCount))
	require.True(t, cache.IsValid(result.RootPath))

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(result.RootPath, later, later))

	assert.False(t, cache.IsValid(result.RootPath))
	_, ok := cache.Load(result.RootPath)
	assert.False(t, ok)
}

func TestCacheMissingFileOrRoot(t *testing.T) {
	cache := newTestCache(t)
	root := t.TempDir()
	assert.False(t, cache.IsValid(root))

	require.NoError(t, cache.Save(root, nil, 0, 0))
	require.NoError(t, os.Remove(root))
	assert.False(t, cache.IsValid(root))
}

func TestCacheDropsCorruptedEntry(t *testing.T) {
	tests := []struct {
		name    string
		victim  int
		corrupt func(data []byte, entry int)
	}{
		{
			name:    "path offset",
			corrupt: func(data []byte, entry int) { data[entryOffset(entry)] ^= 0x01 },
		},
		{
			name:    "path length",
			corrupt: func(data []byte, entry int) { data[entryOffset(entry)+4] ^= 0x01 },
		},
		{
			name:    "path length out of range",
			corrupt: func(data []byte, entry int) { binary.LittleEndian.PutUint32(data[entryOffset(entry)+4:], 0xFFFFFFF0) },
		},
		{
			name:    "path bytes",
			corrupt: func(data []byte, entry int) { data[pathOffset(data, entry)+2] ^= 0x01 },
		},
		{
			name:    "mtime",
			corrupt: func(data []byte, entry int) { data[entryOffset(entry)+24] ^= 0x01 },
		},
		{
			name:    "checksum",
			corrupt: func(data []byte, entry int) { data[entryOffset(entry)+44] ^= 0x80 },
		},
		{
			name:    "middle entry",
			victim:  2,
			corrupt: func(data []byte, entry int) { data[entryOffset(entry)+4] ^= 0x01 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scannedTree(t)
			require.Greater(t, len(result.Records), tt.victim+1)
			cache := newTestCache(t)
			root := result.RootPath
			require.NoError(t, cache.Save(root, result.Records, result.TotalSize, result.FileCount))

			data, err := os.ReadFile(cache.FilePath(root))
			require.NoError(t, err)
			tt.corrupt(data, tt.victim+1)
			require.NoError(t, os.WriteFile(cache.FilePath(root), data, 0o600))

			loaded, ok := cache.Load(root)
			require.True(t, ok)
			want := append(append([]domain.DirectoryRecord{}, result.Records[:tt.victim]...), result.Records[tt.victim+1:]...)
			assert.Equal(t, want, loaded.Records, "exactly one entry is dropped")
			assert.Less(t, loaded.TotalSize, result.TotalSize, "the dropped entry's share is missing")
		})
	}
}

func TestCacheTruncatedFile(t *testing.T) {
	result := scannedTree(t)
	cache := newTestCache(t)
	root := result.RootPath
	require.NoError(t, cache.Save(root, result.Records, result.TotalSize, result.FileCount))

	info, err := os.Stat(cache.FilePath(root))
	require.NoError(t, err)
	require.NoError(t, os.Truncate(cache.FilePath(root), info.Size()-10))

	loaded, ok := cache.Load(root)
	require.True(t, ok)
	last := len(result.Records) - 1
	assert.Equal(t, result.Records[:last], loaded.Records, "only the entry whose path was cut is lost")
}

func TestCacheTruncatedInsideEntries(t *testing.T) {
	result := scannedTree(t)
	cache := newTestCache(t)
	root := result.RootPath
	require.NoError(t, cache.Save(root, result.Records, result.TotalSize, result.FileCount))

	require.NoError(t, os.Truncate(cache.FilePath(root), int64(entryOffset(2)+5)))
	_, ok := cache.Load(root)
	assert.False(t, ok, "without the path table the root cannot be confirmed")
}

func TestCacheRejectsBadHeader(t *testing.T) {
	tests := []struct {
		name   string
		offset int
	}{
		{name: "magic", offset: 0},
		{name: "version", offset: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			cache := newTestCache(t)
			require.NoError(t, cache.Save(root, []domain.DirectoryRecord{{Path: filepath.Join(root, "a"), Size: 1}}, 1, 1))

			data, err := os.ReadFile(cache.FilePath(root))
			require.NoError(t, err)
			binary.LittleEndian.PutUint32(data[tt.offset:], 0xDEADBEEF)
			require.NoError(t, os.WriteFile(cache.FilePath(root), data, 0o600))

			_, ok := cache.Load(root)
			assert.False(t, ok)
		})
	}
}

func TestCacheRejectsShortHeader(t *testing.T) {
	root := t.TempDir()
	cache := newTestCache(t)
	require.NoError(t, os.WriteFile(cache.FilePath(root), []byte{0x4B, 0x53}, 0o600))
	_, ok := cache.Load(root)
	assert.False(t, ok)
}

func TestCacheFileNameCollision(t *testing.T) {
	require.Equal(t, PathHash("Aa"), PathHash("BB"))

	base := t.TempDir()
	rootA := filepath.Join(base, "Aa")
	rootB := filepath.Join(base, "BB")
	mkdir(t, rootA)
	mkdir(t, rootB)
	cache := newTestCache(t)

	assert.Equal(t, cache.FileName(rootA), cache.FileName(rootB), "both roots share one cache file")

	require.NoError(t, cache.Save(rootA, nil, 10, 1))
	assert.True(t, cache.IsValid(rootB), "freshness alone cannot tell the roots apart")
	_, ok := cache.Load(rootB)
	assert.False(t, ok, "the header root guards against loading another tree")

	require.NoError(t, cache.Save(rootB, nil, 20, 2))
	_, ok = cache.Load(rootA)
	assert.False(t, ok, "saving one root evicts the other")
	loaded, ok := cache.Load(rootB)
	require.True(t, ok)
	assert.Equal(t, uint64(20), loaded.TotalSize)
}

func TestCacheFileName(t *testing.T) {
	cache := NewCacheStoreFS(osfs.New(t.TempDir()))
	assert.Equal(t, "cache_00000840.db", cache.FileName("Aa"))
	assert.Regexp(t, `^cache_[0-7][0-9a-f]{7}\.db$`, cache.FileName("/home/user/some/very/long/path/name"))
}

func TestCacheKeepsCreationTime(t *testing.T) {
	root := t.TempDir()
	first := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	now := first
	cache, err := NewCacheStore(t.TempDir(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	require.NoError(t, cache.Save(root, nil, 1, 1))
	now = first.Add(48 * time.Hour)
	require.NoError(t, cache.Save(root, nil, 2, 2))

	header, ok := cache.existingHeader(root)
	require.True(t, ok)
	assert.Equal(t, first.Unix(), header.CreatedAt)
	assert.Equal(t, now.Unix(), header.UpdatedAt)
}

func TestCacheInvalidate(t *testing.T) {
	root := t.TempDir()
	cache := newTestCache(t)
	require.NoError(t, cache.Invalidate(root), "nothing to remove")

	require.NoError(t, cache.Save(root, nil, 1, 1))
	require.FileExists(t, cache.FilePath(root))
	require.NoError(t, cache.Invalidate(root))
	assert.NoFileExists(t, cache.FilePath(root))
}

func TestCacheEntrySharesSumToTotals(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "data")
	records := []domain.DirectoryRecord{
		{Path: filepath.Join(root, "a", "b"), Size: 300, FileCount: 3},
		{Path: filepath.Join(root, "a"), Size: 500, FileCount: 5},
		{Path: filepath.Join(root, "c"), Size: 100, FileCount: 1},
	}
	entries := buildCacheEntries(root, records, 650, 7, 1700000000)
	require.Len(t, entries, 4)

	var size, files uint64
	for _, entry := range entries {
		size += entry.OwnSize
		files += uint64(entry.OwnFiles)
		assert.Equal(t, entryChecksum(entry.Path, 1700000000), entry.Checksum)
	}
	assert.Equal(t, uint64(650), size)
	assert.Equal(t, uint64(7), files)

	assert.Equal(t, uint64(50), entries[0].OwnSize, "root keeps its loose bytes")
	assert.Equal(t, uint32(2), entries[0].DirCount)
	assert.Equal(t, uint64(200), entries[2].OwnSize)
	assert.Equal(t, uint32(1), entries[2].DirCount)
}
