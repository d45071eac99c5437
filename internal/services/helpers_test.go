package services

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"diskscout/internal/domain"
)

// writeSized creates path (and its parents) as a sparse file of size bytes.
func writeSized(t *testing.T, path string, size int64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, file.Truncate(size))
	require.NoError(t, file.Close())
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
}

func recordPaths(records []domain.DirectoryRecord) []string {
	paths := make([]string, 0, len(records))
	for _, record := range records {
		paths = append(paths, record.Path)
	}
	sort.Strings(paths)
	return paths
}

func recordsByPath(records []domain.DirectoryRecord) map[string]domain.DirectoryRecord {
	byPath := make(map[string]domain.DirectoryRecord, len(records))
	for _, record := range records {
		byPath[record.Path] = record
	}
	return byPath
}

// buildTree lays out a small mixed tree and returns its root, total bytes
// and file count.
func buildTree(t *testing.T) (string, uint64, uint64) {
	t.Helper()
	root := t.TempDir()
	files := map[string]int64{
		"loose.txt":                100,
		"docs/a.txt":               2000,
		"docs/deep/b.txt":          3000,
		"docs/deep/deeper/c.bin":   2 * 1024 * 1024,
		"media/movie.mkv":          512 * 1024,
		"media/shows/s01/e01.mkv":  700,
		"src/main.go":              42,
		"src/internal/pkg/util.go": 58,
	}
	var total, count uint64
	for name, size := range files {
		writeSized(t, filepath.Join(root, name), size)
		total += uint64(size)
		count++
	}
	return root, total, count
}
