package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"diskscout/internal/domain"
)

const (
	// DefaultThreshold is the aggregate size a directory must exceed to be
	// recorded when it lies deeper than the materialization depth.
	DefaultThreshold uint64 = 1024 * 1024
	// DefaultMaterializeDepth is how many levels below the scan root are
	// always recorded regardless of size.
	DefaultMaterializeDepth = 2
)

// FSScanner walks one directory subtree depth-first and sums file sizes
// bottom-up. It keeps no state between calls and is safe for concurrent use.
type FSScanner struct {
	filter    *PathFilter
	threshold uint64
	depth     int
	logger    *slog.Logger
}

type ScannerOption func(*FSScanner)

func WithPathFilter(filter *PathFilter) ScannerOption {
	return func(scanner *FSScanner) {
		scanner.filter = filter
	}
}

func WithThreshold(threshold uint64) ScannerOption {
	return func(scanner *FSScanner) {
		scanner.threshold = threshold
	}
}

func WithMaterializeDepth(depth int) ScannerOption {
	return func(scanner *FSScanner) {
		scanner.depth = depth
	}
}

func WithScannerLogger(logger *slog.Logger) ScannerOption {
	return func(scanner *FSScanner) {
		if logger != nil {
			scanner.logger = logger
		}
	}
}

func NewFSScanner(opts ...ScannerOption) *FSScanner {
	scanner := &FSScanner{
		filter:    NewPathFilter(),
		threshold: DefaultThreshold,
		depth:     DefaultMaterializeDepth,
		logger:    discardLogger(),
	}
	for _, opt := range opts {
		opt(scanner)
	}
	return scanner
}

func (scanner *FSScanner) Filter() *PathFilter {
	return scanner.filter
}

// Scan walks path, which sits depth levels below the scan root, and returns
// its aggregate size. Directories are recorded into store once their walk
// completes, if they pass the materialization rule. The scan root itself
// (depth 0) is never recorded. Symlinked files count at their target's
// size; symlinked directories are not followed. Unreadable directories and
// entries that vanish mid-walk count as zero. Only cancellation and store
// exhaustion are returned as errors.
func (scanner *FSScanner) Scan(ctx context.Context, path string, depth int, store *ResultStore, files *atomic.Uint64, progress *ProgressMirror) (uint64, error) {
	size, _, err := scanner.walk(ctx, path, depth, store, files, progress)
	return size, err
}

func (scanner *FSScanner) walk(ctx context.Context, dir string, depth int, store *ResultStore, files *atomic.Uint64, progress *ProgressMirror) (uint64, uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	entries, err := readDir(dir)
	if err != nil {
		scanner.logger.Debug("directory unreadable", "path", dir, "error", err)
		if len(entries) == 0 {
			return 0, 0, nil
		}
	}

	var total, count uint64
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		name := entry.Name()
		if entry.IsDir() && scanner.filter.ShouldSkip(name) {
			continue
		}
		child := filepath.Join(dir, name)
		info, err := entryInfo(child, entry)
		if err != nil {
			continue
		}
		switch {
		case info.IsDir():
			size, nested, err := scanner.walk(ctx, child, depth+1, store, files, progress)
			if err != nil {
				return 0, 0, err
			}
			total += size
			count += nested
		case info.Mode().IsRegular():
			size := uint64(info.Size())
			total += size
			count++
			if files != nil {
				files.Add(1)
			}
			if progress != nil {
				progress.Observe(child, size)
			}
		}
	}

	if scanner.materialize(depth, total) {
		record := domain.DirectoryRecord{Path: dir, Size: total, FileCount: count}
		if _, err := store.Append(record); err != nil {
			return 0, 0, err
		}
	}
	return total, count, nil
}

func (scanner *FSScanner) materialize(depth int, size uint64) bool {
	if depth <= 0 {
		return false
	}
	return size > scanner.threshold || depth <= scanner.depth
}

// readDir lists dir in name order. On a partial read it returns the entries
// read so far together with the error.
func readDir(dir string) ([]os.DirEntry, error) {
	handle, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	entries, err := handle.ReadDir(-1)
	sortEntries(entries)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return entries, err
}

// entryInfo is lstat metadata, except that a symlink to a regular file
// reports its target. Links to directories and dangling links stay links,
// so they are neither counted nor followed.
func entryInfo(path string, entry os.DirEntry) (os.FileInfo, error) {
	info, err := entry.Info()
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return info, err
	}
	target, err := os.Stat(path)
	if err != nil || !target.Mode().IsRegular() {
		return info, nil
	}
	return target, nil
}

func cleanPath(path string) string {
	if path == "" {
		return path
	}
	clean := filepath.Clean(path)
	abs, err := filepath.Abs(clean)
	if err != nil {
		return clean
	}
	return abs
}

func isWithin(root, path string) bool {
	if root == path {
		return true
	}
	rootWithSep := strings.TrimSuffix(root, string(filepath.Separator)) + string(filepath.Separator)
	return strings.HasPrefix(path, rootWithSep)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
