package services

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"diskscout/internal/domain"
)

const (
	cacheMagic   uint32 = 0x4449534B // "DISK"
	cacheVersion uint32 = 4
)

// cacheHeader opens the file. It is followed by EntryCount fixed-size
// entry records and then by the path table, a run of PathTableLen bytes
// holding every stored path. The root path sits at the start of the table.
type cacheHeader struct {
	Magic        uint32
	Version      uint32
	EntryCount   uint32
	TotalSize    uint64
	FileCount    uint32
	CreatedAt    int64
	UpdatedAt    int64
	RootLen      uint32
	PathTableLen uint32
}

// cacheEntryFields is one fixed-size entry record. The path lives in the
// path table at [PathOffset, PathOffset+PathLen), so a damaged record or
// damaged path bytes only ever fail that entry's checksum.
//
// Size and FileCount are the directory's aggregates. OwnSize and OwnFiles
// are the part of them not covered by any deeper cached directory, so the
// shares of all entries sum to the scan totals. The root is stored as an
// entry of its own carrying the bytes of its loose files.
type cacheEntryFields struct {
	PathOffset uint32
	PathLen    uint32
	Size       uint64
	OwnSize    uint64
	MTime      int64
	FileCount  uint32
	OwnFiles   uint32
	DirCount   uint32
	Checksum   uint32
}

type cacheEntry struct {
	Path string
	cacheEntryFields
}

// cacheFile is a decoded cache file. Entries holds the records read before
// any truncation; Table may likewise be shorter than declared.
type cacheFile struct {
	Header  cacheHeader
	Root    string
	Entries []cacheEntryFields
	Table   []byte
}

// CacheStore keeps one binary cache file per scanned root.
//
// Freshness is decided from the modification time of the root directory
// alone. Changes deep in the tree that leave the root's own mtime untouched
// are not noticed until the root itself changes or the cache is
// invalidated.
type CacheStore struct {
	fs     billy.Filesystem
	logger *slog.Logger
	now    func() time.Time
}

type CacheOption func(*CacheStore)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(store *CacheStore) {
		if logger != nil {
			store.logger = logger
		}
	}
}

func WithClock(now func() time.Time) CacheOption {
	return func(store *CacheStore) {
		if now != nil {
			store.now = now
		}
	}
}

// DefaultCacheDir is ~/.diskscout, or %APPDATA%\DiskScout on Windows.
func DefaultCacheDir() (string, error) {
	if runtime.GOOS == "windows" {
		base, err := os.UserConfigDir()
		if err != nil {
			return filepath.Abs(".diskscout")
		}
		return filepath.Join(base, "DiskScout"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Abs(".diskscout")
	}
	return filepath.Join(home, ".diskscout"), nil
}

// NewCacheStore creates dir if needed and stores cache files in it.
func NewCacheStore(dir string, opts ...CacheOption) (*CacheStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return NewCacheStoreFS(osfs.New(dir), opts...), nil
}

func NewCacheStoreFS(fs billy.Filesystem, opts ...CacheOption) *CacheStore {
	store := &CacheStore{
		fs:     fs,
		logger: discardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// PathHash is the base-31 rolling hash over the bytes of path.
func PathHash(path string) uint32 {
	var hash uint32
	for index := 0; index < len(path); index++ {
		hash = hash*31 + uint32(path[index])
	}
	return hash
}

// FileName returns the cache file name for root. Distinct roots can hash to
// the same name; such roots share and overwrite one file, and a load for
// the wrong root is rejected by the root path stored in the header.
func (store *CacheStore) FileName(root string) string {
	return fmt.Sprintf("cache_%08x.db", PathHash(root)&0x7FFFFFFF)
}

// FilePath is the location of root's cache file on the host filesystem.
func (store *CacheStore) FilePath(root string) string {
	return store.fs.Join(store.fs.Root(), store.FileName(root))
}

func entryChecksum(path string, mtime int64) uint32 {
	return PathHash(path) ^ uint32(mtime)
}

// IsValid reports whether a cache file for root exists and is not older
// than root's own modification time.
func (store *CacheStore) IsValid(root string) bool {
	cacheInfo, err := store.fs.Stat(store.FileName(root))
	if err != nil {
		return false
	}
	rootInfo, err := os.Stat(root)
	if err != nil {
		return false
	}
	return !cacheInfo.ModTime().Before(rootInfo.ModTime())
}

// Load reconstructs the results cached for root. It reports false when
// there is no fresh cache, its header is unusable or its root path cannot
// be read. Entries whose record or path bytes were cut off by truncation,
// and entries failing their checksum, are dropped one by one and their
// share is missing from the totals.
func (store *CacheStore) Load(root string) (domain.ScanResult, bool) {
	if !store.IsValid(root) {
		return domain.ScanResult{}, false
	}
	file, err := store.fs.Open(store.FileName(root))
	if err != nil {
		store.logger.Debug("cache open failed", "root", root, "error", err)
		return domain.ScanResult{}, false
	}
	defer file.Close()

	cached, err := readCache(bufio.NewReader(file))
	if err != nil {
		store.logger.Debug("cache rejected", "root", root, "error", err)
		return domain.ScanResult{}, false
	}
	if cached.Root != root {
		store.logger.Debug("cache belongs to another root", "root", root, "cached", cached.Root)
		return domain.ScanResult{}, false
	}

	result := domain.ScanResult{
		RootPath:  root,
		Records:   make([]domain.DirectoryRecord, 0, len(cached.Entries)),
		FromCache: true,
	}
	dropped, missing := 0, 0
	for _, fields := range cached.Entries {
		path, ok := tablePath(cached.Table, fields.PathOffset, fields.PathLen)
		if !ok {
			missing++
			continue
		}
		if fields.Checksum != entryChecksum(path, fields.MTime) {
			dropped++
			continue
		}
		result.TotalSize += fields.OwnSize
		result.FileCount += uint64(fields.OwnFiles)
		if path == root {
			continue
		}
		result.Records = append(result.Records, domain.DirectoryRecord{
			Path:      path,
			Size:      fields.Size,
			FileCount: uint64(fields.FileCount),
		})
	}
	declared := cached.Header.EntryCount
	if uint32(len(cached.Entries)) < declared || dropped > 0 || missing > 0 {
		store.logger.Debug("cache partially loaded",
			"root", root,
			"declared", declared,
			"read", len(cached.Entries),
			"dropped", dropped,
			"missing", missing,
		)
	} else if result.TotalSize != cached.Header.TotalSize {
		store.logger.Debug("cache totals disagree with header", "root", root, "entries", result.TotalSize, "header", cached.Header.TotalSize)
	}
	return result, true
}

// Save writes records for root. Entry checksums are bound to root's current
// modification time. The file is written under a temporary name and renamed
// into place.
func (store *CacheStore) Save(root string, records []domain.DirectoryRecord, totalSize, fileCount uint64) error {
	now := store.now()
	mtime := now.Unix()
	if info, err := os.Stat(root); err == nil {
		mtime = info.ModTime().Unix()
	}
	entries := buildCacheEntries(root, records, totalSize, fileCount, mtime)
	table, err := layoutPathTable(entries)
	if err != nil {
		return fmt.Errorf("cache %s: %w", root, err)
	}

	header := cacheHeader{
		Magic:        cacheMagic,
		Version:      cacheVersion,
		EntryCount:   uint32(len(entries)),
		TotalSize:    totalSize,
		FileCount:    clampUint32(fileCount),
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
		RootLen:      uint32(len(root)),
		PathTableLen: uint32(len(table)),
	}
	if previous, ok := store.existingHeader(root); ok {
		header.CreatedAt = previous.CreatedAt
	}

	tmp, err := store.fs.TempFile("", "cache_")
	if err != nil {
		return fmt.Errorf("cache %s: %w", root, err)
	}
	if err := writeCache(tmp, header, entries, table); err != nil {
		_ = tmp.Close()
		_ = store.fs.Remove(tmp.Name())
		return fmt.Errorf("cache %s: %w", root, err)
	}
	if err := tmp.Close(); err != nil {
		_ = store.fs.Remove(tmp.Name())
		return fmt.Errorf("cache %s: %w", root, err)
	}
	if err := store.fs.Rename(tmp.Name(), store.FileName(root)); err != nil {
		_ = store.fs.Remove(tmp.Name())
		return fmt.Errorf("cache %s: %w", root, err)
	}
	store.logger.Debug("cache saved", "root", root, "file", store.FileName(root), "entries", len(entries))
	return nil
}

// Invalidate removes root's cache file. A missing file is not an error.
func (store *CacheStore) Invalidate(root string) error {
	err := store.fs.Remove(store.FileName(root))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("invalidate cache %s: %w", root, err)
	}
	return nil
}

func (store *CacheStore) existingHeader(root string) (cacheHeader, bool) {
	file, err := store.fs.Open(store.FileName(root))
	if err != nil {
		return cacheHeader{}, false
	}
	defer file.Close()
	cached, err := readCache(bufio.NewReader(file))
	if err != nil || cached.Root != root {
		return cacheHeader{}, false
	}
	return cached.Header, true
}

// buildCacheEntries attributes every byte and file to exactly one entry:
// the deepest cached directory containing it, or the root entry.
func buildCacheEntries(root string, records []domain.DirectoryRecord, totalSize, fileCount uint64, mtime int64) []cacheEntry {
	entries := make([]cacheEntry, len(records)+1)
	index := make(map[string]int, len(records))
	for offset, record := range records {
		entries[offset+1] = cacheEntry{
			Path: record.Path,
			cacheEntryFields: cacheEntryFields{
				Size:      record.Size,
				OwnSize:   record.Size,
				MTime:     mtime,
				FileCount: clampUint32(record.FileCount),
				OwnFiles:  clampUint32(record.FileCount),
			},
		}
		index[record.Path] = offset + 1
	}
	entries[0] = cacheEntry{
		Path: root,
		cacheEntryFields: cacheEntryFields{
			Size:      totalSize,
			OwnSize:   totalSize,
			MTime:     mtime,
			FileCount: clampUint32(fileCount),
			OwnFiles:  clampUint32(fileCount),
		},
	}

	for offset := 1; offset < len(entries); offset++ {
		parent := &entries[nearestCachedParent(root, entries[offset].Path, index)]
		parent.OwnSize = subSaturating(parent.OwnSize, entries[offset].Size)
		parent.OwnFiles = uint32(subSaturating(uint64(parent.OwnFiles), uint64(entries[offset].FileCount)))
		parent.DirCount++
	}
	for offset := range entries {
		entries[offset].Checksum = entryChecksum(entries[offset].Path, mtime)
	}
	return entries
}

func nearestCachedParent(root, path string, index map[string]int) int {
	for dir := filepath.Dir(path); dir != root && isWithin(root, dir); dir = filepath.Dir(dir) {
		if position, ok := index[dir]; ok {
			return position
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}
	return 0
}

// layoutPathTable assigns every entry its slice of the path table. The root
// entry shares the root path at offset 0.
func layoutPathTable(entries []cacheEntry) ([]byte, error) {
	if uint64(len(entries)) > math.MaxUint32 {
		return nil, fmt.Errorf("too many entries (%d)", len(entries))
	}
	size := 0
	for _, entry := range entries[1:] {
		size += len(entry.Path)
	}
	table := make([]byte, 0, len(entries[0].Path)+size)
	table = append(table, entries[0].Path...)
	entries[0].PathLen = uint32(len(entries[0].Path))
	for index := 1; index < len(entries); index++ {
		if uint64(len(table))+uint64(len(entries[index].Path)) > math.MaxUint32 {
			return nil, fmt.Errorf("path table exceeds %d bytes", uint32(math.MaxUint32))
		}
		entries[index].PathOffset = uint32(len(table))
		entries[index].PathLen = uint32(len(entries[index].Path))
		table = append(table, entries[index].Path...)
	}
	return table, nil
}

func writeCache(w io.Writer, header cacheHeader, entries []cacheEntry, table []byte) error {
	writer := bufio.NewWriter(w)
	if err := binary.Write(writer, binary.LittleEndian, header); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := binary.Write(writer, binary.LittleEndian, entry.cacheEntryFields); err != nil {
			return err
		}
	}
	if _, err := writer.Write(table); err != nil {
		return err
	}
	return writer.Flush()
}

func readCacheHeader(r io.Reader) (cacheHeader, error) {
	var header cacheHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return cacheHeader{}, fmt.Errorf("%w: %v", ErrCacheInvalid, err)
	}
	if header.Magic != cacheMagic {
		return cacheHeader{}, fmt.Errorf("%w: magic %#x", ErrCacheInvalid, header.Magic)
	}
	if header.Version != cacheVersion {
		return cacheHeader{}, fmt.Errorf("%w: version %d", ErrCacheInvalid, header.Version)
	}
	return header, nil
}

// readCache decodes as much of a cache file as is present. Only an unusable
// header or an unreadable root path is an error.
func readCache(r io.Reader) (cacheFile, error) {
	header, err := readCacheHeader(r)
	if err != nil {
		return cacheFile{}, err
	}
	cached := cacheFile{
		Header:  header,
		Entries: make([]cacheEntryFields, 0, min(int(header.EntryCount), defaultStoreCapacity)),
	}
	for index := uint32(0); index < header.EntryCount; index++ {
		var fields cacheEntryFields
		if err := binary.Read(r, binary.LittleEndian, &fields); err != nil {
			break
		}
		cached.Entries = append(cached.Entries, fields)
	}
	cached.Table, err = io.ReadAll(io.LimitReader(r, int64(header.PathTableLen)))
	if err != nil {
		return cacheFile{}, fmt.Errorf("%w: path table: %v", ErrCacheInvalid, err)
	}
	root, ok := tablePath(cached.Table, 0, header.RootLen)
	if !ok {
		return cacheFile{}, fmt.Errorf("%w: root path missing", ErrCacheInvalid)
	}
	cached.Root = root
	return cached, nil
}

func tablePath(table []byte, offset, length uint32) (string, bool) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(table)) {
		return "", false
	}
	return string(table[offset:end]), true
}

func clampUint32(value uint64) uint32 {
	if value > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(value)
}

func subSaturating(value, delta uint64) uint64 {
	if delta > value {
		return 0
	}
	return value - delta
}
