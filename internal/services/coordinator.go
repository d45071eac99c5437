package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"diskscout/internal/domain"
)

// DefaultMaxWorkers bounds how many top-level subtrees are walked at once.
const DefaultMaxWorkers = 8

// ScanTask is the unit of work for one top-level subdirectory.
type ScanTask struct {
	Root  string
	Store *ResultStore
	Size  uint64
}

// Coordinator runs scan requests: it consults the cache, chooses between a
// single walk and a fan-out over the root's subdirectories, merges the
// per-task results and persists them.
type Coordinator struct {
	scanner    *FSScanner
	cache      ResultCache
	active     atomic.Pointer[ProgressMirror]
	maxWorkers int
	capacity   int
	limit      int
	logger     *slog.Logger
}

type CoordinatorOption func(*Coordinator)

func WithCache(cache ResultCache) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.cache = cache
	}
}

func WithMaxWorkers(workers int) CoordinatorOption {
	return func(coordinator *Coordinator) {
		if workers > 0 {
			coordinator.maxWorkers = workers
		}
	}
}

// WithStoreCapacity sets the initial capacity of each result store and an
// optional hard cap on records per store (0 means unbounded).
func WithStoreCapacity(capacity, limit int) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.capacity = capacity
		coordinator.limit = limit
	}
}

func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(coordinator *Coordinator) {
		if logger != nil {
			coordinator.logger = logger
		}
	}
}

func NewCoordinator(scanner *FSScanner, opts ...CoordinatorOption) *Coordinator {
	if scanner == nil {
		scanner = NewFSScanner()
	}
	coordinator := &Coordinator{
		scanner:    scanner,
		maxWorkers: DefaultMaxWorkers,
		capacity:   defaultStoreCapacity,
		logger:     discardLogger(),
	}
	for _, opt := range opts {
		opt(coordinator)
	}
	return coordinator
}

// Progress reports the most recently started scan session. A session that
// was superseded keeps its own mirror and cannot disturb the newer one.
func (coordinator *Coordinator) Progress() ScanProgress {
	if mirror := coordinator.active.Load(); mirror != nil {
		return mirror.Snapshot()
	}
	return ScanProgress{}
}

func (coordinator *Coordinator) beginSession(root string) *ProgressMirror {
	mirror := NewProgressMirror()
	mirror.Reset(root)
	coordinator.active.Store(mirror)
	return mirror
}

func (coordinator *Coordinator) Invalidate(path string) error {
	if coordinator.cache == nil {
		return nil
	}
	return coordinator.cache.Invalidate(cleanPath(path))
}

func (coordinator *Coordinator) Scan(ctx context.Context, req ScanRequest) (domain.ScanResult, error) {
	start := time.Now()
	root := cleanPath(req.RootPath)
	progress := coordinator.beginSession(root)
	defer progress.Finish()

	useCache := coordinator.cache != nil && !req.NoCache
	if useCache && !req.Force {
		if result, ok := coordinator.cache.Load(root); ok {
			coordinator.logger.Info("scan served from cache", "root", root, "records", len(result.Records))
			result.RootPath = root
			result.FromCache = true
			result.Duration = time.Since(start)
			return result, nil
		}
	}

	result, err := coordinator.run(ctx, root, progress)
	if err != nil {
		return domain.ScanResult{RootPath: root, Duration: time.Since(start)}, err
	}
	result.Duration = time.Since(start)

	if useCache {
		if err := coordinator.cache.Save(root, result.Records, result.TotalSize, result.FileCount); err != nil {
			coordinator.logger.Warn("cache save failed", "root", root, "error", err)
		}
	}
	coordinator.logger.Info("scan complete",
		"root", root,
		"bytes", result.TotalSize,
		"files", result.FileCount,
		"records", len(result.Records),
		"duration", result.Duration,
	)
	return result, nil
}

// Run walks root without consulting the cache. With fewer than two
// subdirectories the whole root is walked on the calling goroutine;
// otherwise every subdirectory becomes a ScanTask and at most maxWorkers
// tasks run at a time. Merged records are in task order, then walk order.
func (coordinator *Coordinator) Run(ctx context.Context, root string) (domain.ScanResult, error) {
	root = cleanPath(root)
	progress := coordinator.beginSession(root)
	defer progress.Finish()
	return coordinator.run(ctx, root, progress)
}

func (coordinator *Coordinator) run(ctx context.Context, root string, progress *ProgressMirror) (domain.ScanResult, error) {
	entries, err := readDir(root)
	if err != nil && len(entries) == 0 {
		return domain.ScanResult{}, &ScanError{Root: root, Err: err}
	}

	var subdirs []string
	for _, entry := range entries {
		if entry.IsDir() && !coordinator.scanner.Filter().ShouldSkip(entry.Name()) {
			subdirs = append(subdirs, filepath.Join(root, entry.Name()))
		}
	}

	var files atomic.Uint64
	global := NewSharedResultStore(coordinator.capacity, coordinator.storeOptions()...)
	var total uint64

	if len(subdirs) < 2 {
		coordinator.logger.Debug("single-threaded scan", "root", root, "subdirs", len(subdirs))
		total, err = coordinator.scanner.Scan(ctx, root, 0, global, &files, progress)
		if err != nil {
			return domain.ScanResult{}, err
		}
	} else {
		total, err = coordinator.fanOut(ctx, root, entries, subdirs, global, &files, progress)
		if err != nil {
			return domain.ScanResult{}, err
		}
	}

	return domain.ScanResult{
		RootPath:  root,
		Records:   global.Records(),
		TotalSize: total,
		FileCount: files.Load(),
	}, nil
}

func (coordinator *Coordinator) fanOut(ctx context.Context, root string, entries []os.DirEntry, subdirs []string, global *ResultStore, files *atomic.Uint64, progress *ProgressMirror) (uint64, error) {
	workers := min(coordinator.maxWorkers, len(subdirs))
	coordinator.logger.Debug("fan-out scan", "root", root, "subdirs", len(subdirs), "workers", workers)

	tasks := make([]*ScanTask, len(subdirs))
	for index, dir := range subdirs {
		tasks[index] = &ScanTask{
			Root:  dir,
			Store: NewResultStore(coordinator.capacity, coordinator.storeOptions()...),
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, task := range tasks {
		task := task
		group.Go(func() error {
			size, err := coordinator.scanner.Scan(groupCtx, task.Root, 1, task.Store, files, progress)
			if err != nil {
				return fmt.Errorf("scan %s: %w", task.Root, err)
			}
			task.Size = size
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var total uint64
	for _, task := range tasks {
		total += task.Size
		if err := global.Merge(task.Store); err != nil {
			return 0, err
		}
	}

	loose, err := coordinator.scanLooseFiles(ctx, root, entries, files, progress)
	if err != nil {
		return 0, err
	}
	return total + loose, nil
}

// scanLooseFiles sums the regular files directly inside root; its
// subdirectories were handed to tasks.
func (coordinator *Coordinator) scanLooseFiles(ctx context.Context, root string, entries []os.DirEntry, files *atomic.Uint64, progress *ProgressMirror) (uint64, error) {
	var total uint64
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name())
		info, err := entryInfo(path, entry)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		size := uint64(info.Size())
		total += size
		files.Add(1)
		progress.Observe(path, size)
	}
	return total, nil
}

func (coordinator *Coordinator) storeOptions() []StoreOption {
	if coordinator.limit <= 0 {
		return nil
	}
	return []StoreOption{WithRecordLimit(coordinator.limit)}
}
