package services

import "sync/atomic"

// ProgressMirror is advisory scan progress shared by all workers of one
// scan session. Updates are last-writer-wins and never used for decisions.
type ProgressMirror struct {
	current atomic.Pointer[string]
	bytes   atomic.Uint64
	files   atomic.Uint64
	done    atomic.Bool
}

func NewProgressMirror() *ProgressMirror {
	return &ProgressMirror{}
}

func (mirror *ProgressMirror) Reset(root string) {
	mirror.current.Store(&root)
	mirror.bytes.Store(0)
	mirror.files.Store(0)
	mirror.done.Store(false)
}

func (mirror *ProgressMirror) Observe(path string, size uint64) {
	mirror.current.Store(&path)
	mirror.bytes.Add(size)
	mirror.files.Add(1)
}

func (mirror *ProgressMirror) Finish() {
	mirror.done.Store(true)
}

func (mirror *ProgressMirror) Snapshot() ScanProgress {
	progress := ScanProgress{
		BytesScanned: mirror.bytes.Load(),
		FilesScanned: mirror.files.Load(),
		Completed:    mirror.done.Load(),
	}
	if current := mirror.current.Load(); current != nil {
		progress.Current = *current
	}
	return progress
}
