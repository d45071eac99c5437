package services

import (
	"os"
	"sort"
)

type ScanProgress struct {
	Current      string
	BytesScanned uint64
	FilesScanned uint64
	Completed    bool
}

type ProgressProvider interface {
	Progress() ScanProgress
}

type Invalidator interface {
	Invalidate(path string) error
}

func sortEntries(entries []os.DirEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
}
