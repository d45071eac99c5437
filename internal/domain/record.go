package domain

import "time"

// DirectoryRecord is the aggregate size of one directory subtree.
type DirectoryRecord struct {
	Path      string
	Size      uint64
	FileCount uint64
}

type ScanResult struct {
	RootPath  string
	Records   []DirectoryRecord
	TotalSize uint64
	FileCount uint64
	FromCache bool
	Duration  time.Duration
}

func (result ScanResult) DirCount() int {
	return len(result.Records)
}
