package services

import (
	"context"

	"diskscout/internal/domain"
)

type Scanner interface {
	Scan(ctx context.Context, req ScanRequest) (domain.ScanResult, error)
}

// ResultCache persists scan results between runs.
type ResultCache interface {
	IsValid(root string) bool
	Load(root string) (domain.ScanResult, bool)
	Save(root string, records []domain.DirectoryRecord, totalSize, fileCount uint64) error
	Invalidate(root string) error
}
