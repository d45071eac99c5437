package services

import (
	"context"
	"time"

	"diskscout/internal/domain"
)

// MockScanner returns a canned result after a short delay.
type MockScanner struct {
	Result domain.ScanResult
	Delay  time.Duration
}

func NewMockScanner() *MockScanner {
	return &MockScanner{Delay: 350 * time.Millisecond}
}

func (scanner *MockScanner) Scan(ctx context.Context, req ScanRequest) (domain.ScanResult, error) {
	start := time.Now()
	select {
	case <-ctx.Done():
		return domain.ScanResult{}, ctx.Err()
	case <-time.After(scanner.Delay):
	}

	result := scanner.Result
	result.RootPath = req.RootPath
	result.Duration = time.Since(start)
	return result, nil
}

func (scanner *MockScanner) Progress() ScanProgress {
	return ScanProgress{}
}
