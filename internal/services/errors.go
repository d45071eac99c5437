package services

import (
	"errors"
	"fmt"
)

var (
	// ErrScanFailed reports that the scan root itself could not be opened.
	ErrScanFailed = errors.New("scan failed")
	// ErrCacheInvalid reports a cache file with a bad header.
	ErrCacheInvalid = errors.New("cache file invalid")
)

// ScanError is returned when the root of a scan request cannot be listed.
type ScanError struct {
	Root string
	Err  error
}

func (err *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", err.Root, err.Err)
}

func (err *ScanError) Unwrap() error {
	return err.Err
}

func (err *ScanError) Is(target error) bool {
	return target == ErrScanFailed
}
