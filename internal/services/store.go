package services

import (
	"errors"
	"fmt"
	"sync"

	"diskscout/internal/domain"
)

const defaultStoreCapacity = 1024

// ErrStoreFull is returned when a ResultStore cannot grow any further.
var ErrStoreFull = errors.New("result store capacity exhausted")

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// ResultStore is an append-only, growable sequence of directory records.
//
// A store created with NewResultStore is private to one goroutine and takes
// no locks. NewSharedResultStore guards append, growth and merge with a
// mutex. Growth relocates the backing array, so slices returned by Records
// are stale after any later append and must be fetched again.
type ResultStore struct {
	mu      sync.Locker
	records []domain.DirectoryRecord
	limit   int
	growths int
}

type StoreOption func(*ResultStore)

// WithRecordLimit caps the number of records the store may hold. Growth
// beyond the cap fails with ErrStoreFull.
func WithRecordLimit(limit int) StoreOption {
	return func(store *ResultStore) {
		store.limit = limit
	}
}

func NewResultStore(capacity int, opts ...StoreOption) *ResultStore {
	return newResultStore(noopLocker{}, capacity, opts)
}

func NewSharedResultStore(capacity int, opts ...StoreOption) *ResultStore {
	return newResultStore(&sync.Mutex{}, capacity, opts)
}

func newResultStore(locker sync.Locker, capacity int, opts []StoreOption) *ResultStore {
	store := &ResultStore{mu: locker}
	for _, opt := range opts {
		opt(store)
	}
	if capacity <= 0 {
		capacity = defaultStoreCapacity
	}
	if store.limit > 0 && capacity > store.limit {
		capacity = store.limit
	}
	store.records = make([]domain.DirectoryRecord, 0, capacity)
	return store
}

// Append adds record and returns its index.
func (store *ResultStore) Append(record domain.DirectoryRecord) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := store.reserve(1); err != nil {
		return -1, err
	}
	store.records = append(store.records, record)
	return len(store.records) - 1, nil
}

// Merge appends every record of other, in order. Either all records are
// merged or, when the store cannot grow enough, none are.
func (store *ResultStore) Merge(other *ResultStore) error {
	if other == nil || other == store {
		return nil
	}
	incoming := other.Records()
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := store.reserve(len(incoming)); err != nil {
		return fmt.Errorf("merge %d records: %w", len(incoming), err)
	}
	store.records = append(store.records, incoming...)
	return nil
}

// Records returns the current backing storage trimmed to the record count.
func (store *ResultStore) Records() []domain.DirectoryRecord {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.records[:len(store.records):len(store.records)]
}

func (store *ResultStore) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.records)
}

func (store *ResultStore) Cap() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return cap(store.records)
}

// Growths reports how many times the backing storage was reallocated.
func (store *ResultStore) Growths() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.growths
}

// reserve makes room for n more records, doubling capacity as needed.
// Callers hold the lock.
func (store *ResultStore) reserve(n int) error {
	need := len(store.records) + n
	if need <= cap(store.records) {
		return nil
	}
	if store.limit > 0 && need > store.limit {
		return ErrStoreFull
	}
	next := cap(store.records)
	if next == 0 {
		next = 1
	}
	for next < need {
		next *= 2
	}
	if store.limit > 0 && next > store.limit {
		next = store.limit
	}
	grown := make([]domain.DirectoryRecord, len(store.records), next)
	copy(grown, store.records)
	store.records = grown
	store.growths++
	return nil
}
