package services

type ScanRequest struct {
	RootPath string
	// Force ignores a valid cache and rescans; the result is still saved.
	Force bool
	// NoCache neither reads nor writes the cache.
	NoCache bool
}
