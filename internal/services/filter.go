package services

// DefaultSkipNames are directory names that are never descended into:
// version control metadata, dependency caches and virtual environments.
var DefaultSkipNames = []string{
	"node_modes",
	"node_modules",
	".git",
	".svn",
	".hg",
	"venv",
	"__pycache__",
	".cache",
	"Cache",
}

// PathFilter decides whether a directory entry is excluded from traversal.
// Matching is exact and case-sensitive on the entry name.
type PathFilter struct {
	names map[string]struct{}
}

func NewPathFilter(extra ...string) *PathFilter {
	names := make(map[string]struct{}, len(DefaultSkipNames)+len(extra))
	for _, name := range DefaultSkipNames {
		names[name] = struct{}{}
	}
	for _, name := range extra {
		if name == "" {
			continue
		}
		names[name] = struct{}{}
	}
	return &PathFilter{names: names}
}

func (filter *PathFilter) ShouldSkip(name string) bool {
	if filter == nil {
		return false
	}
	_, skip := filter.names[name]
	return skip
}
