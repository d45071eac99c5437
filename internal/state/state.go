package state

import (
	"path/filepath"
	"sort"
	"strings"

	"diskscout/internal/config"
	"diskscout/internal/domain"
)

type Preferences struct {
	SortMode domain.SortMode
	Theme    string
}

type State struct {
	Path        string
	Cursor      int
	Prefs       Preferences
	Result      domain.ScanResult
	Scanned     bool
	SearchQuery string
	MinSize     uint64
}

// Row is one directory record prepared for display.
type Row struct {
	Record domain.DirectoryRecord
	Name   string
	Depth  int
	Share  float64
}

func NewState(cfg config.Config) *State {
	return &State{
		Path: cfg.Path,
		Prefs: Preferences{
			SortMode: cfg.SortMode,
			Theme:    cfg.Theme,
		},
	}
}

func (appState *State) SetResult(result domain.ScanResult) {
	appState.Result = result
	appState.Path = result.RootPath
	appState.Scanned = true
	appState.clampCursor()
}

func (appState *State) Reset() {
	appState.Result = domain.ScanResult{}
	appState.Scanned = false
	appState.Cursor = 0
}

// Rows returns the records passing the current filters, in sort order.
func (appState *State) Rows() []Row {
	root := appState.Result.RootPath
	total := appState.Result.TotalSize
	rows := make([]Row, 0, len(appState.Result.Records))
	for _, record := range appState.Result.Records {
		if !appState.matches(record) {
			continue
		}
		row := Row{
			Record: record,
			Name:   relativeName(root, record.Path),
			Depth:  depthFrom(root, record.Path),
		}
		if total > 0 {
			row.Share = float64(record.Size) / float64(total)
		}
		rows = append(rows, row)
	}

	less := func(i, j int) bool {
		if appState.Prefs.SortMode == domain.SortByName {
			return rows[i].Name < rows[j].Name
		}
		if rows[i].Record.Size != rows[j].Record.Size {
			return rows[i].Record.Size > rows[j].Record.Size
		}
		return rows[i].Name < rows[j].Name
	}
	sort.SliceStable(rows, less)
	return rows
}

func (appState *State) CurrentRow() (Row, bool) {
	rows := appState.Rows()
	if appState.Cursor < 0 || appState.Cursor >= len(rows) {
		return Row{}, false
	}
	return rows[appState.Cursor], true
}

func (appState *State) MoveCursor(delta int) {
	appState.Cursor += delta
	appState.clampCursor()
}

func (appState *State) ToggleSortMode() domain.SortMode {
	appState.Prefs.SortMode = appState.Prefs.SortMode.Next()
	appState.Cursor = 0
	return appState.Prefs.SortMode
}

func (appState *State) SetSearch(query string) {
	appState.SearchQuery = strings.TrimSpace(query)
	appState.Cursor = 0
}

func (appState *State) SetMinSize(size uint64) {
	appState.MinSize = size
	appState.Cursor = 0
}

func (appState *State) ClearFilters() {
	appState.SearchQuery = ""
	appState.MinSize = 0
	appState.Cursor = 0
}

func (appState *State) matches(record domain.DirectoryRecord) bool {
	if record.Size < appState.MinSize {
		return false
	}
	if appState.SearchQuery == "" {
		return true
	}
	return strings.Contains(strings.ToLower(record.Path), strings.ToLower(appState.SearchQuery))
}

func (appState *State) clampCursor() {
	count := len(appState.Rows())
	if appState.Cursor >= count {
		appState.Cursor = count - 1
	}
	if appState.Cursor < 0 {
		appState.Cursor = 0
	}
}

func relativeName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return path
	}
	return rel
}

func depthFrom(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
