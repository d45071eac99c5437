package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"diskscout/internal/config"
	"diskscout/internal/services"
	"diskscout/internal/state"
)

const progressInterval = 100 * time.Millisecond

type Model struct {
	state            *state.State
	scanner          services.Scanner
	progress         services.ProgressProvider
	invalid          services.Invalidator
	base             config.Config
	keys             KeyMap
	spinner          spinner.Model
	showHelp         bool
	autoScan         bool
	status           string
	scanning         bool
	scanID           int
	cancel           context.CancelFunc
	snapshot         services.ScanProgress
	width            int
	height           int
	viewTop          int
	filterInputMode  string
	filterInputValue string
}

type ConfigProvider interface {
	ConfigSnapshot() config.Config
}

func NewModel(appState *state.State, scanner services.Scanner, cfg config.Config) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	return Model{
		state:    appState,
		scanner:  scanner,
		progress: progressProvider(scanner),
		invalid:  invalidator(scanner),
		base:     cfg,
		keys:     DefaultKeyMap(),
		spinner:  spin,
		status:   "Ready - press s to scan",
		width:    100,
		height:   30,
	}
}

func (model Model) WithStatus(message string) Model {
	if message != "" {
		model.status = message
	}
	return model
}

// WithAutoScan starts a scan of the state path as soon as the program runs.
func (model Model) WithAutoScan() Model {
	model.autoScan = true
	return model
}

func (model Model) ConfigSnapshot() config.Config {
	cfg := model.base
	cfg.Path = model.state.Path
	cfg.SortMode = model.state.Prefs.SortMode
	cfg.Theme = model.state.Prefs.Theme
	return cfg
}

func (model Model) Init() tea.Cmd {
	if !model.autoScan {
		return nil
	}
	return func() tea.Msg { return startScanMsg{} }
}

func (model Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		return model.handleKey(typed)
	case tea.WindowSizeMsg:
		model.width = typed.Width
		model.height = typed.Height
		model.ensureCursorVisible()
		return model, nil
	case startScanMsg:
		return model.beginScan(typed.force)
	case scanResultMsg:
		if typed.id != model.scanID {
			return model, nil
		}
		model.scanning = false
		model.cancel = nil
		if typed.err != nil {
			if errors.Is(typed.err, context.Canceled) {
				model.status = "Scan cancelled"
				return model, nil
			}
			model.status = fmt.Sprintf("Scan error: %v", typed.err)
			return model, nil
		}
		model.state.SetResult(typed.result)
		source := "scanned"
		if typed.result.FromCache {
			source = "from cache"
		}
		model.status = fmt.Sprintf("Scan complete, %s (%s)", source, typed.result.Duration.Round(time.Millisecond))
		model.ensureCursorVisible()
		return model, nil
	case progressTickMsg:
		if typed.id != model.scanID || !model.scanning {
			return model, nil
		}
		model.snapshot = typed.progress
		return model, model.progressCmd()
	case spinner.TickMsg:
		if !model.scanning {
			return model, nil
		}
		var cmd tea.Cmd
		model.spinner, cmd = model.spinner.Update(typed)
		return model, cmd
	default:
		return model, nil
	}
}

func (model Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case model.filterInputMode != "":
		return model.handleFilterInput(msg)
	case key.Matches(msg, model.keys.Quit):
		model = model.cancelScan("")
		return model, tea.Quit
	case key.Matches(msg, model.keys.Help):
		model.showHelp = !model.showHelp
		return model, nil
	case key.Matches(msg, model.keys.Cancel):
		if model.scanning {
			model = model.cancelScan("Scan cancelled")
		}
		return model, nil
	case key.Matches(msg, model.keys.Up):
		model.state.MoveCursor(-1)
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Down):
		model.state.MoveCursor(1)
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Top):
		model.state.MoveCursor(-len(model.state.Result.Records))
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Bottom):
		model.state.MoveCursor(len(model.state.Result.Records))
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Scan):
		return model.beginScan(false)
	case key.Matches(msg, model.keys.Rescan):
		return model.beginScan(true)
	case key.Matches(msg, model.keys.Invalidate):
		if model.invalid == nil {
			model.status = "Cache disabled"
			return model, nil
		}
		if err := model.invalid.Invalidate(model.state.Path); err != nil {
			model.status = fmt.Sprintf("Cache error: %v", err)
			return model, nil
		}
		model.status = fmt.Sprintf("Cache dropped for %s", model.state.Path)
		return model, nil
	case key.Matches(msg, model.keys.Sort):
		mode := model.state.ToggleSortMode()
		model.status = fmt.Sprintf("Sorted by %s", mode)
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Search):
		model.filterInputMode = "search"
		model.filterInputValue = model.state.SearchQuery
		model.status = fmt.Sprintf("Search: %s", model.filterInputValue)
		return model, nil
	case key.Matches(msg, model.keys.SizeFilter):
		model.filterInputMode = "size"
		model.filterInputValue = formatSizeLabel(model.state.MinSize)
		model.status = fmt.Sprintf("Min size: %s", model.filterInputValue)
		return model, nil
	case key.Matches(msg, model.keys.ClearFilter):
		model.state.ClearFilters()
		model.status = "Filters cleared"
		model.ensureCursorVisible()
		return model, nil
	default:
		return model, nil
	}
}

func (model Model) handleFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		model.filterInputMode = ""
		model.filterInputValue = ""
		model.status = "Filter cancelled"
		return model, nil
	case tea.KeyEnter:
		mode := model.filterInputMode
		value := strings.TrimSpace(model.filterInputValue)
		model.filterInputMode = ""
		switch mode {
		case "search":
			model.state.SetSearch(value)
		case "size":
			model.state.SetMinSize(parseSizeInput(value))
		}
		model.ensureCursorVisible()
		model.status = "Filter applied"
		return model, nil
	case tea.KeyBackspace, tea.KeyDelete:
		if len(model.filterInputValue) > 0 {
			model.filterInputValue = model.filterInputValue[:len(model.filterInputValue)-1]
		}
	default:
		if msg.Type == tea.KeyRunes {
			model.filterInputValue += string(msg.Runes)
		}
	}
	model.status = fmt.Sprintf("%s: %s", filterLabel(model.filterInputMode), model.filterInputValue)
	return model, nil
}

func (model Model) beginScan(force bool) (Model, tea.Cmd) {
	model = model.cancelScan("")
	ctx, cancel := context.WithCancel(context.Background())
	model.scanID++
	model.cancel = cancel
	model.scanning = true
	model.snapshot = services.ScanProgress{}
	model.status = fmt.Sprintf("Scanning... %s", model.state.Path)
	if force {
		model.status = fmt.Sprintf("Rescanning... %s", model.state.Path)
	}
	return model, tea.Batch(model.scanCmd(ctx, force), model.progressCmd(), model.spinner.Tick)
}

func (model Model) scanCmd(ctx context.Context, force bool) tea.Cmd {
	id := model.scanID
	request := services.ScanRequest{
		RootPath: model.state.Path,
		Force:    force,
		NoCache:  model.base.NoCache,
	}

	return func() tea.Msg {
		result, err := model.scanner.Scan(ctx, request)
		return scanResultMsg{id: id, result: result, err: err}
	}
}

// progressCmd polls the progress snapshot; the scanner never pushes.
func (model Model) progressCmd() tea.Cmd {
	if model.progress == nil {
		return nil
	}
	id := model.scanID
	provider := model.progress
	return tea.Tick(progressInterval, func(time.Time) tea.Msg {
		return progressTickMsg{id: id, progress: provider.Progress()}
	})
}

func (model Model) cancelScan(message string) Model {
	if model.cancel != nil {
		model.cancel()
		model.cancel = nil
	}
	if message != "" {
		model.status = message
	}
	if model.scanning {
		model.scanID++
	}
	model.scanning = false
	return model
}

func progressProvider(scanner services.Scanner) services.ProgressProvider {
	provider, _ := scanner.(services.ProgressProvider)
	return provider
}

func invalidator(scanner services.Scanner) services.Invalidator {
	provider, _ := scanner.(services.Invalidator)
	return provider
}

func (model *Model) ensureCursorVisible() {
	rows := len(model.state.Rows())
	if rows == 0 {
		model.state.Cursor = 0
		model.viewTop = 0
		return
	}
	model.state.MoveCursor(0)
	listHeight := model.listHeight()
	if listHeight <= 0 {
		return
	}
	if model.state.Cursor < model.viewTop {
		model.viewTop = model.state.Cursor
	}
	if model.state.Cursor >= model.viewTop+listHeight {
		model.viewTop = model.state.Cursor - listHeight + 1
	}
	maxTop := maxInt(rows-listHeight, 0)
	if model.viewTop > maxTop {
		model.viewTop = maxTop
	}
}

func (model *Model) listHeight() int {
	return model.height - 6
}

func parseSizeInput(input string) uint64 {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return 0
	}
	suffixes := []struct {
		suffix     string
		multiplier float64
	}{
		{"tb", 1e12}, {"gb", 1e9}, {"mb", 1e6}, {"kb", 1e3},
		{"t", 1e12}, {"g", 1e9}, {"m", 1e6}, {"k", 1e3}, {"b", 1},
	}
	value, multiplier := trimmed, 1.0
	for _, candidate := range suffixes {
		if strings.HasSuffix(trimmed, candidate.suffix) {
			value = strings.TrimSuffix(trimmed, candidate.suffix)
			multiplier = candidate.multiplier
			break
		}
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed < 0 {
		return 0
	}
	return uint64(parsed * multiplier)
}

func filterLabel(mode string) string {
	switch mode {
	case "search":
		return "Search"
	case "size":
		return "Min size"
	default:
		return "Filter"
	}
}

func formatSizeLabel(size uint64) string {
	if size == 0 {
		return ""
	}
	return formatSize(size)
}
