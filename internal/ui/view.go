package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"diskscout/internal/state"
)

type uiStyles struct {
	headerStyle lipgloss.Style
	mutedStyle  lipgloss.Style
	statusStyle lipgloss.Style
	warnStyle   lipgloss.Style
	cursorStyle lipgloss.Style
	barStyle    lipgloss.Style
	panelBorder lipgloss.Style
}

func stylesFor(theme string) uiStyles {
	if strings.ToLower(theme) == "light" {
		return uiStyles{
			headerStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("235")),
			mutedStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
			statusStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("25")).Bold(true),
			warnStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("124")).Bold(true),
			cursorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("90")).Bold(true),
			barStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
			panelBorder: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		}
	}
	return uiStyles{
		headerStyle: lipgloss.NewStyle().Bold(true),
		mutedStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		statusStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("69")).Bold(true),
		warnStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Bold(true),
		cursorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		barStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		panelBorder: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

func (model Model) View() string {
	styles := stylesFor(model.state.Prefs.Theme)
	if model.showHelp {
		return renderHelpView(model, styles)
	}

	body := renderListPanel(model, styles)
	footer := renderFooter(model, styles)
	return strings.Join([]string{body, footer}, "\n")
}

func renderListPanel(model Model, styles uiStyles) string {
	width := maxInt(model.width, 40)
	contentWidth := maxInt(width-4, 10)
	height := maxInt(model.listHeight(), 3)

	status := "IDLE"
	if model.scanning {
		status = "SCANNING"
	} else if model.state.Result.FromCache {
		status = "CACHED"
	}
	headerLine := padLine(styles.headerStyle.Render("DiskScout")+"  "+breadcrumbs(model.state.Path), styles.statusStyle.Render(status), contentWidth)

	rows := model.state.Rows()
	lines := make([]string, 0, height+1)
	lines = append(lines, headerLine)
	if len(rows) == 0 {
		message := "Not scanned - press s"
		if model.scanning {
			message = "Scanning..."
		} else if model.state.Scanned {
			message = "No directories to show"
		}
		lines = append(lines, message)
	}

	start := clamp(model.viewTop, 0, maxInt(len(rows)-1, 0))
	end := min(start+height, len(rows))
	for index := start; index < end; index++ {
		lines = append(lines, renderRow(rows[index], index == model.state.Cursor, styles))
	}
	for len(lines) < height+1 {
		lines = append(lines, "")
	}
	return styles.panelBorder.Width(contentWidth).Render(strings.Join(lines, "\n"))
}

func renderRow(row state.Row, selected bool, styles uiStyles) string {
	const sizeWidth = 9
	bar := styles.barStyle.Render(shareBar(row.Share, 12))
	indent := strings.Repeat("  ", maxInt(row.Depth-1, 0))
	line := fmt.Sprintf("%*s %s %5.1f%% %s%s/", sizeWidth, formatSize(row.Record.Size), bar, row.Share*100, indent, filepath.Base(row.Name))
	if selected {
		return styles.cursorStyle.Render(line)
	}
	return line
}

func renderFooter(model Model, styles uiStyles) string {
	statusLine := trimStatus(model.status, model.width)
	if model.scanning {
		statusLine = fmt.Sprintf("%s %s", model.spinner.View(), trimStatus(progressLine(model), model.width))
	}
	statusStyle := styles.mutedStyle
	lower := strings.ToLower(model.status)
	if strings.Contains(lower, "error") || strings.Contains(lower, "warning") {
		statusStyle = styles.warnStyle
	}
	statusLine = statusStyle.Render(statusLine)

	result := model.state.Result
	summary := fmt.Sprintf("Total: %s  Files: %d  Dirs: %d  Sort: %s%s",
		formatSize(result.TotalSize), result.FileCount, result.DirCount(),
		strings.ToUpper(string(model.state.Prefs.SortMode)), filterSummary(model))
	keys := "↑/↓ move  s scan  r rescan  x drop cache  o sort  / search  z min  c clear  esc cancel  ? help  q quit"
	if model.filterInputMode != "" {
		keys = "type value  enter apply  esc cancel"
	}
	footerLine := padLine(summary, keys, model.width)
	return strings.Join([]string{statusLine, styles.mutedStyle.Render(footerLine)}, "\n")
}

func progressLine(model Model) string {
	progress := model.snapshot
	line := fmt.Sprintf("Scanning... %s in %d files", formatSize(progress.BytesScanned), progress.FilesScanned)
	if progress.Current != "" {
		line = fmt.Sprintf("%s (%s)", line, progress.Current)
	}
	return line
}

func renderHelpView(model Model, styles uiStyles) string {
	bindings := []key.Binding{
		model.keys.Up,
		model.keys.Down,
		model.keys.Top,
		model.keys.Bottom,
		model.keys.Scan,
		model.keys.Rescan,
		model.keys.Invalidate,
		model.keys.Sort,
		model.keys.Search,
		model.keys.SizeFilter,
		model.keys.ClearFilter,
		model.keys.Cancel,
		model.keys.Help,
		model.keys.Quit,
	}

	lines := []string{styles.headerStyle.Render("DiskScout Help"), ""}
	lines = append(lines, styles.headerStyle.Render("Scanning"))
	lines = append(lines, "s scan (uses a fresh cache)", "r rescan and rewrite cache", "x drop the cache file", "esc cancel a running scan")
	lines = append(lines, "", styles.headerStyle.Render("Listing"))
	lines = append(lines, "directories over the size threshold", "and the top two levels are listed")
	lines = append(lines, "", styles.headerStyle.Render("Keys"))
	for _, binding := range bindings {
		keysLabel := strings.Join(binding.Keys(), ", ")
		lines = append(lines, fmt.Sprintf("%-18s %s", keysLabel, binding.Help().Desc))
	}
	lines = append(lines, "", "Press ? to close help")
	width := model.width
	if width <= 0 {
		width = 80
	}
	return styles.panelBorder.Width(maxInt(width-2, 10)).Render(strings.Join(lines, "\n"))
}

func breadcrumbs(path string) string {
	path = filepath.Clean(path)
	if path == "." {
		return "."
	}
	parts := strings.Split(path, string(filepath.Separator))
	if parts[0] == "" {
		parts[0] = string(filepath.Separator)
	}
	return strings.Join(parts, " › ")
}

func padLine(left, right string, width int) string {
	if width <= 0 {
		return left
	}
	space := width - lipgloss.Width(left) - lipgloss.Width(right)
	if space < 1 {
		return left + " " + right
	}
	return left + strings.Repeat(" ", space) + right
}

func formatSize(size uint64) string {
	const unit = 1000
	if size < unit {
		return fmt.Sprintf("%dB", size)
	}
	div, exp := uint64(unit), 0
	for n := size / unit; n >= unit && exp < 5; n /= unit {
		div *= unit
		exp++
	}
	value := float64(size) / float64(div)
	units := []string{"KB", "MB", "GB", "TB", "PB", "EB"}
	return fmt.Sprintf("%.1f%s", value, units[exp])
}

func shareBar(share float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := clamp(int(share*float64(width)+0.5), 0, width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func trimStatus(message string, width int) string {
	if width <= 0 {
		return message
	}
	limit := width - 4
	if limit <= 0 || len(message) <= limit {
		return message
	}
	return message[:limit] + "..."
}

func filterSummary(model Model) string {
	parts := []string{}
	if model.state.SearchQuery != "" {
		parts = append(parts, fmt.Sprintf("Search:%s", model.state.SearchQuery))
	}
	if model.state.MinSize > 0 {
		parts = append(parts, fmt.Sprintf("Min:%s", formatSize(model.state.MinSize)))
	}
	if len(parts) == 0 {
		return ""
	}
	return "  Filters[" + strings.Join(parts, ", ") + "]"
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
