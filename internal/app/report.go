package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"diskscout/internal/state"
)

var (
	reportHeader = lipgloss.NewStyle().Bold(true)
	reportMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	reportSize   = lipgloss.NewStyle().Width(10).Align(lipgloss.Right)
)

// writeReport prints the scan as a flat listing in the current sort order.
func writeReport(w io.Writer, appState *state.State) error {
	result := appState.Result
	source := "scanned"
	if result.FromCache {
		source = "cache"
	}
	lines := []string{
		reportHeader.Render(fmt.Sprintf("DiskScout  %s", result.RootPath)),
		reportMuted.Render(fmt.Sprintf("total %s  files %d  dirs %d  source %s  took %s",
			humanSize(result.TotalSize), result.FileCount, result.DirCount(), source, result.Duration)),
		"",
	}
	for _, row := range appState.Rows() {
		lines = append(lines, fmt.Sprintf("%s  %5.1f%%  %s", reportSize.Render(humanSize(row.Record.Size)), row.Share*100, row.Record.Path))
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func humanSize(size uint64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := uint64(unit), 0
	for n := size / unit; n >= unit && exp < 5; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
