package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"

	"diskscout/internal/config"
	"diskscout/internal/services"
	"diskscout/internal/state"
	"diskscout/internal/ui"
)

func Run() {
	base := config.DefaultConfig()
	loaded, loadErr := config.LoadConfig()
	if loadErr == nil {
		base = loaded
	}
	cfg := config.ParseFlags(base)

	logger, closer, err := newLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "DiskScout log warning:", err)
		logger, closer, _ = newLogger("", cfg.LogLevel)
	}
	defer closer.Close()
	if loadErr != nil {
		logger.Warn("config load failed, using defaults", "error", loadErr)
	}

	coordinator, err := buildCoordinator(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "DiskScout error:", err)
		os.Exit(1)
	}
	initialState := state.NewState(cfg)

	if cfg.Plain {
		if err := runPlain(coordinator, initialState, cfg, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "DiskScout error:", err)
			os.Exit(1)
		}
		return
	}

	model := ui.NewModel(initialState, coordinator, cfg).WithAutoScan()
	if loadErr != nil {
		model = model.WithStatus("Config warning: using defaults")
	}
	program := tea.NewProgram(model, tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		fmt.Println("DiskScout error:", err)
		return
	}
	if provider, ok := finalModel.(ui.ConfigProvider); ok {
		if err := config.SaveConfig(provider.ConfigSnapshot()); err != nil {
			logger.Warn("config save failed", "error", err)
		}
	}
}

func buildCoordinator(cfg config.Config, logger *slog.Logger) (*services.Coordinator, error) {
	scanner := services.NewFSScanner(
		services.WithPathFilter(services.NewPathFilter(cfg.SkipNames...)),
		services.WithThreshold(cfg.ThresholdBytes),
		services.WithMaterializeDepth(cfg.MaterializeDepth),
		services.WithScannerLogger(logger),
	)
	opts := []services.CoordinatorOption{
		services.WithMaxWorkers(cfg.MaxWorkers),
		services.WithLogger(logger),
	}
	if !cfg.NoCache {
		cache, err := openCache(cfg.CacheDir, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, services.WithCache(cache))
	}
	return services.NewCoordinator(scanner, opts...), nil
}

func openCache(dir string, logger *slog.Logger) (*services.CacheStore, error) {
	if dir == "" {
		defaultDir, err := services.DefaultCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache dir: %w", err)
		}
		dir = defaultDir
	}
	return services.NewCacheStore(dir, services.WithCacheLogger(logger))
}

func runPlain(scanner services.Scanner, appState *state.State, cfg config.Config, w io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := scanner.Scan(ctx, services.ScanRequest{RootPath: cfg.Path, NoCache: cfg.NoCache})
	if err != nil {
		return err
	}
	appState.SetResult(result)
	return writeReport(w, appState)
}
