package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"diskscout/internal/domain"
	"diskscout/internal/services"
)

const (
	configDirName  = "diskscout"
	configFileName = "config.yaml"
	envPrefix      = "DISKSCOUT"
)

func DefaultConfig() Config {
	return Config{
		Path:             ".",
		MaxWorkers:       services.DefaultMaxWorkers,
		ThresholdBytes:   services.DefaultThreshold,
		MaterializeDepth: services.DefaultMaterializeDepth,
		SkipNames:        []string{},
		SortMode:         domain.SortBySize,
		Theme:            "dark",
		LogLevel:         "info",
	}
}

func ConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, configDirName, configFileName), nil
}

// LoadConfig reads the user's config file. A missing file is not an error.
func LoadConfig() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadConfigFile(path)
}

// LoadConfigFile layers defaults, the YAML file at path and DISKSCOUT_*
// environment variables, in increasing precedence.
func LoadConfigFile(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	var readErr error
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		readErr = fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("decode config %s: %w", path, err)
	}
	return normalize(cfg), readErr
}

func SaveConfig(config Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveConfigFile(path, config)
}

func SaveConfigFile(path string, config Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	v := viper.New()
	for key, value := range settings(config) {
		v.Set(key, value)
	}
	return v.WriteConfigAs(path)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range settings(DefaultConfig()) {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func settings(config Config) map[string]any {
	return map[string]any{
		"path":              config.Path,
		"cache_dir":         config.CacheDir,
		"no_cache":          config.NoCache,
		"max_workers":       config.MaxWorkers,
		"threshold_bytes":   config.ThresholdBytes,
		"materialize_depth": config.MaterializeDepth,
		"skip_names":        config.SkipNames,
		"sort_mode":         string(config.SortMode),
		"theme":             config.Theme,
		"log_level":         config.LogLevel,
		"log_file":          config.LogFile,
		"plain":             config.Plain,
	}
}

func normalize(config Config) Config {
	defaults := DefaultConfig()
	if config.Path == "" {
		config.Path = defaults.Path
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = defaults.MaxWorkers
	}
	if config.MaterializeDepth < 0 {
		config.MaterializeDepth = defaults.MaterializeDepth
	}
	config.SortMode = domainSortMode(string(config.SortMode), defaults.SortMode)
	if config.Theme == "" {
		config.Theme = defaults.Theme
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	return config
}

func domainSortMode(value string, fallback domain.SortMode) domain.SortMode {
	switch domain.SortMode(value) {
	case domain.SortByName, domain.SortBySize:
		return domain.SortMode(value)
	default:
		return fallback
	}
}
