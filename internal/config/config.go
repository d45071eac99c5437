package config

import "diskscout/internal/domain"

type Config struct {
	Path             string          `mapstructure:"path"`
	CacheDir         string          `mapstructure:"cache_dir"`
	NoCache          bool            `mapstructure:"no_cache"`
	MaxWorkers       int             `mapstructure:"max_workers"`
	ThresholdBytes   uint64          `mapstructure:"threshold_bytes"`
	MaterializeDepth int             `mapstructure:"materialize_depth"`
	SkipNames        []string        `mapstructure:"skip_names"`
	SortMode         domain.SortMode `mapstructure:"sort_mode"`
	Theme            string          `mapstructure:"theme"`
	LogLevel         string          `mapstructure:"log_level"`
	LogFile          string          `mapstructure:"log_file"`
	Plain            bool            `mapstructure:"plain"`
}
