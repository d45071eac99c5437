package config

import (
	"flag"
	"os"
	"strings"
)

func ParseFlags(base Config) Config {
	config, err := ParseArgs(base, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	return config
}

// ParseArgs applies command-line flags on top of base. A trailing
// positional argument is taken as the path to scan.
func ParseArgs(base Config, args []string) (Config, error) {
	flags := flag.NewFlagSet("diskscout", flag.ContinueOnError)
	path := flags.String("path", base.Path, "Directory to scan")
	cacheDir := flags.String("cache-dir", base.CacheDir, "Directory holding scan caches")
	noCache := flags.Bool("no-cache", base.NoCache, "Neither read nor write the scan cache")
	workers := flags.Int("workers", base.MaxWorkers, "Maximum concurrent subtree scans")
	threshold := flags.Uint64("threshold", base.ThresholdBytes, "Record directories larger than this many bytes")
	depth := flags.Int("depth", base.MaterializeDepth, "Always record directories up to this depth")
	skip := flags.String("skip", strings.Join(base.SkipNames, ","), "Extra directory names to skip, comma separated")
	logLevel := flags.String("log-level", base.LogLevel, "Log level: debug, info, warn, error")
	logFile := flags.String("log-file", base.LogFile, "Write logs to this file")
	plain := flags.Bool("plain", base.Plain, "Print a report instead of starting the interface")
	if err := flags.Parse(args); err != nil {
		return base, err
	}

	base.Path = *path
	if flags.NArg() > 0 {
		base.Path = flags.Arg(0)
	}
	base.CacheDir = *cacheDir
	base.NoCache = *noCache
	base.MaxWorkers = *workers
	base.ThresholdBytes = *threshold
	base.MaterializeDepth = *depth
	base.SkipNames = splitNames(*skip)
	base.LogLevel = *logLevel
	base.LogFile = *logFile
	base.Plain = *plain
	return normalize(base), nil
}

func splitNames(value string) []string {
	names := []string{}
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
