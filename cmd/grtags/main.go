package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/standardbeagle/grtags/internal/config"
	"github.com/standardbeagle/grtags/internal/debug"
	"github.com/standardbeagle/grtags/internal/version"

	"github.com/urfave/cli/v2"
)

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	configPath := c.String("config")
	root := c.String("root")
	if root != "" {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
		}
		root = absRoot
	}

	cfg, err := config.LoadWithRoot(configPath, root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if includeFlags := c.StringSlice("include"); len(includeFlags) > 0 {
		cfg.Include = includeFlags
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludeFlags...)
	}
	if root != "" {
		cfg.Project.Root = root
	}
	if c.IsSet("workers") {
		cfg.Performance.ParallelFileWorkers = c.Int("workers")
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "grtags",
		Usage:                  "Incremental source tag index with directory watching",
		Version:                version.FullInfo(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (defaults to <root>/" + config.ConfigFileName + ")",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Only index files matching glob patterns (e.g., --include '**/*.go')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns (e.g., --exclude '**/testdata/**')",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Parallel parse workers (0 = NumCPU)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write debug logging to stderr",
			},
			&cli.StringFlag{
				Name:  "debug-log",
				Usage: "Append debug logging to a file instead of stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("debug-log"); path != "" {
				debug.EnableDebug = "true"
				return debug.OpenLogFile(path)
			}
			if c.Bool("debug") {
				debug.EnableDebug = "true"
				debug.SetOutput(c.App.ErrWriter)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return debug.CloseLog()
		},
		Commands: []*cli.Command{
			{
				Name:    "index",
				Aliases: []string{"i"},
				Usage:   "Bring the index up to date and exit",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "progress",
						Aliases: []string{"p"},
						Usage:   "Print a line for every tagged file",
					},
				},
				Action: indexCommand,
			},
			{
				Name:  "watch",
				Usage: "Index, then keep the index current until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "progress",
						Aliases: []string{"p"},
						Usage:   "Print a line for every tagged file",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address (e.g., :9464)",
					},
				},
				Action: watchCommand,
			},
			{
				Name:      "lookup",
				Aliases:   []string{"l"},
				Usage:     "Print every location of a token",
				ArgsUsage: "<token>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "definitions",
						Aliases: []string{"d"},
						Usage:   "Only print definitions",
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: lookupCommand,
			},
			{
				Name:  "status",
				Usage: "Summarise the stored index",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: statusCommand,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
