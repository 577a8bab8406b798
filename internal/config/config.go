package config

import (
	"os"
	"path/filepath"

	"github.com/standardbeagle/grtags/internal/types"
)

const (
	// ConfigFileName is the per-project (and global, in $HOME) config file.
	ConfigFileName = ".grtags.kdl"
	// DefaultStoreDir is the store location relative to the project root.
	// It is hidden so the default exclusions keep it out of the scan.
	DefaultStoreDir = ".grtags"
	// DefaultWatchDebounceMs is the settle time for directory change events.
	DefaultWatchDebounceMs = 300
)

type Config struct {
	Version     int
	Project     Project
	Index       Index
	Performance Performance
	Store       Store
	Include     []string
	Exclude     []string
}

type Project struct {
	Root string
	Name string
}

type Index struct {
	MaxFileSize       int64
	FollowSymlinks    bool
	RespectGitignore  bool // Process .gitignore files for additional exclusions
	WatchMode         bool // Keep watching directories after the initial index
	WatchDebounceMs   int  // Debounce time for directory change events
	RescanIntervalSec int  // Periodic full rescan, 0 disables
}

type Performance struct {
	ParallelFileWorkers int // 0 = auto-detect (NumCPU)
}

type Store struct {
	Dir      string // Relative to the project root unless absolute
	Sync     bool   // fsync every commit
	InMemory bool   // Keep the store in memory (tests, dry runs)
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot loads ~/.grtags.kdl as a base and the project's .grtags.kdl
// on top of it. With neither present the defaults are returned.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	} else if path != "" {
		searchDir = filepath.Dir(path)
	}

	homeDir, err := os.UserHomeDir()
	var baseConfig *Config
	if err == nil && filepath.Clean(homeDir) != filepath.Clean(searchDir) {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	var projectConfig *Config
	if kdlCfg, err := LoadKDL(searchDir); err == nil && kdlCfg != nil {
		projectConfig = kdlCfg
	} else if err != nil {
		return nil, err
	}

	if baseConfig != nil && projectConfig != nil {
		return mergeConfigs(baseConfig, projectConfig), nil
	} else if projectConfig != nil {
		return projectConfig, nil
	} else if baseConfig != nil {
		abs, err := filepath.Abs(searchDir)
		if err != nil {
			abs = searchDir
		}
		baseConfig.Project.Root = abs
		return baseConfig, nil
	}

	abs, err := filepath.Abs(searchDir)
	if err != nil {
		abs = searchDir
	}
	cfg := Default(abs)
	cfg.EnrichExclusionsWithBuildArtifacts()
	return cfg, nil
}

// Default returns the built-in configuration for a project rooted at root.
func Default(root string) *Config {
	return &Config{
		Version: 1,
		Project: Project{
			Root: root,
		},
		Index: Index{
			MaxFileSize:      types.DefaultMaxFileSize,
			FollowSymlinks:   false,
			RespectGitignore: true,
			WatchMode:        true,
			WatchDebounceMs:  DefaultWatchDebounceMs,
		},
		Performance: Performance{
			ParallelFileWorkers: 0,
		},
		Store: Store{
			Dir:  DefaultStoreDir,
			Sync: true,
		},
		Include: []string{},
		Exclude: getDefaultExclusions(),
	}
}

// mergeConfigs merges a base config with a project config.
// Project config takes precedence, but base exclusions are preserved.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Exclude) > 0 {
		all := make([]string, 0, len(base.Exclude)+len(project.Exclude))
		all = append(all, base.Exclude...)
		all = append(all, project.Exclude...)
		merged.Exclude = DeduplicatePatterns(all)
	}

	if len(project.Include) == 0 && len(base.Include) > 0 {
		merged.Include = base.Include
	}

	return &merged
}

// EnrichExclusionsWithBuildArtifacts detects build output directories from
// language configs and adds them to the exclusion list
func (c *Config) EnrichExclusionsWithBuildArtifacts() {
	if c.Project.Root == "" {
		return
	}

	detector := NewBuildArtifactDetector(c.Project.Root)
	detectedPatterns := detector.DetectOutputDirectories()

	if len(detectedPatterns) > 0 {
		c.Exclude = append(c.Exclude, detectedPatterns...)
		c.Exclude = DeduplicatePatterns(c.Exclude)
	}
}

func getDefaultExclusions() []string {
	return []string{
		// Git metadata and every other hidden directory, the store included
		"**/.git/**",
		"**/.*/**",

		// Package managers & dependencies
		"**/node_modules/**",
		"**/vendor/**",
		"**/bower_components/**",
		"**/jspm_packages/**",
		"**/venv/**",
		"**/site-packages/**",
		"**/Pods/**",

		// Build artifacts & output
		"**/dist/**",
		"**/build/**",
		"**/out/**",
		"**/target/**", // Rust, Java
		"**/bin/**",
		"**/obj/**", // .NET
		"**/CMakeFiles/**",
		"**/*.min.js",
		"**/*.min.css",
		"**/*.bundle.js",
		"**/*.chunk.js",

		// Editor temp files
		"**/*.swp",
		"**/*.swo",
		"**/*~",
		"**/*.tmp",
		"**/*.bak",
		"**/*.orig",

		// Python compiled files
		"**/__pycache__/**",
		"**/*.pyc",
		"**/*.pyo",

		// OS files
		"**/Thumbs.db",
		"**/desktop.ini",
		"**/.DS_Store",

		// Object code and libraries
		"**/*.o",
		"**/*.a",
		"**/*.so",
		"**/*.dylib",
		"**/*.dll",
		"**/*.exe",
		"**/*.class",
		"**/*.jar",

		// Archives
		"**/*.zip",
		"**/*.tar",
		"**/*.gz",
		"**/*.tgz",
		"**/*.7z",

		// Logs
		"**/logs/**",
		"**/*.log",

		// Coverage
		"**/coverage/**",
	}
}
