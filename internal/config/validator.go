package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	grerrors "github.com/standardbeagle/grtags/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return grerrors.NewConfigError("project", cfg.Project.Root, err)
	}

	if err := v.validateIndexConfig(&cfg.Index); err != nil {
		return grerrors.NewConfigError("index", "", err)
	}

	if err := v.validatePerformanceConfig(&cfg.Performance); err != nil {
		return grerrors.NewConfigError("performance", strconv.Itoa(cfg.Performance.ParallelFileWorkers), err)
	}

	if err := v.validatePatterns(cfg.Include); err != nil {
		return grerrors.NewConfigError("include", "", err)
	}

	if err := v.validatePatterns(cfg.Exclude); err != nil {
		return grerrors.NewConfigError("exclude", "", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	return nil
}

func (v *Validator) validateIndexConfig(index *Index) error {
	if index.MaxFileSize <= 0 {
		return fmt.Errorf("MaxFileSize must be positive, got %d", index.MaxFileSize)
	}

	if index.MaxFileSize > 100*1024*1024 {
		return fmt.Errorf("MaxFileSize should not exceed 100MB, got %d", index.MaxFileSize)
	}

	if index.WatchDebounceMs < 0 {
		return fmt.Errorf("WatchDebounceMs cannot be negative, got %d", index.WatchDebounceMs)
	}

	if index.RescanIntervalSec < 0 {
		return fmt.Errorf("RescanIntervalSec cannot be negative, got %d", index.RescanIntervalSec)
	}

	return nil
}

func (v *Validator) validatePerformanceConfig(perf *Performance) error {
	// 0 means auto-detect (set by smart defaults)
	if perf.ParallelFileWorkers < 0 {
		return fmt.Errorf("ParallelFileWorkers cannot be negative, got %d", perf.ParallelFileWorkers)
	}
	return nil
}

func (v *Validator) validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return nil
}

// setSmartDefaults applies smart defaults based on system capabilities
func (v *Validator) setSmartDefaults(cfg *Config) {
	// Leave one core free for the watcher and the OS, minimum of 1
	if cfg.Performance.ParallelFileWorkers == 0 {
		cfg.Performance.ParallelFileWorkers = max(1, runtime.NumCPU()-1)
	}

	if cfg.Index.WatchDebounceMs == 0 {
		cfg.Index.WatchDebounceMs = DefaultWatchDebounceMs
	}

	if cfg.Store.Dir == "" {
		cfg.Store.Dir = DefaultStoreDir
	}

	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(filepath.Clean(cfg.Project.Root))
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
