package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeConfigs_ExclusionsMerge(t *testing.T) {
	base := &Config{
		Exclude: []string{
			"**/node_modules/**",
			"**/vendor/**",
			"**/third_party/**",
		},
	}

	project := &Config{
		Exclude: []string{
			"**/dist/**",
			"**/build/**",
		},
	}

	merged := mergeConfigs(base, project)

	assert.Equal(t, []string{
		"**/node_modules/**",
		"**/vendor/**",
		"**/third_party/**",
		"**/dist/**",
		"**/build/**",
	}, merged.Exclude)
}

func TestMergeConfigs_ExclusionsDeduplication(t *testing.T) {
	base := &Config{
		Exclude: []string{
			"**/node_modules/**",
			"**/vendor/**",
		},
	}

	project := &Config{
		Exclude: []string{
			"**/node_modules/**", // Duplicate
			"**/dist/**",
		},
	}

	merged := mergeConfigs(base, project)

	assert.Len(t, merged.Exclude, 3)
	assert.Contains(t, merged.Exclude, "**/node_modules/**")
	assert.Contains(t, merged.Exclude, "**/vendor/**")
	assert.Contains(t, merged.Exclude, "**/dist/**")
}

func TestMergeConfigs_Inclusions(t *testing.T) {
	base := &Config{Include: []string{"*.go", "*.js"}}

	merged := mergeConfigs(base, &Config{Include: []string{"*.py"}})
	assert.Equal(t, []string{"*.py"}, merged.Include, "project inclusions override base")

	merged = mergeConfigs(base, &Config{Include: []string{}})
	assert.Equal(t, base.Include, merged.Include, "base inclusions used when project has none")
}

func TestMergeConfigs_ProjectSettingsTakePrecedence(t *testing.T) {
	base := &Config{
		Index:       Index{MaxFileSize: 1024 * 1024},
		Performance: Performance{ParallelFileWorkers: 2},
		Store:       Store{Dir: "/var/cache/grtags"},
	}

	project := &Config{
		Index:       Index{MaxFileSize: 10 * 1024 * 1024},
		Performance: Performance{ParallelFileWorkers: 8},
		Store:       Store{Dir: ".tags"},
	}

	merged := mergeConfigs(base, project)

	assert.Equal(t, int64(10*1024*1024), merged.Index.MaxFileSize)
	assert.Equal(t, 8, merged.Performance.ParallelFileWorkers)
	assert.Equal(t, ".tags", merged.Store.Dir)
}

func TestMergeConfigs_EmptyBaseExclusions(t *testing.T) {
	project := &Config{Exclude: []string{"**/dist/**"}}

	merged := mergeConfigs(&Config{}, project)

	assert.Equal(t, project.Exclude, merged.Exclude)
}

func TestLoadWithRoot_MergesGlobalAndProjectConfigs(t *testing.T) {
	tmpHome := t.TempDir()
	tmpProject := t.TempDir()

	globalConfig := `
exclude {
    "**/node_modules/**"
    "**/third_party/**"
}

include {
    "*.go"
    "*.c"
}

index {
    max_file_size "5MB"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpHome, ConfigFileName), []byte(globalConfig), 0644))

	projectConfig := `
project {
    root "."
    name "test-project"
}

exclude {
    "**/dist/**"
}

index {
    max_file_size "10MB"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpProject, ConfigFileName), []byte(projectConfig), 0644))

	t.Setenv("HOME", tmpHome)

	cfg, err := LoadWithRoot("", tmpProject)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Contains(t, cfg.Exclude, "**/node_modules/**", "global exclusion")
	assert.Contains(t, cfg.Exclude, "**/third_party/**", "global exclusion")
	assert.Contains(t, cfg.Exclude, "**/dist/**", "project exclusion")
	assert.Equal(t, []string{"*.go", "*.c"}, cfg.Include)
	assert.Equal(t, int64(10*1024*1024), cfg.Index.MaxFileSize)
	assert.Equal(t, "test-project", cfg.Project.Name)
	assert.Equal(t, filepath.Clean(tmpProject), cfg.Project.Root)
}

func TestLoadWithRoot_ProjectConfigOnly(t *testing.T) {
	tmpProject := t.TempDir()

	projectConfig := `
project {
    name "test-project"
}

exclude {
    "**/dist/**"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpProject, ConfigFileName), []byte(projectConfig), 0644))
	t.Setenv("HOME", "/nonexistent")

	cfg, err := LoadWithRoot("", tmpProject)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []string{"**/dist/**"}, cfg.Exclude)
	assert.Equal(t, "test-project", cfg.Project.Name)
	assert.Equal(t, tmpProject, cfg.Project.Root)
}

func TestLoadWithRoot_GlobalConfigOnly(t *testing.T) {
	tmpHome := t.TempDir()
	tmpProject := t.TempDir()

	globalConfig := `
exclude {
    "**/node_modules/**"
    "**/third_party/**"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpHome, ConfigFileName), []byte(globalConfig), 0644))
	t.Setenv("HOME", tmpHome)

	cfg, err := LoadWithRoot("", tmpProject)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Contains(t, cfg.Exclude, "**/node_modules/**")
	assert.Contains(t, cfg.Exclude, "**/third_party/**")
	assert.Equal(t, tmpProject, cfg.Project.Root, "root follows the project, not the home directory")
}

func TestLoadWithRoot_DefaultConfigFallback(t *testing.T) {
	tmpProject := t.TempDir()
	t.Setenv("HOME", "/nonexistent")

	cfg, err := LoadWithRoot("", tmpProject)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Contains(t, cfg.Exclude, "**/.*/**", "hidden directories, the store included, are excluded")
	assert.Empty(t, cfg.Include)
	assert.Equal(t, DefaultStoreDir, cfg.Store.Dir)
	assert.True(t, cfg.Store.Sync)
	assert.True(t, cfg.Index.WatchMode)
	assert.Equal(t, DefaultWatchDebounceMs, cfg.Index.WatchDebounceMs)
}

func TestLoadWithRoot_InvalidProjectConfig(t *testing.T) {
	tmpProject := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpProject, ConfigFileName), []byte(`index { "unterminated }`), 0644))
	t.Setenv("HOME", "/nonexistent")

	_, err := LoadWithRoot("", tmpProject)
	assert.Error(t, err)
}

func TestEnrichExclusionsWithBuildArtifacts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "tsconfig.json"),
		[]byte(`{"compilerOptions": {"outDir": "lib-out"}}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.toml"),
		[]byte("[profile.release]\ntarget-dir = \"rust-out\"\n"), 0644))

	cfg := Default(root)
	cfg.EnrichExclusionsWithBuildArtifacts()

	assert.Contains(t, cfg.Exclude, "**/lib-out/**")
	assert.Contains(t, cfg.Exclude, "**/rust-out/**")

	before := len(cfg.Exclude)
	cfg.EnrichExclusionsWithBuildArtifacts()
	assert.Len(t, cfg.Exclude, before, "enrichment deduplicates")
}
