package metrics

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/grtags/internal/indexing"
	"github.com/standardbeagle/grtags/internal/jobs"
	"github.com/standardbeagle/grtags/internal/store"
	"github.com/standardbeagle/grtags/internal/types"
	"github.com/standardbeagle/grtags/internal/watcher"
)

func openStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(store.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func findMetric(t *testing.T, families []*dto.MetricFamily, name string) *dto.Metric {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf.GetMetric()[0]
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func metricValue(m *dto.Metric) float64 {
	if m.GetCounter() != nil {
		return m.GetCounter().GetValue()
	}
	return m.GetGauge().GetValue()
}

func TestPebbleCollector(t *testing.T) {
	db := openStore(t)
	files := db.Files(store.WriteLock)
	require.NoError(t, files.Set("a.go", 1))
	files.Release()

	pc := NewPebbleCollector(db.Pebble(), prometheus.Labels{"project": "demo"})
	assert.Equal(t, 19, testutil.CollectAndCount(pc))
	assert.Equal(t, 1, testutil.CollectAndCount(pc, "grtags_pebble_wal_bytes_in_total"))
}

func TestIndexCollector(t *testing.T) {
	src := Sources{
		Coordinator: func() indexing.Stats {
			return indexing.Stats{TrackedFiles: 12, WatchedDirs: 3, Scanning: true, Parses: 40, StaleReparses: 2}
		},
		Pool:      func() jobs.PoolStats { return jobs.PoolStats{Workers: 4, Submitted: 45, Completed: 44, Running: 1} },
		Watcher:   func() watcher.Stats { return watcher.Stats{Watched: 3, Raw: 90, Delivered: 7} },
		Mutations: func() uint64 { return 512 },
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewIndexCollector(src, prometheus.Labels{"project": "demo"}))

	families, err := reg.Gather()
	require.NoError(t, err)

	cases := map[string]float64{
		"grtags_tracked_files":            12,
		"grtags_tracked_directories":      3,
		"grtags_scan_running":             1,
		"grtags_parses_total":             40,
		"grtags_stale_reparses_total":     2,
		"grtags_store_mutations_total":    512,
		"grtags_pool_workers":             4,
		"grtags_pool_jobs_running":        1,
		"grtags_watcher_raw_events_total": 90,
		"grtags_watcher_events_total":     7,
	}
	for name, want := range cases {
		m := findMetric(t, families, name)
		assert.Equal(t, want, metricValue(m), name)
		require.Len(t, m.GetLabel(), 1)
		assert.Equal(t, "demo", m.GetLabel()[0].GetValue())
	}
}

func TestIndexCollector_NilSources(t *testing.T) {
	ic := NewIndexCollector(Sources{Mutations: func() uint64 { return 1 }}, nil)
	assert.Equal(t, 1, testutil.CollectAndCount(ic))
}

func TestNewRegistry(t *testing.T) {
	db := openStore(t)
	reg := NewRegistry("demo", db, Sources{Mutations: db.Mutations})

	families, err := reg.Gather()
	require.NoError(t, err)
	findMetric(t, families, "grtags_pebble_memtable_size_bytes")
	findMetric(t, families, "grtags_store_mutations_total")
	findMetric(t, families, "go_goroutines")
}

func TestComputeIndexStats(t *testing.T) {
	db := openStore(t)
	files := db.Files(store.WriteLock)
	for _, rel := range []string{"main.go", filepath.Join("lib", "util.py"), "README"} {
		require.NoError(t, files.Set(rel, 1))
	}
	files.Release()

	goID := types.FileIDFor("main.go")
	pyID := types.FileIDFor(filepath.Join("lib", "util.py"))
	at := func(id types.FileID, line uint32) types.Location {
		return types.Location{File: id, Position: types.Position{Line: line, Column: 1}}
	}
	tags := db.Tags(store.WriteLock)
	require.NoError(t, tags.Set("main", types.LocationSet{
		at(goID, 3): types.FlagDefinition,
		at(pyID, 1): types.FlagReference,
		at(pyID, 9): types.FlagReference,
	}))
	require.NoError(t, tags.Set("helper", types.LocationSet{at(goID, 5): types.FlagReference}))
	tags.Release()

	language := func(path string) string {
		switch filepath.Ext(path) {
		case ".go":
			return "go"
		case ".py":
			return "python"
		}
		return ""
	}
	stats, err := ComputeIndexStats(db, language)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalFiles)
	assert.Equal(t, int64(2), stats.IndexedFiles)
	assert.Equal(t, int64(2), stats.TotalTokens)
	assert.Equal(t, int64(4), stats.TotalLocations)
	assert.Equal(t, int64(1), stats.TotalDefinitions)
	assert.Equal(t, int64(3), stats.TotalReferences)
	assert.Equal(t, "main", stats.BusiestToken)
	assert.Equal(t, int64(3), stats.MaxLocationsPerToken)
	assert.Equal(t, int64(1), stats.UndefinedTokens)

	goStats := stats.LanguageDistribution["go"]
	assert.Equal(t, int64(1), goStats.FileCount)
	assert.Equal(t, int64(2), goStats.LocationCount)
	assert.Equal(t, int64(1), goStats.FileExtensions[".go"])
	assert.Equal(t, int64(2), stats.LanguageDistribution["python"].LocationCount)
	assert.Equal(t, int64(1), stats.LanguageDistribution["other"].FileCount)

	text := stats.FormatAsText()
	assert.Contains(t, text, "Busiest:            main (3)")
	assert.Contains(t, text, "python:")

	js := stats.FormatAsJSON()
	summary := js["summary"].(map[string]interface{})
	assert.Equal(t, int64(2), summary["tokens"])
}

func TestComputeIndexStats_Empty(t *testing.T) {
	stats, err := ComputeIndexStats(openStore(t), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalFiles)
	assert.Empty(t, stats.BusiestToken)
	assert.NotContains(t, stats.FormatAsText(), "Busiest")
}
