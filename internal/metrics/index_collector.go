package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/standardbeagle/grtags/internal/indexing"
	"github.com/standardbeagle/grtags/internal/jobs"
	"github.com/standardbeagle/grtags/internal/store"
	"github.com/standardbeagle/grtags/internal/watcher"
)

// Sources are polled on every scrape. Nil sources are skipped.
type Sources struct {
	Coordinator func() indexing.Stats
	Pool        func() jobs.PoolStats
	Watcher     func() watcher.Stats
	Mutations   func() uint64
}

type gauge struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
}

// IndexCollector reports coordinator, worker pool and watcher state.
type IndexCollector struct {
	src Sources

	trackedFiles, watchedDirs, inFlight, scanning gauge
	waveTotal, waveOutstanding                    gauge
	scans, scanFailures, parses, staleReparses    gauge
	parseFailures, removals, invalidated          gauge
	storeMutations                                gauge

	poolWorkers, poolSubmitted, poolCompleted, poolRunning gauge

	watcherDirs, watcherRaw, watcherDelivered, watcherErrors gauge
}

func NewIndexCollector(src Sources, constLabels prometheus.Labels) *IndexCollector {
	def := func(name, help string, vt prometheus.ValueType) gauge {
		return gauge{desc: prometheus.NewDesc("grtags_"+name, help, nil, constLabels), valueType: vt}
	}
	return &IndexCollector{
		src: src,

		trackedFiles:    def("tracked_files", "Files mirrored by the coordinator", prometheus.GaugeValue),
		watchedDirs:     def("tracked_directories", "Directories holding tracked files", prometheus.GaugeValue),
		inFlight:        def("parses_in_flight", "Parse jobs scheduled and not yet merged", prometheus.GaugeValue),
		scanning:        def("scan_running", "1 while a scan is running", prometheus.GaugeValue),
		waveTotal:       def("wave_jobs", "Parse jobs in the current wave", prometheus.GaugeValue),
		waveOutstanding: def("wave_outstanding_jobs", "Parse jobs of the current wave not finished yet", prometheus.GaugeValue),
		scans:           def("scans_total", "Scans submitted", prometheus.CounterValue),
		scanFailures:    def("scan_failures_total", "Scans that failed and were ignored", prometheus.CounterValue),
		parses:          def("parses_total", "Parse results merged into the tag store", prometheus.CounterValue),
		staleReparses:   def("stale_reparses_total", "Parse results discarded because the file changed during parsing", prometheus.CounterValue),
		parseFailures:   def("parse_failures_total", "Parse jobs that returned an error", prometheus.CounterValue),
		removals:        def("file_removals_total", "Files removed from the file-state store", prometheus.CounterValue),
		invalidated:     def("invalidated_locations_total", "Tag locations removed by invalidation", prometheus.CounterValue),
		storeMutations:  def("store_mutations_total", "Key writes and deletes committed to the store", prometheus.CounterValue),

		poolWorkers:   def("pool_workers", "Worker limit of the job pool", prometheus.GaugeValue),
		poolSubmitted: def("pool_jobs_submitted_total", "Jobs submitted to the pool", prometheus.CounterValue),
		poolCompleted: def("pool_jobs_completed_total", "Jobs the pool finished running", prometheus.CounterValue),
		poolRunning:   def("pool_jobs_running", "Jobs currently running", prometheus.GaugeValue),

		watcherDirs:      def("watcher_directories", "Directories watched by fsnotify", prometheus.GaugeValue),
		watcherRaw:       def("watcher_raw_events_total", "fsnotify events received", prometheus.CounterValue),
		watcherDelivered: def("watcher_events_total", "Debounced directory events delivered", prometheus.CounterValue),
		watcherErrors:    def("watcher_errors_total", "fsnotify errors", prometheus.CounterValue),
	}
}

func (ic *IndexCollector) all() []gauge {
	return []gauge{
		ic.trackedFiles, ic.watchedDirs, ic.inFlight, ic.scanning,
		ic.waveTotal, ic.waveOutstanding,
		ic.scans, ic.scanFailures, ic.parses, ic.staleReparses,
		ic.parseFailures, ic.removals, ic.invalidated,
		ic.storeMutations,
		ic.poolWorkers, ic.poolSubmitted, ic.poolCompleted, ic.poolRunning,
		ic.watcherDirs, ic.watcherRaw, ic.watcherDelivered, ic.watcherErrors,
	}
}

func (ic *IndexCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range ic.all() {
		ch <- g.desc
	}
}

func (ic *IndexCollector) Collect(ch chan<- prometheus.Metric) {
	emit := func(g gauge, v float64) {
		ch <- prometheus.MustNewConstMetric(g.desc, g.valueType, v)
	}

	if ic.src.Coordinator != nil {
		s := ic.src.Coordinator()
		emit(ic.trackedFiles, float64(s.TrackedFiles))
		emit(ic.watchedDirs, float64(s.WatchedDirs))
		emit(ic.inFlight, float64(s.InFlight))
		scanning := 0.0
		if s.Scanning {
			scanning = 1
		}
		emit(ic.scanning, scanning)
		emit(ic.waveTotal, float64(s.WaveTotal))
		emit(ic.waveOutstanding, float64(s.WaveOutstanding))
		emit(ic.scans, float64(s.Scans))
		emit(ic.scanFailures, float64(s.ScanFailures))
		emit(ic.parses, float64(s.Parses))
		emit(ic.staleReparses, float64(s.StaleReparses))
		emit(ic.parseFailures, float64(s.ParseFailures))
		emit(ic.removals, float64(s.Removals))
		emit(ic.invalidated, float64(s.InvalidatedEntries))
	}
	if ic.src.Mutations != nil {
		emit(ic.storeMutations, float64(ic.src.Mutations()))
	}
	if ic.src.Pool != nil {
		s := ic.src.Pool()
		emit(ic.poolWorkers, float64(s.Workers))
		emit(ic.poolSubmitted, float64(s.Submitted))
		emit(ic.poolCompleted, float64(s.Completed))
		emit(ic.poolRunning, float64(s.Running))
	}
	if ic.src.Watcher != nil {
		s := ic.src.Watcher()
		emit(ic.watcherDirs, float64(s.Watched))
		emit(ic.watcherRaw, float64(s.Raw))
		emit(ic.watcherDelivered, float64(s.Delivered))
		emit(ic.watcherErrors, float64(s.Errors))
	}
}

// NewRegistry registers the index and pebble collectors plus the Go runtime
// and process collectors. project becomes a constant label on every index
// metric.
func NewRegistry(project string, db *store.DB, src Sources) *prometheus.Registry {
	labels := prometheus.Labels{"project": project}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		NewIndexCollector(src, labels),
	)
	if db != nil {
		reg.MustRegister(NewPebbleCollector(db.Pebble(), labels))
	}
	return reg
}
