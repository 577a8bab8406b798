// Package metrics exposes store and indexing state to Prometheus and
// summarises index contents for reports.
package metrics

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

type pebbleMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(m *pebble.Metrics) float64
}

// PebbleCollector reports compaction, memtable and WAL metrics of the
// store's pebble database.
type PebbleCollector struct {
	db      *pebble.DB
	metrics []pebbleMetric
}

func NewPebbleCollector(db *pebble.DB, constLabels prometheus.Labels) *PebbleCollector {
	pc := &PebbleCollector{db: db}
	add := func(name, help string, vt prometheus.ValueType, value func(m *pebble.Metrics) float64) {
		pc.metrics = append(pc.metrics, pebbleMetric{
			desc:      prometheus.NewDesc("grtags_pebble_"+name, help, nil, constLabels),
			valueType: vt,
			value:     value,
		})
	}

	// Compaction
	add("compaction_count_total", "Total number of compactions performed", prometheus.CounterValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) })
	add("compaction_default_count_total", "Total number of default compactions performed", prometheus.CounterValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.DefaultCount) })
	add("compaction_elision_only_total", "Total number of elision-only compactions performed", prometheus.CounterValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.ElisionOnlyCount) })
	add("compaction_move_total", "Total number of move compactions performed", prometheus.CounterValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.MoveCount) })
	add("compaction_read_total", "Total number of read compactions performed", prometheus.CounterValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.ReadCount) })
	add("compaction_rewrite_total", "Total number of rewrite compactions performed", prometheus.CounterValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.RewriteCount) })
	add("compaction_multilevel_total", "Total number of multi-level compactions performed", prometheus.CounterValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.MultiLevelCount) })
	add("compaction_estimated_debt_bytes", "Estimated number of bytes that need to be compacted to reach a stable state", prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) })
	add("compaction_in_progress_bytes", "Number of bytes being compacted currently", prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.InProgressBytes) })
	add("compaction_marked_files", "Number of files marked for compaction", prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.MarkedFiles) })

	// Memtable
	add("memtable_size_bytes", "Current size of the memtable in bytes", prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) })
	add("memtable_count", "Current count of memtables", prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) })
	add("memtable_zombie_size_bytes", "Size of zombie memtables in bytes", prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.MemTable.ZombieSize) })
	add("memtable_zombie_count", "Count of zombie memtables", prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.MemTable.ZombieCount) })

	// WAL
	add("wal_files", "Number of live WAL files", prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) })
	add("wal_obsolete_files", "Number of obsolete WAL files", prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.WAL.ObsoleteFiles) })
	add("wal_size_bytes", "Size of live WAL data in bytes", prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) })
	add("wal_bytes_in_total", "Total logical bytes written to the WAL", prometheus.CounterValue,
		func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesIn) })
	add("wal_bytes_written_total", "Total physical bytes written to the WAL", prometheus.CounterValue,
		func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) })

	return pc
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range pc.metrics {
		ch <- m.desc
	}
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := pc.db.Metrics()
	for _, m := range pc.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.valueType, m.value(snapshot))
	}
}
