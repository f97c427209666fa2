// Package metrics exports store statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuapare/ngfkit/db"
)

// Collector reads db.Store.Stats on every scrape. Collecting waits for an
// active writer scope to end.
type Collector struct {
	store *db.Store

	heapSize       *prometheus.Desc
	allocatedBytes *prometheus.Desc
	freeBytes      *prometheus.Desc
	freeBlocks     *prometheus.Desc
	largestFree    *prometheus.Desc
	fileSize       *prometheus.Desc
	allocs         *prometheus.Desc
	frees          *prometheus.Desc
	grows          *prometheus.Desc
	growBytes      *prometheus.Desc
	splits         *prometheus.Desc
	coalesces      *prometheus.Desc
	scopes         *prometheus.Desc
	activeScopes   *prometheus.Desc
	syncs          *prometheus.Desc
	generation     *prometheus.Desc
	clean          *prometheus.Desc
	up             *prometheus.Desc
}

// NewCollector returns a collector for s. Metric names are prefixed with
// namespace and carry a "store" label with the store's path.
func NewCollector(s *db.Store, namespace string) *Collector {
	labels := prometheus.Labels{"store": s.Path()}
	if s.Transient() {
		labels["store"] = "transient"
	}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "store", name), help, variable, labels)
	}
	return &Collector{
		store:          s,
		heapSize:       desc("heap_size_bytes", "Heap extent in bytes."),
		allocatedBytes: desc("allocated_bytes", "Bytes held by allocated blocks."),
		freeBytes:      desc("free_bytes", "Bytes held by free blocks."),
		freeBlocks:     desc("free_blocks", "Number of free blocks."),
		largestFree:    desc("largest_free_block_bytes", "Size of the largest free block."),
		fileSize:       desc("mapped_bytes", "Size of the current mapping."),
		allocs:         desc("allocs_total", "Allocations since open, by path taken.", "path"),
		frees:          desc("frees_total", "Frees since open."),
		grows:          desc("grows_total", "Heap grows since open."),
		growBytes:      desc("grow_bytes_total", "Bytes added by heap grows since open."),
		splits:         desc("splits_total", "Free block splits since open."),
		coalesces:      desc("coalesces_total", "Free block merges since open, by direction.", "direction"),
		scopes:         desc("scopes_total", "Lock-taking scopes entered since open, by mode.", "mode"),
		activeScopes:   desc("active_scopes", "Lock-taking scopes currently active, by mode.", "mode"),
		syncs:          desc("syncs_total", "Syncs that flushed pending changes."),
		generation:     desc("generation", "Writer generation recorded in the header."),
		clean:          desc("clean", "1 if the store had completed its last sync when opened."),
		up:             desc("up", "1 if the store could be read."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.heapSize, c.allocatedBytes, c.freeBytes, c.freeBlocks, c.largestFree,
		c.fileSize, c.allocs, c.frees, c.grows, c.growBytes, c.splits,
		c.coalesces, c.scopes, c.activeScopes, c.syncs, c.generation, c.clean, c.up,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st, err := c.store.Stats()
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	gauge := func(d *prometheus.Desc, v float64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, lv...)
	}
	counter := func(d *prometheus.Desc, v float64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, lv...)
	}

	a := st.Alloc
	gauge(c.up, 1)
	gauge(c.heapSize, float64(a.HeapSize))
	gauge(c.allocatedBytes, float64(a.AllocatedBytes))
	gauge(c.freeBytes, float64(a.FreeBytes))
	gauge(c.freeBlocks, float64(a.FreeBlocks))
	gauge(c.largestFree, float64(a.LargestFree))
	gauge(c.fileSize, float64(st.FileSize))
	counter(c.allocs, float64(a.AllocFastPath), "fast")
	counter(c.allocs, float64(a.AllocSlowPath), "grow")
	counter(c.frees, float64(a.FreeCalls))
	counter(c.grows, float64(a.GrowCalls))
	counter(c.growBytes, float64(a.GrowBytes))
	counter(c.splits, float64(a.SplitCount))
	counter(c.coalesces, float64(a.CoalesceForward), "forward")
	counter(c.coalesces, float64(a.CoalesceBackward), "backward")
	counter(c.scopes, float64(st.ReadScopes), "read")
	counter(c.scopes, float64(st.WriteScopes), "write")
	gauge(c.activeScopes, float64(st.ActiveReaders), "read")
	gauge(c.activeScopes, float64(st.ActiveWriters), "write")
	counter(c.syncs, float64(st.Syncs))
	gauge(c.generation, float64(st.Generation))
	clean := 0.0
	if st.Clean {
		clean = 1
	}
	gauge(c.clean, clean)
}
