// Package metrics exposes tracked processes to Prometheus.
package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/warriorguo/nodesync/process"
	"github.com/warriorguo/nodesync/types"
)

// Source lists the trackers to report, such as a registry.
type Source interface {
	List() []*process.Tracker
	Blame(identityNodeID string) map[string]int
}

var (
	_ prometheus.Collector = &Collector{}

	processLabels = []string{"source", "target", "role", "channel"}
)

// Collector reads its values from the trackers at scrape time.
type Collector struct {
	source         Source
	identityNodeID string

	status         *prometheus.Desc
	totalDataCount *prometheus.Desc
	batchCount     *prometheus.Desc
	errorsBlamed   *prometheus.Desc
}

func NewCollector(source Source, identityNodeID string) *Collector {
	return &Collector{
		source:         source,
		identityNodeID: identityNodeID,
		status: prometheus.NewDesc(
			"nodesync_process_status",
			"Number of tracked processes by role and status.",
			[]string{"role", "status"}, nil),
		totalDataCount: prometheus.NewDesc(
			"nodesync_process_total_data_count",
			"Rows handled by a process so far.",
			processLabels, nil),
		batchCount: prometheus.NewDesc(
			"nodesync_process_batch_count",
			"Batches a process is working on.",
			processLabels, nil),
		errorsBlamed: prometheus.NewDesc(
			"nodesync_process_errors_blamed",
			"Failed processes by the node held responsible.",
			[]string{"node"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.status
	ch <- c.totalDataCount
	ch <- c.batchCount
	ch <- c.errorsBlamed
}

type roleStatus struct {
	role   types.ProcessRole
	status types.ProcessStatus
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counts := make(map[roleStatus]int)
	for _, t := range c.source.List() {
		s := t.Snapshot()
		key := s.Key()
		counts[roleStatus{key.Role, s.Status()}]++

		labels := []string{key.SourceNodeID, key.TargetNodeID, string(key.Role), key.ChannelID}
		ch <- prometheus.MustNewConstMetric(c.totalDataCount, prometheus.GaugeValue,
			float64(s.TotalDataCount()), labels...)
		ch <- prometheus.MustNewConstMetric(c.batchCount, prometheus.GaugeValue,
			float64(s.BatchCount()), labels...)
	}
	for k, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue,
			float64(n), string(k.role), k.status.String())
	}

	blamed := c.source.Blame(c.identityNodeID)
	nodes := make([]string, 0, len(blamed))
	for node := range blamed {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		ch <- prometheus.MustNewConstMetric(c.errorsBlamed, prometheus.GaugeValue,
			float64(blamed[node]), node)
	}
}
