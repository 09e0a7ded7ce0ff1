package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-project Prometheus metrics, labeled by project ID and served by the
// CLI's --metrics-addr /metrics endpoint from a single registration, the way the jinterlante1206-AleutianLocal trace
// package registers its query/update histograms via promauto at package
// scope instead of per-call-site.
var (
	activeSlots = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opensprint_scheduler_active_slots",
		Help: "Slots currently occupied by in-flight tasks.",
	}, []string{"project"})

	readyQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opensprint_scheduler_ready_queue_depth",
		Help: "Tasks waiting in the ready queue.",
	}, []string{"project"})

	mergeQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opensprint_merge_queue_depth",
		Help: "Merge jobs enqueued or in flight in the Merge Queue.",
	}, []string{"project"})

	tasksDoneTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opensprint_tasks_done_total",
		Help: "Tasks that reached done.",
	}, []string{"project"})

	tasksFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opensprint_tasks_failed_total",
		Help: "Failed task attempts (requeued, demoted or blocked).",
	}, []string{"project"})

	mergeQueueWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opensprint_merge_queue_wait_seconds",
		Help:    "Time from the start of PerformMergeAndDone until it returned, Merge Queue wait included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"project"})
)

// sampleMetrics refreshes the gauges from the scheduler/queue's current
// counters. Called once per dispatch pass, which is frequent enough for a
// scrape-based exporter without adding a dedicated ticker.
func (p *Project) sampleMetrics() {
	id := p.project.ID
	st := p.sched.Status()
	activeSlots.WithLabelValues(id).Set(float64(st.Active))
	readyQueueDepth.WithLabelValues(id).Set(float64(st.QueueDepth))
	mergeQueueDepth.WithLabelValues(id).Set(float64(p.queue.Depth()))

	done := float64(st.TotalDone)
	if done > p.lastDone {
		tasksDoneTotal.WithLabelValues(id).Add(done - p.lastDone)
		p.lastDone = done
	}
	failed := float64(st.TotalFailed)
	if failed > p.lastFailed {
		tasksFailedTotal.WithLabelValues(id).Add(failed - p.lastFailed)
		p.lastFailed = failed
	}
}

// observeMergeWait records how long a merge job waited on the Merge Queue
// before PerformMergeAndDone returned.
func (p *Project) observeMergeWait(since time.Time) {
	mergeQueueWaitSeconds.WithLabelValues(p.project.ID).Observe(time.Since(since).Seconds())
}
