package metrics

import (
	"github.com/sagernet/sing-uv/reactor"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "uv"

// LoopCollector exports reactor.Stats of one loop. Collect only reads atomic
// counters and is safe to call while the loop runs.
type LoopCollector struct {
	loop              *reactor.Loop
	iterations        *prometheus.Desc
	handles           *prometheus.Desc
	activeHandles     *prometheus.Desc
	activeReqs        *prometheus.Desc
	postedCompletions *prometheus.Desc
	work              *prometheus.Desc
	resources         *prometheus.Desc
	pinnedResources   *prometheus.Desc
}

func NewLoopCollector(loop *reactor.Loop, labels prometheus.Labels) *LoopCollector {
	newDesc := func(name, help string, variableLabels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "loop", name), help, variableLabels, labels)
	}
	return &LoopCollector{
		loop:              loop,
		iterations:        newDesc("iterations_total", "Loop iterations run."),
		handles:           newDesc("handles", "Handles not yet closed."),
		activeHandles:     newDesc("active_handles", "Handles keeping the loop alive."),
		activeReqs:        newDesc("active_requests", "Requests in flight."),
		postedCompletions: newDesc("posted_completions_total", "Completions delivered from other goroutines."),
		work:              newDesc("work_total", "Thread pool work items by state.", "state"),
		resources:         newDesc("resources", "Registered resources."),
		pinnedResources:   newDesc("pinned_resources", "Resources kept alive by a self reference."),
	}
}

func (c *LoopCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.iterations
	ch <- c.handles
	ch <- c.activeHandles
	ch <- c.activeReqs
	ch <- c.postedCompletions
	ch <- c.work
	ch <- c.resources
	ch <- c.pinnedResources
}

func (c *LoopCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.loop.Stats()
	ch <- prometheus.MustNewConstMetric(c.iterations, prometheus.CounterValue, float64(stats.Iterations))
	ch <- prometheus.MustNewConstMetric(c.handles, prometheus.GaugeValue, float64(stats.Handles))
	ch <- prometheus.MustNewConstMetric(c.activeHandles, prometheus.GaugeValue, float64(stats.ActiveHandles))
	ch <- prometheus.MustNewConstMetric(c.activeReqs, prometheus.GaugeValue, float64(stats.ActiveReqs))
	ch <- prometheus.MustNewConstMetric(c.postedCompletions, prometheus.CounterValue, float64(stats.PostedCompletions))
	ch <- prometheus.MustNewConstMetric(c.work, prometheus.CounterValue, float64(stats.WorkQueued), "queued")
	ch <- prometheus.MustNewConstMetric(c.work, prometheus.CounterValue, float64(stats.WorkCompleted), "completed")
	ch <- prometheus.MustNewConstMetric(c.work, prometheus.CounterValue, float64(stats.WorkCanceled), "canceled")
	ch <- prometheus.MustNewConstMetric(c.resources, prometheus.GaugeValue, float64(stats.Resources))
	ch <- prometheus.MustNewConstMetric(c.pinnedResources, prometheus.GaugeValue, float64(stats.PinnedResources))
}
