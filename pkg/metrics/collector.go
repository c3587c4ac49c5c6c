package metrics

import (
	"time"

	"github.com/docmill/docmill/pkg/queue"
	"github.com/docmill/docmill/pkg/storage"
	"github.com/docmill/docmill/pkg/types"
	"github.com/docmill/docmill/pkg/workspace"
)

// trackedStatuses keeps gauge series alive even when a status count
// drops back to zero.
var trackedStatuses = []types.TaskStatus{
	types.TaskStatusPending,
	types.TaskStatusProcessing,
	types.TaskStatusCompleted,
	types.TaskStatusFailed,
	types.TaskStatusCancelled,
}

// Collector refreshes the state gauges from the store, the queue
// fabric and the workspace manager.
type Collector struct {
	store  storage.Store
	fabric *queue.Fabric
	spaces *workspace.Manager
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store, fabric *queue.Fabric, spaces *workspace.Manager) *Collector {
	return &Collector{
		store:  store,
		fabric: fabric,
		spaces: spaces,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectTaskMetrics()
	c.collectQueueMetrics()
	c.collectWorkspaceMetrics()
}

func (c *Collector) collectTaskMetrics() {
	counts, err := c.store.CountByStatus()
	if err != nil {
		return
	}

	for _, status := range trackedStatuses {
		TasksByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (c *Collector) collectQueueMetrics() {
	for lane, depth := range c.fabric.Depths() {
		QueueDepth.WithLabelValues(lane).Set(float64(depth))
	}
}

func (c *Collector) collectWorkspaceMetrics() {
	stats, err := c.spaces.Stats()
	if err != nil {
		return
	}

	WorkspaceBytes.Set(float64(stats.WorkspaceBytes))
	WorkspacesActive.Set(float64(stats.ActiveWorkspaces))
}
