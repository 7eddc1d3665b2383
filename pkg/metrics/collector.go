package metrics

import (
	"time"

	"github.com/wpsteward/steward/pkg/storage"
	"github.com/wpsteward/steward/pkg/types"
)

// Collector periodically samples gauge metrics from the task store
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
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
}

func (c *Collector) collectTaskMetrics() {
	tasks, err := c.store.ListTasks()
	if err != nil {
		return
	}

	counts := map[types.TaskState]int{
		types.TaskStateQueued:     0,
		types.TaskStateInProgress: 0,
		types.TaskStateSucceeded:  0,
		types.TaskStateFailed:     0,
	}
	for _, task := range tasks {
		counts[task.State]++
	}

	for state, count := range counts {
		TasksByState.WithLabelValues(string(state)).Set(float64(count))
	}
}

func (c *Collector) collectQueueMetrics() {
	depth, err := c.store.PendingDepth()
	if err != nil {
		return
	}
	QueueDepth.Set(float64(depth))
}
