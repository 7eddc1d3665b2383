package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func histogramCount(t *testing.T, c prometheus.Collector) uint64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 8)
	c.Collect(ch)
	close(ch)

	var total uint64
	for m := range ch {
		var metric dto.Metric
		require.NoError(t, m.Write(&metric))
		total += metric.GetHistogram().GetSampleCount()
	}
	return total
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)

	// Duration keeps counting, it does not stop the clock.
	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first)
}

func TestTimerObservesTaskDuration(t *testing.T) {
	before := histogramCount(t, TaskDuration)

	timer := NewTimer()
	timer.ObserveDurationVec(TaskDuration, "backup_site")

	assert.Equal(t, before+1, histogramCount(t, TaskDuration))
}

func TestTimerObservesSSHConnectDuration(t *testing.T) {
	before := histogramCount(t, SSHConnectDuration)

	timer := NewTimer()
	timer.ObserveDuration(SSHConnectDuration)

	assert.Equal(t, before+1, histogramCount(t, SSHConnectDuration))
}

func TestIndependentTimers(t *testing.T) {
	earlier := NewTimer()
	time.Sleep(10 * time.Millisecond)
	later := NewTimer()

	assert.Greater(t, earlier.Duration(), later.Duration())
}
