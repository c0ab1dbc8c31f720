package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()

	initial := tr.Snapshot()
	assert.False(t, initial.Running)
	assert.Equal(t, 0, initial.Pct)

	tr.StartScan(200)
	started := tr.Snapshot()
	assert.True(t, started.Running)
	assert.Equal(t, "starting", started.Phase)
	assert.Equal(t, 200, started.Total)
	assert.NotEmpty(t, started.StartedAt)

	tr.UpdateScan("fetching_data", 50, "APLAPOLLO", "Fetching fundamentals...")
	mid := tr.Snapshot()
	assert.True(t, mid.Running)
	assert.Equal(t, "fetching_data", mid.Phase)
	assert.Equal(t, 50, mid.Current)
	assert.Equal(t, "APLAPOLLO", mid.Symbol)
	assert.Equal(t, 25, mid.Pct)

	tr.FinishScan("Done")
	done := tr.Snapshot()
	assert.False(t, done.Running)
	assert.Equal(t, "done", done.Phase)
	assert.Equal(t, 200, done.Current)
	assert.Equal(t, 100, done.Pct)
	assert.Equal(t, "Done", done.Message)
}

func TestTrackerPctGuardsZeroTotal(t *testing.T) {
	tr := NewTracker()
	tr.StartScan(0)
	tr.UpdateScan("scoring", 0, "", "")
	assert.Equal(t, 0, tr.Snapshot().Pct)
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	tr.StartScan(1000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.UpdateScan("fetching_data", n*100+j, "SYM", "msg")
				_ = tr.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	got := tr.Snapshot()
	assert.True(t, got.Running)
	assert.Equal(t, "fetching_data", got.Phase)
}
