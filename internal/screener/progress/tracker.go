package progress

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Status is a point-in-time copy of the scan progress, safe to hand to the
// dashboard while a scan keeps mutating the tracker.
type Status struct {
	Running   bool   `json:"running"`
	Phase     string `json:"phase"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Symbol    string `json:"symbol"`
	StartedAt string `json:"started_at"`
	Message   string `json:"message"`
	Pct       int    `json:"pct"`
}

// Tracker is a push-only status channel updated by the active scan and
// polled concurrently by the HTTP layer.
type Tracker interface {
	StartScan(total int)
	UpdateScan(phase string, current int, symbol, message string)
	FinishScan(message string)
	Snapshot() Status
}

// NewTracker creates a mutex-guarded tracker.
func NewTracker() Tracker {
	return &tracker{}
}

type tracker struct {
	mu        sync.Mutex
	running   bool
	phase     string
	current   int
	total     int
	symbol    string
	startedAt string
	message   string
}

func (t *tracker) StartScan(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.phase = "starting"
	t.current = 0
	t.total = total
	t.symbol = ""
	t.startedAt = time.Now().UTC().Format(time.RFC3339)
	t.message = fmt.Sprintf("Starting scan of %d symbols...", total)
}

func (t *tracker) UpdateScan(phase string, current int, symbol, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
	t.current = current
	t.symbol = symbol
	t.message = message
}

func (t *tracker) FinishScan(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.phase = "done"
	t.current = t.total
	t.message = message
}

func (t *tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.total
	if total < 1 {
		total = 1
	}
	return Status{
		Running:   t.running,
		Phase:     t.phase,
		Current:   t.current,
		Total:     t.total,
		Symbol:    t.symbol,
		StartedAt: t.startedAt,
		Message:   t.message,
		Pct:       int(math.Round(float64(t.current) / float64(total) * 100)),
	}
}
