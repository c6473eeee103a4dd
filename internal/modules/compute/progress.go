package compute

import (
	"sync"
	"time"

	"github.com/argusquant/argus/internal/domain"
)

// Status of a pipeline run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Progress is a point-in-time view of the active run, or of the last
// run when nothing is in flight.
type Progress struct {
	RunID        string           `json:"run_id,omitempty"`
	Kind         domain.Kind      `json:"kind,omitempty"`
	TradeDate    domain.TradeDate `json:"trade_date,omitempty"`
	Status       Status           `json:"status"`
	Total        int              `json:"total"`
	Completed    int              `json:"completed"`
	Failed       int              `json:"failed"`
	CurrentBatch int              `json:"current_batch"`
	TotalBatches int              `json:"total_batches"`
	StartedAt    time.Time        `json:"started_at,omitempty"`
	FinishedAt   time.Time        `json:"finished_at,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// broadcaster fans progress snapshots out to subscribers. Slow readers
// miss intermediate snapshots instead of stalling the pipeline.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan Progress]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Progress]struct{})}
}

// subscribe returns a progress channel and its cancel function. The
// channel closes when cancel runs.
func (b *broadcaster) subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *broadcaster) publish(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- p:
		default:
		}
	}
}
