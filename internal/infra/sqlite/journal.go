package sqlite

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/tutu-network/hotplug/internal/domain"
)

// Journal writes transition events to the database off the controller's
// goroutines. Events arriving while the queue is full are dropped and
// counted.
type Journal struct {
	db      *DB
	log     logr.Logger
	queue   chan domain.HotplugEvent
	dropped atomic.Uint64
}

// NewJournal creates a journal with room for size pending events.
func NewJournal(db *DB, size int, log logr.Logger) *Journal {
	if size < 1 {
		size = 256
	}
	return &Journal{
		db:    db,
		log:   log.WithName("journal"),
		queue: make(chan domain.HotplugEvent, size),
	}
}

// ObserveTick is a no-op; only transitions are journaled.
func (j *Journal) ObserveTick(domain.TickReport) {}

// ObserveEvent queues e without blocking.
func (j *Journal) ObserveEvent(e domain.HotplugEvent) {
	select {
	case j.queue <- e:
	default:
		j.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Run writes queued events until ctx is done, then flushes what is left.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			j.flush()
			return nil
		case e := <-j.queue:
			j.write(context.WithoutCancel(ctx), e)
		}
	}
}

func (j *Journal) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-j.queue:
			j.write(ctx, e)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, e domain.HotplugEvent) {
	if err := j.db.InsertEvent(ctx, e); err != nil {
		j.log.Error(err, "journal event", "id", e.ID, "action", e.Action.String(), "cpu", e.CPU)
	}
}
