package broadcast

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

var (
	ErrDispatcherClosed    = errors.New("dispatcher closed")
	ErrDispatcherSaturated = errors.New("dispatcher saturated")
)

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers        int
	Buffer         int
	HandoffTimeout time.Duration
	PublishTimeout time.Duration
}

// Dispatcher takes publishing off the request path. Events are sharded by
// project so one worker writes each group, keeping per-group FIFO order.
type Dispatcher struct {
	sink    domain.Publisher
	handoff time.Duration
	timeout time.Duration
	logger  *log.Logger

	mu     sync.RWMutex
	closed bool
	shards []chan domain.Event
	wg     sync.WaitGroup
}

func NewDispatcher(sink domain.Publisher, cfg DispatcherConfig, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	perShard := cfg.Buffer / cfg.Workers
	if perShard <= 0 {
		perShard = 1
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	d := &Dispatcher{
		sink:    sink,
		handoff: cfg.HandoffTimeout,
		timeout: cfg.PublishTimeout,
		logger:  logger,
		shards:  make([]chan domain.Event, cfg.Workers),
	}
	for i := range d.shards {
		d.shards[i] = make(chan domain.Event, perShard)
		d.wg.Add(1)
		go d.worker(i, d.shards[i])
	}
	logger.Infof("event dispatcher started, workers: %d, buffer per worker: %d, handoff: %v", cfg.Workers, perShard, cfg.HandoffTimeout)
	return d
}

func (d *Dispatcher) worker(id int, ch <-chan domain.Event) {
	defer d.wg.Done()
	for ev := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sink.Publish(ctx, ev)
		cancel()
		if err != nil {
			d.logger.WithFields(log.Fields{"event": ev.Name, "project": ev.ProjectID, "worker": id}).WithError(err).Error("publish failed")
		}
	}
}

// Publish queues ev for its project's worker. When the queue stays full for
// the handoff timeout the event is dropped; publishing inline would let it
// overtake events already queued for the same group.
func (d *Dispatcher) Publish(ctx context.Context, ev domain.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	ch := d.shards[d.shardFor(ev.ProjectID)]

	select {
	case ch <- ev:
		return nil
	default:
	}
	if d.handoff <= 0 {
		return ErrDispatcherSaturated
	}

	timer := time.NewTimer(d.handoff)
	defer timer.Stop()
	select {
	case ch <- ev:
		return nil
	case <-timer.C:
		return ErrDispatcherSaturated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) shardFor(projectID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(projectID))
	return int(h.Sum32() % uint32(len(d.shards)))
}
