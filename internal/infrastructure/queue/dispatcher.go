package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/studyhub/group-requests/internal/api/metrics"
	"github.com/studyhub/group-requests/internal/core/domain"
	"github.com/studyhub/group-requests/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// Dispatcher routes audit events to a fixed set of workers using consistent
// hashing on the request ID, guaranteeing per-request event ordering.
type Dispatcher struct {
	workers []chan domain.RequestEvent
	service ports.EventService
	log     zerolog.Logger

	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

var _ ports.EventPublisher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, service ports.EventService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.RequestEvent, numWorkers),
		service: service,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.RequestEvent, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers record with ctx and exit once
// Stop has closed their channels and they have drained them.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Stop closes the worker channels and waits for pending events to be
// recorded. Events published afterwards are dropped and logged.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Publish enqueues events in order. The call blocks only when a worker's
// buffer is full.
func (d *Dispatcher) Publish(events ...domain.RequestEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.log.Warn().Int("events", len(events)).Msg("dispatcher stopped, events dropped")
		return
	}
	for _, e := range events {
		idx := d.shardIndex(e.RequestID)
		d.workers[idx] <- e
		metrics.EventsQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	}
}

// shardIndex maps a request ID deterministically to a worker index.
func (d *Dispatcher) shardIndex(requestID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(requestID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.RequestEvent) {
	defer d.wg.Done()
	label := strconv.Itoa(id)

	for event := range ch {
		metrics.EventsQueueDepth.WithLabelValues(label).Set(float64(len(ch)))

		start := time.Now()
		if err := d.service.Record(ctx, event); err != nil {
			metrics.EventsErrorsTotal.Inc()
			metrics.EventProcessingDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
			d.log.Error().Err(err).
				Str("request_id", event.RequestID).
				Str("cause", string(event.Cause)).
				Int("worker_id", id).
				Msg("event processing failed")
			continue
		}
		metrics.EventsProcessedTotal.WithLabelValues(string(event.Cause)).Inc()
		metrics.EventProcessingDuration.WithLabelValues(string(event.Cause)).Observe(time.Since(start).Seconds())
	}
}
