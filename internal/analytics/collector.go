package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/kafka"
)

// Publisher sends a batch of events to the analytics topic.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers prediction events and flushes them to Kafka when the
// batch fills or the flush interval elapses. Events are also recorded on
// an optional local aggregator as they arrive.
type Collector struct {
	publisher     Publisher
	local         *Aggregator
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	maxBuffered   int
	flushInterval time.Duration
	flushing      sync.Mutex
	logger        *slog.Logger
	done          chan struct{}
}

// NewCollector creates a collector. Either sink may be nil.
func NewCollector(publisher Publisher, local *Aggregator, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		local:         local,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		maxBuffered:   batchSize * 10,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. The loop flushes once more on shutdown
// and then closes Done.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.Flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
		"kafka", c.publisher != nil,
	)
}

// Track records an event. It never blocks on Kafka.
func (c *Collector) Track(event PredictionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if c.local != nil {
		c.local.Record(event)
	}
	if c.publisher == nil {
		return
	}

	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{Key: event.Model, Value: event})
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if full {
		go c.Flush(context.Background())
	}
}

// Done is closed when the flush loop has exited.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Buffered returns the number of events awaiting publication.
func (c *Collector) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Flush publishes buffered events. Failed batches are requeued up to
// maxBuffered events; the oldest overflow is dropped.
func (c *Collector) Flush(ctx context.Context) {
	if c.publisher == nil {
		return
	}
	c.flushing.Lock()
	defer c.flushing.Unlock()

	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "batch_size", len(batch), "error", err)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if over := len(c.buffer) - c.maxBuffered; over > 0 {
			c.buffer = c.buffer[over:]
			c.logger.Warn("analytics buffer overflow, events dropped", "dropped", over)
		}
		c.mu.Unlock()
		return
	}
	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
