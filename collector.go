package pollz

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// closeTimeout bounds how long Close waits for the drain loop.
const closeTimeout = 100 * time.Millisecond

// Collector buffers completed spans for batch export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	spans        []Span
	spansCh      chan Span
	stopCh       chan struct{}
	done         chan struct{}
	logger       *zap.Logger
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	sendMu       sync.RWMutex // Held by Collect across the closed check and hand-off.
	closeOnce    sync.Once
	closed       atomic.Bool
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:    name,
		spans:   make([]Span, 0, 8),
		spansCh: make(chan Span, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		logger:  zap.NewNop(),
	}
	go c.start()
	return c
}

// SetLogger sets the logger used for drop and shutdown warnings.
func (c *Collector) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.mu.Lock()
	c.logger = logger.With(zap.String("collector", c.name))
	c.mu.Unlock()
}

func (c *Collector) log() *zap.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// start runs the collector's main loop, receiving spans from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining spans before shutdown.
			for {
				select {
				case span := <-c.spansCh:
					c.buffer(span)
				default:
					return
				}
			}
		case span := <-c.spansCh:
			c.buffer(span)
		}
	}
}

// Close stops the collector after draining queued spans.
// Spans collected after Close are dropped.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closed.Store(true)
		c.sendMu.Unlock()

		close(c.stopCh)
		select {
		case <-c.done:
		case <-time.After(closeTimeout):
			c.log().Warn("collector drain timed out", zap.Duration("timeout", closeTimeout))
		}
	})
}

// Collect buffers a copy of span with backpressure protection.
// If the internal channel is full, the span is dropped and the drop counter is incremented.
// In sync mode, spans are buffered directly for deterministic testing.
// Every span passed to Collect is either buffered, drained by Close, or counted as dropped.
func (c *Collector) Collect(span *Span) {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if span == nil || c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	spanCopy := copySpan(span)

	if c.syncMode.Load() {
		c.buffer(spanCopy)
		return
	}

	select {
	case c.spansCh <- spanCopy:
	default:
		c.droppedCount.Add(1)
		c.log().Debug("collector full, dropping span", zap.String("span", span.Name))
	}
}

// buffer appends a span to the internal buffer.
func (c *Collector) buffer(span Span) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) >= cap(c.spans) {
		currentCap := cap(c.spans)
		var newCap int
		if currentCap < 1024 {
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers to avoid excessive memory usage.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		grown := make([]Span, len(c.spans), newCap)
		copy(grown, c.spans)
		c.spans = grown
	}
	c.spans = append(c.spans, span)
}

// Export returns a copy of all buffered spans and clears the internal buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}

	result := make([]Span, len(c.spans))
	for i := range c.spans {
		result[i] = copySpan(&c.spans[i])
	}

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(c.spans) > 256 && len(c.spans) < cap(c.spans)/8 {
		newCap := cap(c.spans) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.spans = make([]Span, 0, newCap)
	} else {
		c.spans = c.spans[:0]
	}

	return result
}

// Count returns the current number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns the total number of spans dropped.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered spans and resets the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spans = c.spans[:0]
	c.droppedCount.Store(0)
}

// ChildrenOf returns the buffered spans whose parent is parentID, without
// clearing the buffer.
func (c *Collector) ChildrenOf(parentID string) []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	var children []Span
	for i := range c.spans {
		if c.spans[i].ParentID == parentID {
			children = append(children, copySpan(&c.spans[i]))
		}
	}
	return children
}

// copySpan deep-copies span so later tag writes cannot reach the copy.
func copySpan(span *Span) Span {
	out := *span
	if span.Tags != nil {
		out.Tags = make(map[Tag]string, len(span.Tags))
		for k, v := range span.Tags {
			out.Tags[k] = v
		}
	}
	return out
}
