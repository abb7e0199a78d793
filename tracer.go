package pollz

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Worker pool configuration errors.
var (
	ErrWorkerPoolEnabled = errors.New("worker pool already enabled")
	ErrInvalidWorkers    = errors.New("workers must be > 0")
	ErrInvalidQueueSize  = errors.New("queueSize must be > 0")
)

// SpanHandler is called when a span completes.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Tracer starts spans and dispatches them to handlers when they finish.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	panicHook    func(handlerID uint64, r interface{})
	workers      *workerPool
	traceIDPool  *IDPool
	spanIDPool   *IDPool
	clock        clockz.Clock
	logger       *zap.Logger
	handlersLock sync.RWMutex
	idPoolOnce   sync.Once
	nextID       atomic.Uint64
	droppedSpans atomic.Uint64
}

// New creates a new tracer.
// Uses the real clock and a no-op logger.
func New() *Tracer {
	return &Tracer{
		handlers: make([]handlerEntry, 0),
		clock:    clockz.RealClock,
		logger:   zap.NewNop(),
	}
}

// WithClock returns a new tracer with the specified clock.
// Enables clock injection for deterministic testing.
func (t *Tracer) WithClock(clock clockz.Clock) *Tracer {
	return &Tracer{
		handlers: make([]handlerEntry, 0),
		clock:    clock,
		logger:   t.logger,
	}
}

// WithLogger sets the logger used for handler panics and dropped spans.
// A nil logger disables logging.
func (t *Tracer) WithLogger(logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t.logger = logger
	return t
}

// ensureIDPools initializes ID pools if not already created.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		poolSize := runtime.NumCPU() * 100

		t.traceIDPool = NewIDPool(poolSize, t.newTraceID)
		t.spanIDPool = NewIDPool(poolSize, t.newSpanID)
	})
}

func (t *Tracer) newTraceID() string { return t.randomID(16, time.RFC3339Nano) }
func (t *Tracer) newSpanID() string  { return t.randomID(8, "15:04:05.000000") }

func (t *Tracer) randomID(size int, fallbackLayout string) string {
	bytes := make([]byte, size)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to time-based ID if crypto/rand fails.
		return hex.EncodeToString([]byte(t.clock.Now().Format(fallbackLayout)))
	}
	return hex.EncodeToString(bytes)
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans complete.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

// AddCollector routes every completed span into collector.
func (t *Tracer) AddCollector(collector *Collector) uint64 {
	return t.OnSpanComplete(func(span Span) {
		collector.Collect(&span)
	})
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// HasHandlers reports whether any handler is registered.
func (t *Tracer) HasHandlers() bool {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	return len(t.handlers) > 0
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.panicHook = hook
}

// StartSpan creates a new span and returns it wrapped in an ActiveSpan.
// If the context contains an existing span, the new span will be its child.
// The caller owns the single reference of the returned span.
func (t *Tracer) StartSpan(ctx context.Context, operation Key) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}

	span := &Span{
		Name:      operation,
		StartTime: t.clock.Now(),
		SpanID:    t.generateSpanID(),
	}

	if parent := GetSpan(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = t.generateTraceID()
	}

	active := &ActiveSpan{
		span:   span,
		tracer: t,
	}
	active.refs.Store(1)

	return active.Context(ctx), active
}

// collectSpan hands a finished span to the registered handlers.
func (t *Tracer) collectSpan(span Span) {
	t.executeHandlers(span)
}

// executeHandlers calls all registered handlers with the completed span.
func (t *Tracer) executeHandlers(span Span) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			entry := h
			if workers != nil {
				workers.submit(func() {
					t.safeCall(entry, span)
				})
			} else {
				go t.safeCall(entry, span)
			}
		} else {
			t.safeCall(h, span)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("span handler panicked",
				zap.Uint64("handler_id", entry.id),
				zap.String("span", span.Name),
				zap.Any("panic", r),
			)
			if t.panicHook != nil {
				t.panicHook(entry.id, r)
			}
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	if workers <= 0 {
		return ErrInvalidWorkers
	}
	if queueSize <= 0 {
		return ErrInvalidQueueSize
	}

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.workers != nil {
		return ErrWorkerPoolEnabled
	}

	pool := &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.droppedSpans,
		logger:  t.logger,
	}
	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.run()
	}
	t.workers = pool

	return nil
}

// DroppedSpans returns the number of spans dropped due to full worker queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Close shuts down the tracer gracefully and cleans up resources.
// This should be called when the tracer is no longer needed.
func (t *Tracer) Close() {
	t.handlersLock.Lock()
	t.handlers = nil
	workers := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if workers != nil {
		workers.shutdown()
	}

	// Spans started after Close get IDs generated inline.
	t.idPoolOnce.Do(func() {})
	if t.traceIDPool != nil {
		t.traceIDPool.Close()
	}
	if t.spanIDPool != nil {
		t.spanIDPool.Close()
	}
}

// generateTraceID creates a new trace ID.
func (t *Tracer) generateTraceID() string {
	t.ensureIDPools()
	if t.traceIDPool == nil {
		return t.newTraceID()
	}
	return t.traceIDPool.Get()
}

// generateSpanID creates a new span ID.
func (t *Tracer) generateSpanID() string {
	t.ensureIDPools()
	if t.spanIDPool == nil {
		return t.newSpanID()
	}
	return t.spanIDPool.Get()
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
		w.logger.Warn("span handler queue full, dropping span")
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
