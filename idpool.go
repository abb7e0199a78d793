package pollz

import "sync"

// IDPool keeps a buffer of pre-generated IDs filled by a background goroutine
// so span creation on a poll path does not wait on crypto/rand.
type IDPool struct {
	factory   func() string
	ids       chan string
	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewIDPool creates a pool holding up to capacity IDs made by factory.
func NewIDPool(capacity int, factory func() string) *IDPool {
	pool := &IDPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get returns a buffered ID, or a freshly generated one when the buffer is empty.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

// Len returns the number of buffered IDs.
func (p *IDPool) Len() int {
	return len(p.ids)
}

func (p *IDPool) refill() {
	for {
		id := p.factory()
		select {
		case p.ids <- id:
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the refill goroutine. Get keeps working after Close.
func (p *IDPool) Close() {
	p.closeOnce.Do(func() {
		close(p.stopCh)
	})
}
