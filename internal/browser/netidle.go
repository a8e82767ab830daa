package browser

import (
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// idleWindow is how long the network must stay quiet for networkidle.
const idleWindow = 500 * time.Millisecond

// inflightTracker counts outstanding page requests from Network domain events.
type inflightTracker struct {
	mu         sync.Mutex
	inflight   map[network.RequestID]struct{}
	lastChange time.Time
	now        func() time.Time
}

func newInflightTracker() *inflightTracker {
	return &inflightTracker{
		inflight:   make(map[network.RequestID]struct{}),
		lastChange: time.Now(),
		now:        time.Now,
	}
}

func (t *inflightTracker) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.start(e.RequestID)
	case *network.EventLoadingFinished:
		t.finish(e.RequestID)
	case *network.EventLoadingFailed:
		t.finish(e.RequestID)
	}
}

func (t *inflightTracker) start(id network.RequestID) {
	t.mu.Lock()
	t.inflight[id] = struct{}{}
	t.lastChange = t.now()
	t.mu.Unlock()
}

func (t *inflightTracker) finish(id network.RequestID) {
	t.mu.Lock()
	if _, ok := t.inflight[id]; ok {
		delete(t.inflight, id)
		t.lastChange = t.now()
	}
	t.mu.Unlock()
}

// reset forgets every request, used before a new navigation.
func (t *inflightTracker) reset() {
	t.mu.Lock()
	t.inflight = make(map[network.RequestID]struct{})
	t.lastChange = t.now()
	t.mu.Unlock()
}

// idle reports whether nothing has been in flight for at least window.
func (t *inflightTracker) idle(window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && t.now().Sub(t.lastChange) >= window
}
