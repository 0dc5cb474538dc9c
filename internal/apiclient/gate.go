package apiclient

import (
	"sync"
	"time"
)

type gateState int

const (
	gateIdle gateState = iota
	gateAwaitingDecision
)

func (s gateState) String() string {
	if s == gateAwaitingDecision {
		return "awaiting_decision"
	}
	return "idle"
}

// decision is what every waiter of one window receives
type decision int

const (
	decisionReject decision = iota // session lost: fail with the original 401
	decisionReplay                 // credential replaced: re-issue the request
)

// refreshGate serialises 401s from ordinary endpoints behind one decision.
//
// The first 401 moves the gate from Idle to AwaitingDecision and arms a
// timer. Every 401 arriving before the timer fires joins the FIFO queue.
// When the timer fires the decision is computed, the queue is taken and the
// gate returns to Idle in one critical section, so every queued waiter gets
// a decision made after its own 401. decide must not call back into the
// gate. onReject then runs before the waiters are released in enqueue order.
type refreshGate struct {
	mu     sync.Mutex
	state  gateState
	queue  []chan decision
	delay  time.Duration
	decide func(failedToken string) decision

	// token that was rejected by the request which opened the window
	failedToken string

	// onReject runs once per rejected window, outside the lock
	onReject func()

	// onQueue reports the queue length after every change (metrics hook)
	onQueue func(n int)
}

func newRefreshGate(delay time.Duration, decide func(failedToken string) decision, onReject func()) *refreshGate {
	return &refreshGate{delay: delay, decide: decide, onReject: onReject}
}

// join enqueues a waiter whose request was rejected while carrying token.
// The returned channel receives exactly one decision. opened is true when
// this call started the window.
func (g *refreshGate) join(token string) (wait <-chan decision, opened bool) {
	ch := make(chan decision, 1)

	g.mu.Lock()
	g.queue = append(g.queue, ch)
	n := len(g.queue)
	if g.state == gateIdle {
		g.state = gateAwaitingDecision
		g.failedToken = token
		opened = true
		time.AfterFunc(g.delay, g.resolve)
	}
	g.mu.Unlock()

	if g.onQueue != nil {
		g.onQueue(n)
	}
	return ch, opened
}

// resolve runs once per window on the timer goroutine
func (g *refreshGate) resolve() {
	g.mu.Lock()
	d := g.decide(g.failedToken)
	queue := g.queue
	g.queue = nil
	g.state = gateIdle
	g.failedToken = ""
	g.mu.Unlock()

	if d == decisionReject && g.onReject != nil {
		g.onReject()
	}
	if g.onQueue != nil {
		g.onQueue(0)
	}
	for _, ch := range queue {
		ch <- d
	}
}

// snapshot returns the current state and queue length (tests, logging)
func (g *refreshGate) snapshot() (gateState, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, len(g.queue)
}
