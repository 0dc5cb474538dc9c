// Package netstatus tracks whether the client believes it has connectivity.
// It stands in for the browser's navigator.onLine flag and online/offline
// events.
package netstatus

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Listener is called on every online/offline transition
type Listener func(online bool)

// Monitor holds the connectivity flag and notifies listeners on transitions
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	nextID    int
	listeners map[int]Listener
}

// NewMonitor creates a monitor that starts online
func NewMonitor() *Monitor {
	return &Monitor{online: true, listeners: make(map[int]Listener)}
}

// Online reports the current connectivity flag
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers fn for transitions and returns an unsubscribe func
func (m *Monitor) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Set records the connectivity flag. Listeners only run when the value
// actually changes.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	if online {
		log.Info().Msg("connectivity restored")
	} else {
		log.Warn().Msg("connectivity lost")
	}
	for _, fn := range fns {
		fn(online)
	}
}

// Prober decides connectivity by dialing a TCP address
type Prober struct {
	Addr    string
	Timeout time.Duration
	Dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

// DefaultProbeAddr is a public resolver. Local connectivity is judged
// apart from the API host so a down backend is not mistaken for offline.
const DefaultProbeAddr = "1.1.1.1:53"

// NewProber dials addr, a host:port, to decide connectivity
func NewProber(addr string) (*Prober, error) {
	if addr == "" {
		addr = DefaultProbeAddr
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("probe address %q: %w", addr, err)
	}
	d := &net.Dialer{}
	return &Prober{Addr: addr, Timeout: 3 * time.Second, Dial: d.DialContext}, nil
}

// Check dials once and reports whether the address answered
func (p *Prober) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	conn, err := p.Dial(ctx, "tcp", p.Addr)
	if err != nil {
		log.Debug().Err(err).Str("addr", p.Addr).Msg("connectivity probe failed")
		return false
	}
	conn.Close()
	return true
}

// Run probes every interval and feeds the result into m until ctx is done
func (p *Prober) Run(ctx context.Context, m *Monitor, interval time.Duration) {
	m.Set(p.Check(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Set(p.Check(ctx))
		}
	}
}
