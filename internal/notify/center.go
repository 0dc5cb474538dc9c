// Package notify keeps the unread notification count current by polling the
// API on a fixed interval while a user is logged in.
package notify

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/farmhand/internal/domain"
)

// DefaultInterval is the polling period
const DefaultInterval = 30 * time.Second

// API is the subset of apiclient.Client the center uses
type API interface {
	Get(ctx context.Context, path string, out any) error
	Put(ctx context.Context, path string, in, out any) error
}

// Session reports whether polling should run
type Session interface {
	IsAuthenticated() bool
}

// Center holds the unread count
type Center struct {
	api     API
	session Session

	mu        sync.RWMutex
	unread    int
	listeners []func(count int)
}

// NewCenter creates a center. session gates polling; a nil session polls always.
func NewCenter(api API, session Session) *Center {
	return &Center{api: api, session: session}
}

// UnreadCount returns the last known unread count
func (c *Center) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread
}

// OnChange registers fn to receive the count whenever it changes
func (c *Center) OnChange(fn func(count int)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Center) setUnread(n int) {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	if c.unread == n {
		c.mu.Unlock()
		return
	}
	c.unread = n
	fns := make([]func(int), len(c.listeners))
	copy(fns, c.listeners)
	c.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

// RefreshUnreadCount fetches the unread count
func (c *Center) RefreshUnreadCount(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := c.api.Get(ctx, "/notifications/unread-count", &raw); err != nil {
		return c.UnreadCount(), err
	}
	n, err := decodeCount(raw)
	if err != nil {
		return c.UnreadCount(), err
	}
	c.setUnread(n)
	return n, nil
}

// decodeCount accepts {"count": n}, {"unreadCount": n} or a bare number
func decodeCount(b []byte) (int, error) {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		return n, nil
	}
	var body struct {
		Count       int  `json:"count"`
		UnreadCount *int `json:"unreadCount"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return 0, err
	}
	if body.UnreadCount != nil {
		return *body.UnreadCount, nil
	}
	return body.Count, nil
}

// List returns the user's notifications, newest first as the server orders them
func (c *Center) List(ctx context.Context) ([]domain.Notification, error) {
	var raw json.RawMessage
	if err := c.api.Get(ctx, "/notifications", &raw); err != nil {
		return nil, err
	}
	items, err := domain.DecodeList[domain.Notification](raw, "notifications")
	if err != nil {
		return nil, err
	}

	unread := 0
	for _, n := range items {
		if !n.IsRead {
			unread++
		}
	}
	c.setUnread(unread)
	return items, nil
}

// MarkAsRead marks one notification read and decrements the count
func (c *Center) MarkAsRead(ctx context.Context, id domain.ID) error {
	if err := c.api.Put(ctx, "/notifications/"+url.PathEscape(id.String())+"/read", nil, nil); err != nil {
		return err
	}
	c.setUnread(c.UnreadCount() - 1)
	return nil
}

// MarkAllAsRead marks everything read
func (c *Center) MarkAllAsRead(ctx context.Context) error {
	if err := c.api.Put(ctx, "/notifications/read-all", nil, nil); err != nil {
		return err
	}
	c.setUnread(0)
	return nil
}

// Poll refreshes the unread count immediately and then every interval until
// ctx is done. Ticks are skipped while logged out and errors are logged only.
func (c *Center) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	c.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Center) tick(ctx context.Context) {
	if c.session != nil && !c.session.IsAuthenticated() {
		c.setUnread(0)
		return
	}
	if _, err := c.RefreshUnreadCount(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("failed to refresh unread notifications")
	}
}
