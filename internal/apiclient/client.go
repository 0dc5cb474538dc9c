// Package apiclient is the single HTTP client every screen and service uses
// to reach the farm platform API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/farmhand/internal/events"
)

const (
	// DefaultTimeout bounds every request
	DefaultTimeout = 30 * time.Second

	// DefaultDecisionDelay is how long the refresh gate collects 401s
	// before deciding the session is lost
	DefaultDecisionDelay = 1 * time.Second

	maxErrorBody = 1 << 20
)

// Options configures a Client. Only BaseURL is required.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	DecisionDelay time.Duration
	Tokens        TokenSource
	Connectivity  Connectivity
	Notifier      Notifier
	Metrics       *Metrics

	// HTTPClient overrides the transport; its Timeout is replaced by Timeout
	HTTPClient *http.Client
}

// Client wraps http.Client with authentication and response classification
// Automatically injects:
// - Authorization: Bearer <token> (when a token is stored)
// - X-Correlation-ID: <uuid>
//
// Classifies failures into *Error kinds:
// - no response: OFFLINE_MODE or NETWORK_ERROR
// - 401 on auth endpoints: returned as-is
// - 401 on profile/logout: session-expired broadcast
// - 401 elsewhere: refresh gate, one broadcast per loss episode
// - 403/500/503: ACCESS_DENIED, SERVER_ERROR, SERVICE_UNAVAILABLE
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	conn       Connectivity
	notifier   Notifier
	metrics    *Metrics
	gate       *refreshGate

	mu        sync.RWMutex
	observers []Observer
}

// New creates a client for the API rooted at opts.BaseURL
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	delay := opts.DecisionDelay
	if delay <= 0 {
		delay = DefaultDecisionDelay
	}

	hc := &http.Client{}
	if opts.HTTPClient != nil {
		clone := *opts.HTTPClient
		hc = &clone
	}
	hc.Timeout = timeout

	c := &Client{
		baseURL:    base,
		httpClient: hc,
		tokens:     opts.Tokens,
		conn:       opts.Connectivity,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
	}
	if c.tokens == nil {
		c.tokens = noToken{}
	}
	if c.conn == nil {
		c.conn = alwaysOnline{}
	}
	c.gate = newRefreshGate(delay, c.decide, c.broadcastSessionExpired)
	c.gate.onQueue = c.metrics.setQueued
	return c, nil
}

// BaseURL returns the configured API root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// AddObserver registers o to be told the outcome of every call
func (c *Client) AddObserver(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

// NewRequest builds a request for path relative to the base URL.
// A non-nil body is JSON-encoded.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do executes req. It returns the response only for 2xx statuses; every
// other outcome is an *Error. The caller must close the response body.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	correlationID := uuid.New().String()

	logger := log.With().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("correlationId", correlationID).
		Logger()

	resp, err := c.doAttempt(ctx, req, &logger, correlationID, 0)
	c.observe(err)
	return resp, err
}

// Get issues GET path and decodes the JSON response into out (if non-nil)
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, out)
}

// Post issues POST path with in as the JSON body
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, http.MethodPost, path, in, out)
}

// Put issues PUT path with in as the JSON body
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, http.MethodPut, path, in, out)
}

// Patch issues PATCH path with in as the JSON body
func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, http.MethodPatch, path, in, out)
}

// Delete issues DELETE path
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	req, err := c.NewRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// doAttempt sends one attempt and classifies the outcome.
// attempt is 0 for the original call and 1 for a replay after the gate.
func (c *Client) doAttempt(ctx context.Context, req *http.Request, logger *zerolog.Logger, correlationID string, attempt int) (*http.Response, error) {
	reqClone, err := cloneRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to clone request: %w", err)
	}

	reqClone.Header.Set("X-Correlation-ID", correlationID)

	// Read the token fresh on each attempt so a replay picks up a new login
	token := c.tokens.Get()
	if token != "" {
		reqClone.Header.Set("Authorization", "Bearer "+token)
	}

	path := c.relativePath(req.URL)

	start := time.Now()
	resp, err := c.httpClient.Do(reqClone)
	duration := time.Since(start)
	c.metrics.observeAttempt(duration)

	if err != nil {
		return nil, c.classifyTransport(ctx, req.Method, path, err, logger, duration)
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Int("attempt", attempt).
		Msg("HTTP request completed")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	apiErr := classifyStatus(req.Method, path, resp, body)

	if resp.StatusCode == http.StatusUnauthorized {
		return c.handleUnauthorized(ctx, req, apiErr, token, logger, correlationID, attempt)
	}

	logger.Warn().
		Int("status", resp.StatusCode).
		Str("kind", string(apiErr.Kind)).
		Msg("request rejected")
	return nil, apiErr
}

// handleUnauthorized applies the 401 policy for path
func (c *Client) handleUnauthorized(ctx context.Context, req *http.Request, apiErr *Error, token string, logger *zerolog.Logger, correlationID string, attempt int) (*http.Response, error) {
	switch {
	case matchesAny(apiErr.Path, authEndpoints):
		// Bad credentials, not a lost session
		logger.Debug().Msg("401 on auth endpoint - returning to caller")
		return nil, apiErr

	case attempt > 0:
		logger.Warn().Msg("401 Unauthorized after replay - giving up")
		return nil, apiErr

	case matchesAny(apiErr.Path, sessionEndpoints):
		logger.Warn().Msg("401 on session endpoint - broadcasting session expiry")
		c.broadcastSessionExpired()
		return nil, apiErr
	}

	wait, opened := c.gate.join(token)
	if opened {
		logger.Warn().Msg("401 Unauthorized - awaiting session decision")
	} else {
		logger.Debug().Msg("401 Unauthorized - queued behind pending session decision")
	}

	select {
	case d := <-wait:
		if d == decisionReplay {
			logger.Info().Msg("credential replaced - replaying request")
			return c.doAttempt(ctx, req, logger, correlationID, attempt+1)
		}
		return nil, apiErr
	case <-ctx.Done():
		return nil, &Error{
			Kind:    KindCanceled,
			Method:  apiErr.Method,
			Path:    apiErr.Path,
			Message: "request canceled while awaiting session decision",
			Err:     ctx.Err(),
		}
	}
}

// decide runs once per gate window. A token stored since the failure means
// the user logged in again, so queued requests may be replayed.
func (c *Client) decide(failedToken string) decision {
	current := c.tokens.Get()
	if current != "" && current != failedToken {
		log.Info().Msg("new credential stored during session decision - replaying queued requests")
		return decisionReplay
	}
	return decisionReject
}

func (c *Client) broadcastSessionExpired() {
	c.metrics.incBroadcast()
	if c.notifier == nil {
		return
	}
	c.notifier.Emit(events.SessionExpired, events.Detail{Message: events.DefaultSessionExpiredMessage})
}

func (c *Client) classifyTransport(ctx context.Context, method, path string, err error, logger *zerolog.Logger, duration time.Duration) *Error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logger.Debug().Err(err).Msg("request canceled by caller")
		return &Error{Kind: KindCanceled, Method: method, Path: path, Message: "request canceled", Err: err}
	}

	apiErr := &Error{Method: method, Path: path, Err: err}
	if !c.conn.Online() {
		apiErr.Kind = KindOffline
		apiErr.Message = msgOffline
	} else {
		apiErr.Kind = KindNetwork
		apiErr.Message = msgNetwork
	}
	logger.Error().Err(err).Dur("duration", duration).Str("kind", string(apiErr.Kind)).Msg("HTTP request failed")
	return apiErr
}

func (c *Client) observe(err error) {
	c.metrics.observeResult(err)
	if KindOf(err) == KindCanceled {
		return
	}

	c.mu.RLock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.mu.RUnlock()

	for _, o := range observers {
		o.ObserveResult(err)
	}
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL.String() + "/" + strings.TrimLeft(path, "/")
}

// relativePath strips the base path so endpoint rules match regardless of
// where the API is mounted
func (c *Client) relativePath(u *url.URL) string {
	p := u.Path
	if base := c.baseURL.Path; base != "" && strings.HasPrefix(p, base) {
		p = strings.TrimPrefix(p, base)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func matchesAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// cloneRequest creates a copy of an HTTP request for replay
// Preserves the request body by reading and restoring it
func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	}
	reqClone, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}

	for k, v := range req.Header {
		if k == "Authorization" {
			continue // re-injected per attempt
		}
		reqClone.Header[k] = v
	}

	return reqClone, nil
}
