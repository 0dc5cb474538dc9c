package apiclient

import (
	"github.com/erauner12/farmhand/internal/events"
)

// TokenSource supplies the bearer token for outgoing requests.
// An empty string means "send no Authorization header".
type TokenSource interface {
	Get() string
}

// Connectivity reports whether the process believes it is online.
// Used only to tell OFFLINE_MODE from NETWORK_ERROR.
type Connectivity interface {
	Online() bool
}

// Notifier receives the session-expired broadcast
type Notifier interface {
	Emit(name string, detail events.Detail)
}

// Observer is told the outcome of every completed call; err is nil on
// success. Observers must not block.
type Observer interface {
	ObserveResult(err error)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(err error)

func (f ObserverFunc) ObserveResult(err error) { f(err) }

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

type noToken struct{}

func (noToken) Get() string { return "" }

// Endpoints on which a 401 means "bad credentials" rather than "session
// lost". Matched by path prefix relative to the base URL.
var authEndpoints = []string{
	"/auth/login",
	"/auth/register",
	"/auth/forgot-password",
	"/auth/reset-password",
	"/auth/change-password",
	"/auth/verify-email",
}

// Endpoints whose 401 broadcasts session expiry immediately
var sessionEndpoints = []string{
	"/auth/profile",
	"/auth/me",
	"/auth/logout",
}
