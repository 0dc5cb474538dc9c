// Package auth owns the client session: who is logged in, whether the API
// is reachable, and whether the session has been reported lost.
//
// Policy is fail-open. Transient connectivity and server faults never
// evict an established session; only an invalid credential on the initial
// profile load, a session-expired redirect, or an explicit logout do.
package auth

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/erauner12/farmhand/internal/apiclient"
	"github.com/erauner12/farmhand/internal/domain"
	"github.com/erauner12/farmhand/internal/events"
	"github.com/erauner12/farmhand/internal/netstatus"
)

const profilePath = "/auth/profile"

// API is the subset of apiclient.Client the service needs
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, in, out any) error
	Put(ctx context.Context, path string, in, out any) error
	AddObserver(o apiclient.Observer)
}

// Tokens is the persistent token holder (tokenstore.Store)
type Tokens interface {
	Get() string
	Set(token string) error
	Remove() error
}

// Network is the connectivity signal (netstatus.Monitor)
type Network interface {
	Online() bool
	Subscribe(fn netstatus.Listener) func()
}

// Service is the process-wide auth state holder. Construct one per process.
type Service struct {
	api    API
	tokens Tokens
	bus    *events.Bus

	mu        sync.Mutex
	state     State
	nextID    int
	listeners map[int]func(State)

	profile singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	busSub     events.Subscription
	stopNetSub func()
}

// NewService wires the service to the API client, token store, event bus
// and connectivity monitor. Call Init to load the profile for a stored token.
func NewService(api API, tokens Tokens, bus *events.Bus, network Network) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	token := tokens.Get()
	s := &Service{
		api:       api,
		tokens:    tokens,
		bus:       bus,
		listeners: make(map[int]func(State)),
		ctx:       ctx,
		cancel:    cancel,
		state: State{
			Token:    token,
			Loading:  token != "",
			IsOnline: network == nil || network.Online(),
		},
	}

	if bus != nil {
		s.busSub = bus.On(events.SessionExpired, s.onSessionExpired)
	}
	if network != nil {
		s.stopNetSub = network.Subscribe(s.onConnectivity)
	}
	api.AddObserver(s)
	return s
}

// Close detaches the service from the bus and the monitor and waits for
// background profile loads to finish
func (s *Service) Close() {
	if s.bus != nil {
		s.bus.Off(s.busSub)
	}
	if s.stopNetSub != nil {
		s.stopNetSub()
	}
	s.cancel()
	s.bg.Wait()
}

// State returns a snapshot of the session state
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn to receive a snapshot after every state change
func (s *Service) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// update applies fn under the lock and notifies listeners if it reports a
// change. Listeners run outside the lock.
func (s *Service) update(fn func(st *State) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	snap := s.state.clone()
	fns := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		fns = append(fns, l)
	}
	s.mu.Unlock()

	for _, l := range fns {
		l(snap)
	}
}

// Init resolves the startup state: without a token the session is simply
// logged out, with one the profile is fetched.
func (s *Service) Init(ctx context.Context) error {
	if s.tokens.Get() == "" {
		s.update(func(st *State) bool {
			changed := st.Loading || st.Token != "" || st.User != nil
			st.Loading = false
			st.Token = ""
			st.User = nil
			return changed
		})
		return nil
	}
	return s.LoadProfile(ctx)
}

// LoadProfile fetches the current user. Concurrent callers share one request.
func (s *Service) LoadProfile(ctx context.Context) error {
	_, err, _ := s.profile.Do("profile", func() (any, error) {
		return nil, s.fetchProfile(ctx)
	})
	return err
}

func (s *Service) fetchProfile(ctx context.Context) error {
	token := s.tokens.Get()
	if token == "" {
		s.update(func(st *State) bool {
			changed := st.Loading
			st.Loading = false
			return changed
		})
		return nil
	}

	s.update(func(st *State) bool {
		st.Loading = true
		st.Token = token
		return true
	})

	var raw json.RawMessage
	err := s.api.Get(ctx, profilePath, &raw)

	var user *domain.UserProfile
	if err == nil {
		user, err = domain.DecodeProfile(raw)
	}

	// A logout or new login while the request was in flight wins
	if s.tokens.Get() != token {
		log.Debug().Msg("token changed during profile fetch - discarding result")
		s.update(func(st *State) bool {
			st.Loading = false
			return true
		})
		return err
	}

	if err == nil {
		s.update(func(st *State) bool {
			st.User = user
			st.Loading = false
			st.ServerError = false
			return true
		})
		log.Info().Str("userId", user.ID.String()).Str("role", string(user.Role)).Msg("profile loaded")
		return nil
	}

	s.handleProfileError(err)
	return err
}

// handleProfileError applies the fail-open policy to a failed profile fetch
func (s *Service) handleProfileError(err error) {
	logger := log.With().Err(err).Str("kind", string(apiclient.KindOf(err))).Logger()

	switch {
	case apiclient.IsOffline(err):
		logger.Warn().Msg("profile fetch failed: offline - keeping session")
		s.update(func(st *State) bool {
			st.Loading = false
			st.IsOnline = false
			return true
		})

	case apiclient.IsNetwork(err), apiclient.IsServerFault(err):
		logger.Warn().Msg("profile fetch failed: server unreachable - keeping session")
		s.update(func(st *State) bool {
			st.Loading = false
			st.ServerError = true
			return true
		})

	case apiclient.IsUnauthorized(err):
		s.mu.Lock()
		hadUser := s.state.User != nil
		s.mu.Unlock()

		if hadUser {
			// An established session: the session-expired flow decides
			logger.Warn().Msg("profile fetch unauthorized - awaiting session-expired decision")
			s.update(func(st *State) bool {
				st.Loading = false
				return true
			})
			return
		}
		logger.Warn().Msg("stored token rejected - logging out")
		s.clearSession()

	default:
		// Unrelated failures (bad payload, 404, 429...) do not evict the user
		logger.Warn().Msg("profile fetch failed - keeping session")
		s.update(func(st *State) bool {
			st.Loading = false
			return true
		})
	}
}

// ObserveResult implements apiclient.Observer. It keeps IsOnline and
// ServerError in step with all API traffic, not just auth calls.
func (s *Service) ObserveResult(err error) {
	switch {
	case err == nil:
		s.update(func(st *State) bool {
			if !st.ServerError {
				return false
			}
			st.ServerError = false
			return true
		})
	case apiclient.IsOffline(err):
		s.update(func(st *State) bool {
			if !st.IsOnline {
				return false
			}
			st.IsOnline = false
			return true
		})
	case apiclient.IsNetwork(err), apiclient.IsServerFault(err):
		s.update(func(st *State) bool {
			if st.ServerError {
				return false
			}
			st.ServerError = true
			return true
		})
	}
}

func (s *Service) onConnectivity(online bool) {
	if !online {
		s.update(func(st *State) bool {
			st.IsOnline = false
			return true
		})
		return
	}

	var reload bool
	s.update(func(st *State) bool {
		st.IsOnline = true
		st.ServerError = false
		reload = st.User == nil && s.tokens.Get() != ""
		return true
	})

	if reload {
		log.Info().Msg("back online with a stored token - reloading profile")
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			_ = s.LoadProfile(s.ctx)
		}()
	}
}

func (s *Service) onSessionExpired(_ string, detail events.Detail) {
	if s.tokens.Get() == "" {
		return
	}
	s.update(func(st *State) bool {
		if st.SessionExpired {
			return false
		}
		st.SessionExpired = true
		return true
	})
	log.Warn().Str("message", detail.Message).Msg("session expired")
}

// DismissSessionExpired keeps the user logged in and clears the flag.
// Calling it when the flag is already clear does nothing.
func (s *Service) DismissSessionExpired() {
	s.update(func(st *State) bool {
		if !st.SessionExpired {
			return false
		}
		st.SessionExpired = false
		return true
	})
}

// HandleSessionExpiredRedirect clears the flag and logs out
func (s *Service) HandleSessionExpiredRedirect() {
	s.update(func(st *State) bool {
		if !st.SessionExpired {
			return false
		}
		st.SessionExpired = false
		return true
	})
	s.Logout()
}

// Logout clears the stored token and the user. It is purely client-side
// and always takes effect.
func (s *Service) Logout() {
	s.clearSession()
	log.Info().Msg("logged out")
}

func (s *Service) clearSession() {
	if err := s.tokens.Remove(); err != nil {
		log.Error().Err(err).Msg("failed to remove stored token")
	}
	s.update(func(st *State) bool {
		st.Token = ""
		st.User = nil
		st.Loading = false
		return true
	})
}

// SyncFromStore reconciles with a token written by another process sharing
// the same state file
func (s *Service) SyncFromStore() {
	token := s.tokens.Get()

	s.mu.Lock()
	current := s.state.Token
	s.mu.Unlock()
	if token == current {
		return
	}

	if token == "" {
		log.Info().Msg("token removed by another process - logging out")
		s.update(func(st *State) bool {
			st.Token = ""
			st.User = nil
			st.Loading = false
			return true
		})
		return
	}

	log.Info().Msg("token replaced by another process - reloading profile")
	s.update(func(st *State) bool {
		st.Token = token
		st.User = nil
		return true
	})
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		_ = s.LoadProfile(s.ctx)
	}()
}
