package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/farmhand/internal/apiclient"
	"github.com/erauner12/farmhand/internal/auth"
	"github.com/erauner12/farmhand/internal/config"
	"github.com/erauner12/farmhand/internal/events"
	"github.com/erauner12/farmhand/internal/farm"
	"github.com/erauner12/farmhand/internal/i18n"
	"github.com/erauner12/farmhand/internal/netstatus"
	"github.com/erauner12/farmhand/internal/notify"
	"github.com/erauner12/farmhand/internal/resources"
	"github.com/erauner12/farmhand/internal/storage"
	"github.com/erauner12/farmhand/internal/tokenstore"
	"github.com/erauner12/farmhand/internal/uistate"
)

// rootOptions are the persistent flags shared by every command
type rootOptions struct {
	envFile  string
	apiURL   string
	backend  string
	logLevel string
}

// app is the client wired once per invocation
type app struct {
	cfg *config.Config

	store    storage.Store
	registry *prometheus.Registry
	tokens   *tokenstore.Store
	bus      *events.Bus
	network  *netstatus.Monitor
	prober   *netstatus.Prober
	client   *apiclient.Client
	auth     *auth.Service
	farms    *farm.Selection
	notes    *notify.Center
	tr       *i18n.Translator
	ui       *uistate.State
	res      *resources.Client

	closeStore func() error
}

func setupLogging(cfg *config.Config, override string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "farmhand").Logger()

	// Pretty logging for local dev (only when explicitly set to "dev")
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	level := cfg.LogLevel
	if override != "" {
		level = override
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using warn")
		lvl = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// openStore opens the configured state backend
func openStore(cfg *config.Config) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StateBackend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), noop, nil
	case config.BackendSQLite:
		s, err := storage.OpenSQLiteStore(cfg.StatePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := storage.NewFileStore(cfg.StatePath)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	}
}

// newApp loads configuration and wires every client component
func newApp(ctx context.Context, opts rootOptions) (*app, error) {
	cfg, err := config.LoadFile(opts.envFile)
	if err != nil {
		return nil, err
	}
	if opts.apiURL != "" || opts.backend != "" {
		if opts.apiURL != "" {
			cfg.APIBaseURL = opts.apiURL
		}
		if opts.backend != "" {
			cfg.StateBackend = opts.backend
			cfg.StatePath = ""
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	setupLogging(cfg, opts.logLevel)

	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}

	a.store, a.closeStore, err = openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s state: %w", cfg.StateBackend, err)
	}
	log.Debug().Str("backend", cfg.StateBackend).Str("path", cfg.StatePath).Msg("state opened")

	a.tokens = tokenstore.New(a.store, cfg.TokenKey)
	a.bus = events.NewBus()
	a.network = netstatus.NewMonitor()

	a.prober, err = netstatus.NewProber(cfg.ProbeAddr)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("connectivity probe: %w", err)
	}
	a.network.Set(a.prober.Check(ctx))

	a.client, err = apiclient.New(apiclient.Options{
		BaseURL:       cfg.APIBaseURL,
		Timeout:       cfg.RequestTimeout,
		DecisionDelay: cfg.RefreshDecisionDelay,
		Tokens:        a.tokens,
		Connectivity:  a.network,
		Notifier:      a.bus,
		Metrics:       apiclient.NewMetrics(a.registry),
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.tr, err = i18n.New(a.store)
	if err != nil {
		a.close()
		return nil, err
	}

	a.auth = auth.NewService(a.client, a.tokens, a.bus, a.network)
	a.farms = farm.New(farm.Options{
		Store:     a.store,
		API:       a.client,
		FarmKey:   cfg.SelectedFarmKey,
		FarmIDKey: cfg.SelectedFarmIDKey,
	})
	a.notes = notify.NewCenter(a.client, a.tokens)
	a.ui = uistate.New(a.store)
	a.res = resources.NewClient(a.client)
	return a, nil
}

// requireSession loads the profile for the stored token. It fails when no
// user is logged in; transient failures keep the session and are reported.
func (a *app) requireSession(ctx context.Context, w io.Writer) (auth.State, error) {
	if err := a.auth.Init(ctx); err != nil {
		a.reportStatus(w)
	}
	st := a.auth.State()
	if st.Token == "" {
		return st, fmt.Errorf("%s", a.tr.T("auth.not_logged_in"))
	}
	return st, nil
}

// reportStatus prints the offline or server banner, if any
func (a *app) reportStatus(w io.Writer) {
	st := a.auth.State()
	switch {
	case !st.IsOnline:
		fmt.Fprintln(w, a.tr.T("status.offline"))
	case st.ServerError:
		fmt.Fprintln(w, a.tr.T("status.server_error"))
	}
}

// finish resolves a session expiry raised during the command. A CLI has no
// dialog to dismiss, so the expired session is always cleared.
func (a *app) finish(w io.Writer) {
	if a.auth.State().SessionExpired {
		fmt.Fprintln(w, a.tr.T("auth.session_expired"))
		a.auth.HandleSessionExpiredRedirect()
	}
}

func (a *app) close() {
	if a.auth != nil {
		a.auth.Close()
	}
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			log.Warn().Err(err).Msg("failed to close state")
		}
	}
}
