// Package mockapi is an in-memory stand-in for the farm platform API. It
// speaks the same routes and status codes as the real backend so the client
// can be exercised locally, including session revocation and outages.
package mockapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/farmhand/internal/domain"
)

// Options configures a Server
type Options struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
	// Registry receives the server metrics; a fresh one is used when nil
	Registry *prometheus.Registry
}

type serverMetrics struct {
	requests *prometheus.CounterVec
	logins   *prometheus.CounterVec
}

// Server holds the mock backend state
type Server struct {
	users    *UserStore
	sessions *SessionStore
	records  *RecordStore
	signer   *Signer
	registry *prometheus.Registry
	metrics  serverMetrics

	// outage, when non-zero, is the status every API request gets
	outage atomic.Int32
}

// Collections served by the generic record handlers, as mounted under the API root
var Collections = []string{
	"livestock/animals",
	"workers",
	"tasks",
	"feeding-schedules",
	"health-records",
	"vaccinations",
	"treatments",
	"loans",
}

func New(opts Options) (*Server, error) {
	signer, err := NewSigner(opts.JWTSecret)
	if err != nil {
		return nil, err
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		users:    NewUserStore(opts.BcryptCost),
		sessions: NewSessionStore(opts.TokenTTL),
		records:  NewRecordStore(),
		signer:   signer,
		registry: reg,
		metrics: serverMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farmhand",
				Subsystem: "mockapi",
				Name:      "requests_total",
				Help:      "API requests by method, route and status.",
			}, []string{"method", "route", "status"}),
			logins: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farmhand",
				Subsystem: "mockapi",
				Name:      "logins_total",
				Help:      "Login attempts by result.",
			}, []string{"result"}),
		},
	}
	if err := reg.Register(s.metrics.requests); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	if err := reg.Register(s.metrics.logins); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return s, nil
}

// Users exposes the account store for seeding
func (s *Server) Users() *UserStore { return s.users }

// Sessions exposes the session store so tests can revoke sessions
func (s *Server) Sessions() *SessionStore { return s.sessions }

// Records exposes the generic record store for seeding
func (s *Server) Records() *RecordStore { return s.records }

// SetOutage makes every API request answer with status; 0 clears it
func (s *Server) SetOutage(status int) {
	s.outage.Store(int32(status))
}

// Routes builds the HTTP handler. The API is mounted under /api.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(CorrelationMiddleware)
	r.Use(s.requestLogger)
	r.Use(s.faultInjector)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/_mock", func(r chi.Router) {
		r.Post("/outage", s.handleOutage)
		r.Post("/sessions/revoke", s.handleRevokeAll)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.Login)
			r.Post("/register", s.Register)
			r.Post("/forgot-password", s.ForgotPassword)
			r.Post("/reset-password", s.ResetPassword)
			r.Post("/verify-email", s.VerifyEmail)

			r.Group(func(r chi.Router) {
				r.Use(s.RequireAuth)
				r.Get("/profile", s.GetProfile)
				r.Put("/profile", s.UpdateProfile)
				r.Get("/me", s.GetProfile)
				r.Put("/change-password", s.ChangePassword)
				r.Post("/logout", s.Logout)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)

			r.Get("/farms", s.ListFarms)
			r.Post("/farms", s.CreateFarm)
			r.Get("/farms/{id}", s.GetFarm)
			r.Put("/farms/{id}", s.UpdateFarm)
			r.Delete("/farms/{id}", s.DeleteFarm)

			r.Get("/notifications", s.ListNotifications)
			r.Get("/notifications/unread-count", s.UnreadCount)
			r.Put("/notifications/read-all", s.MarkAllRead)
			r.Put("/notifications/{id}/read", s.MarkRead)

			for _, c := range Collections {
				s.mountCollection(r, c)
			}
		})
	})

	return r
}

func (s *Server) handleOutage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status int `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Status != 0 && (req.Status < 400 || req.Status > 599) {
		writeError(w, http.StatusBadRequest, "status must be 0 or 4xx/5xx")
		return
	}
	s.SetOutage(req.Status)
	log.Ctx(r.Context()).Warn().Int("status", req.Status).Msg("outage set")
	writeJSON(w, http.StatusOK, map[string]int{"status": req.Status})
}

func (s *Server) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	n := s.sessions.DeleteAll()
	log.Ctx(r.Context()).Warn().Int("revoked", n).Msg("all sessions revoked")
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

// Seed creates one demo account per role, a farm and a few notifications
// for the farmer. Every account uses password.
func (s *Server) Seed(password string) error {
	var farmer *User
	for _, role := range domain.Roles {
		u, err := s.users.Create(User{
			FirstName:     "Demo",
			LastName:      string(role),
			Email:         string(role) + "@farmhand.local",
			Role:          string(role),
			EmailVerified: true,
		}, password)
		if err != nil {
			return fmt.Errorf("seed %s: %w", role, err)
		}
		if role == domain.RoleFarmer {
			farmer = u
		}
	}

	farm := s.records.Create(farmsCollection, Record{
		"name":     "Green Valley",
		"location": "Nakuru",
		"size":     42.0,
		"farmType": "mixed",
		"ownerId":  farmer.ID,
	})
	s.records.Create("livestock/animals", Record{"farmId": farm.id(), "tagNumber": "GV-001", "species": "cattle"})
	s.records.Create("tasks", Record{"farmId": farm.id(), "title": "Repair fence", "status": "pending"})

	for _, title := range []string{"Vaccination due", "Feed stock low"} {
		s.records.Create(notificationsCollection, Record{
			"userId":  farmer.ID,
			"title":   title,
			"message": title + " on Green Valley",
			"type":    "reminder",
			"isRead":  false,
		})
	}
	log.Info().Int("users", len(domain.Roles)).Msg("mock data seeded")
	return nil
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {"message": ...} error body the client reads
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
