package mockapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlationId"
	userKey          contextKey = "user"
	sessionKey       contextKey = "session"
)

// CorrelationMiddleware reads X-Correlation-ID (or mints one) and attaches a
// logger carrying it to the request context
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", correlationID)

		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		logger := log.With().Str("correlationId", correlationID).Logger()
		r = r.WithContext(logger.WithContext(ctx))

		next.ServeHTTP(w, r)
	})
}

// CorrelationID retrieves the correlation ID from context
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// requestLogger logs each request and feeds the request metrics
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()

		log.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// faultInjector answers every API request with the configured status while
// an outage is set
func (s *Server) faultInjector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status := int(s.outage.Load()); status != 0 && !strings.HasPrefix(r.URL.Path, "/_mock") && r.URL.Path != "/metrics" {
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth validates the bearer token and its session. Revoked or expired
// sessions get 401 even when the JWT itself still verifies.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.Ctx(r.Context())

		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := s.signer.Parse(raw)
		if err != nil {
			logger.Debug().Err(err).Msg("token rejected")
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		sess, ok := s.sessions.GetSession(claims.ID)
		if !ok || sess.UserID != claims.Subject {
			logger.Debug().Str("sessionId", claims.ID).Msg("session revoked or expired")
			writeError(w, http.StatusUnauthorized, "Session expired")
			return
		}
		user, ok := s.users.Get(claims.Subject)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unknown user")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, sessionKey, sess)
		l := logger.With().Str("userId", user.ID).Logger()
		next.ServeHTTP(w, r.WithContext(l.WithContext(ctx)))
	})
}

// CurrentUser returns the authenticated user, or nil outside RequireAuth
func CurrentUser(ctx context.Context) *User {
	u, _ := ctx.Value(userKey).(*User)
	return u
}

func currentSession(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey).(Session)
	return sess, ok
}
