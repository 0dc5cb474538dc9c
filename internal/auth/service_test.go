package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erauner12/farmhand/internal/apiclient"
	"github.com/erauner12/farmhand/internal/domain"
	"github.com/erauner12/farmhand/internal/events"
	"github.com/erauner12/farmhand/internal/netstatus"
	"github.com/erauner12/farmhand/internal/storage"
	"github.com/erauner12/farmhand/internal/tokenstore"
)

type harness struct {
	svc     *Service
	client  *apiclient.Client
	tokens  *tokenstore.Store
	bus     *events.Bus
	network *netstatus.Monitor
	server  *httptest.Server

	broadcasts atomic.Int32
}

// newHarness wires the real client, bus, monitor and token store against mux.
// initialToken is stored before the service is constructed.
func newHarness(t *testing.T, mux http.Handler, initialToken string, online bool) *harness {
	t.Helper()

	h := &harness{
		tokens:  tokenstore.New(storage.NewMemoryStore(), ""),
		bus:     events.NewBus(),
		network: netstatus.NewMonitor(),
		server:  httptest.NewServer(mux),
	}
	t.Cleanup(h.server.Close)

	if initialToken != "" {
		if err := h.tokens.Set(initialToken); err != nil {
			t.Fatalf("seed token: %v", err)
		}
	}
	h.network.Set(online)
	h.bus.On(events.SessionExpired, func(string, events.Detail) { h.broadcasts.Add(1) })

	client, err := apiclient.New(apiclient.Options{
		BaseURL:       h.server.URL + "/api",
		Tokens:        h.tokens,
		Connectivity:  h.network,
		Notifier:      h.bus,
		DecisionDelay: 250 * time.Millisecond,
		Timeout:       2 * time.Second,
	})
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	h.client = client
	h.svc = NewService(client, h.tokens, h.bus, h.network)
	t.Cleanup(h.svc.Close)
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// dropConnection makes the client see a transport failure
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(err)
	}
	conn.Close()
}

var ann = map[string]any{"id": 1, "firstName": "Ann", "lastName": "Moyo", "email": "a@b.com", "role": "farmer"}

func TestLogin_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		json.NewDecoder(r.Body).Decode(&creds)
		if creds.Email != "a@b.com" || creds.Password != "pw" {
			t.Errorf("unexpected credentials: %+v", creds)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "T1",
			"user":  map[string]any{"firstName": "Ann"},
			"role":  "farmer",
		})
	})
	h := newHarness(t, mux, "", true)

	res := h.svc.Login(context.Background(), Credentials{Email: "a@b.com", Password: "pw"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	st := h.svc.State()
	if st.User == nil || st.User.Role != domain.RoleFarmer {
		t.Errorf("expected farmer user, got %+v", st.User)
	}
	if st.User.FirstName != "Ann" {
		t.Errorf("unexpected user: %+v", st.User)
	}
	if h.tokens.Get() != "T1" {
		t.Errorf("expected stored token T1, got %q", h.tokens.Get())
	}
	if !st.Authenticated() {
		t.Error("expected authenticated state")
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
	})
	h := newHarness(t, mux, "", true)

	res := h.svc.Login(context.Background(), Credentials{Email: "a@b.com", Password: "wrong"})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Message != "Invalid email or password" {
		t.Errorf("expected server message, got %q", res.Message)
	}
	if h.broadcasts.Load() != 0 {
		t.Error("bad credentials must not broadcast session expiry")
	}
	st := h.svc.State()
	if st.SessionExpired || st.Token != "" || st.User != nil {
		t.Errorf("unexpected state after bad credentials: %+v", st)
	}
}

func TestLogin_Validation(t *testing.T) {
	h := newHarness(t, http.NewServeMux(), "", true)
	res := h.svc.Login(context.Background(), Credentials{Email: "  "})
	if res.Success || res.Message == "" {
		t.Errorf("expected validation failure, got %+v", res)
	}
}

func TestLogin_Offline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		dropConnection(w)
	})
	h := newHarness(t, mux, "", false)

	res := h.svc.Login(context.Background(), Credentials{Email: "a@b.com", Password: "pw"})
	if res.Success {
		t.Fatal("expected failure while offline")
	}
	if res.Message != "You are offline. Please check your internet connection." {
		t.Errorf("expected offline message, got %q", res.Message)
	}
	if h.svc.State().IsOnline {
		t.Error("expected IsOnline=false")
	}
}

func TestLogin_TokenOnlyResponseLoadsProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"token": "T2"})
	})
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer T2" {
			t.Errorf("profile fetched with wrong token: %q", r.Header.Get("Authorization"))
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": ann})
	})
	h := newHarness(t, mux, "", true)

	res := h.svc.Login(context.Background(), Credentials{Email: "a@b.com", Password: "pw"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if u := h.svc.State().User; u == nil || u.Email != "a@b.com" {
		t.Errorf("expected profile to be loaded, got %+v", u)
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var reg Registration
		json.NewDecoder(r.Body).Decode(&reg)
		writeJSON(w, http.StatusCreated, map[string]any{
			"token": "R1",
			"user":  map[string]any{"id": "u-9", "firstName": reg.FirstName, "email": reg.Email},
			"role":  string(reg.Role),
		})
	})
	h := newHarness(t, mux, "", true)

	res := h.svc.Register(context.Background(), Registration{
		FirstName: "Juma", Email: "juma@example.com", Password: "pw", Role: domain.RoleVeterinarian,
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if st := h.svc.State(); st.Role() != domain.RoleVeterinarian || h.tokens.Get() != "R1" {
		t.Errorf("unexpected state: %+v token=%q", st, h.tokens.Get())
	}

	res = h.svc.Register(context.Background(), Registration{Email: "x@y.z", Role: "pirate"})
	if res.Success {
		t.Error("expected unknown role to be rejected client-side")
	}
}

func TestInit_NoToken(t *testing.T) {
	h := newHarness(t, http.NewServeMux(), "", true)
	if err := h.svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	st := h.svc.State()
	if st.Loading || st.Authenticated() {
		t.Errorf("expected idle logged-out state, got %+v", st)
	}
}

func TestInit_LoadsProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ann)
	})
	h := newHarness(t, mux, "T", true)

	if !h.svc.State().Loading {
		t.Error("expected Loading while a stored token awaits its profile")
	}
	if err := h.svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	st := h.svc.State()
	if st.Loading || !st.Authenticated() || st.User.FullName() != "Ann Moyo" {
		t.Errorf("unexpected state: %+v", st)
	}
}

func TestInit_RejectedStoredTokenLogsOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := newHarness(t, mux, "expired", true)

	err := h.svc.Init(context.Background())
	if !apiclient.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	st := h.svc.State()
	if st.Token != "" || st.User != nil || h.tokens.Get() != "" {
		t.Errorf("expected cleared session, got %+v (stored=%q)", st, h.tokens.Get())
	}
}

func TestInit_TransientFailuresPreserveSession(t *testing.T) {
	tests := []struct {
		name          string
		online        bool
		handler       http.HandlerFunc
		wantOnline    bool
		wantServerErr bool
	}{
		{
			name:       "offline",
			online:     false,
			handler:    func(w http.ResponseWriter, r *http.Request) { dropConnection(w) },
			wantOnline: false,
		},
		{
			name:          "network",
			online:        true,
			handler:       func(w http.ResponseWriter, r *http.Request) { dropConnection(w) },
			wantOnline:    true,
			wantServerErr: true,
		},
		{
			name:          "500",
			online:        true,
			handler:       func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) },
			wantOnline:    true,
			wantServerErr: true,
		},
		{
			name:          "503",
			online:        true,
			handler:       func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(503) },
			wantOnline:    true,
			wantServerErr: true,
		},
		{
			name:       "404 is logged and ignored",
			online:     true,
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(404) },
			wantOnline: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/auth/profile", tt.handler)
			h := newHarness(t, mux, "T", tt.online)

			if err := h.svc.Init(context.Background()); err == nil {
				t.Fatal("expected Init to report the failure")
			}

			st := h.svc.State()
			if st.Token != "T" || h.tokens.Get() != "T" {
				t.Errorf("token must survive %s, got state=%q stored=%q", tt.name, st.Token, h.tokens.Get())
			}
			if st.Loading {
				t.Error("Loading should be cleared")
			}
			if st.IsOnline != tt.wantOnline {
				t.Errorf("expected IsOnline=%v, got %v", tt.wantOnline, st.IsOnline)
			}
			if st.ServerError != tt.wantServerErr {
				t.Errorf("expected ServerError=%v, got %v", tt.wantServerErr, st.ServerError)
			}
			if h.broadcasts.Load() != 0 {
				t.Error("transient failures must not broadcast")
			}
		})
	}
}

func TestSessionLossMidSession(t *testing.T) {
	var profileCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		if profileCalls.Add(1) == 1 {
			writeJSON(w, http.StatusOK, ann)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "jwt expired"})
	})
	h := newHarness(t, mux, "T", true)

	if err := h.svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	_ = h.svc.LoadProfile(context.Background())

	st := h.svc.State()
	if !st.SessionExpired {
		t.Fatal("expected SessionExpired after 401 on profile")
	}
	if st.Token != "T" || st.User == nil {
		t.Errorf("token and user must remain until redirect, got %+v", st)
	}
	if h.broadcasts.Load() != 1 {
		t.Errorf("expected 1 broadcast, got %d", h.broadcasts.Load())
	}

	h.svc.HandleSessionExpiredRedirect()

	st = h.svc.State()
	if st.SessionExpired || st.Token != "" || st.User != nil || h.tokens.Get() != "" {
		t.Errorf("expected cleared session after redirect, got %+v", st)
	}
}

func TestDismissSessionExpired(t *testing.T) {
	h := newHarness(t, http.NewServeMux(), "T", true)

	var transitions []bool
	var mu sync.Mutex
	h.svc.Subscribe(func(st State) {
		mu.Lock()
		transitions = append(transitions, st.SessionExpired)
		mu.Unlock()
	})

	// No-op while clear
	h.svc.DismissSessionExpired()
	if len(transitions) != 0 {
		t.Errorf("dismiss on a clear flag should not notify, got %v", transitions)
	}

	h.bus.Emit(events.SessionExpired, events.Detail{Message: "x"})
	h.bus.Emit(events.SessionExpired, events.Detail{Message: "x"})
	if !h.svc.State().SessionExpired {
		t.Fatal("expected SessionExpired")
	}
	if len(transitions) != 1 {
		t.Errorf("second event must not fire again, got %v", transitions)
	}

	h.svc.DismissSessionExpired()
	h.svc.DismissSessionExpired()

	st := h.svc.State()
	if st.SessionExpired {
		t.Error("expected flag cleared")
	}
	if st.Token != "T" || h.tokens.Get() != "T" {
		t.Error("dismiss must keep the session")
	}
	if len(transitions) != 2 {
		t.Errorf("expected exactly 2 notifications, got %v", transitions)
	}
}

func TestSessionExpiredIgnoredWhenLoggedOut(t *testing.T) {
	h := newHarness(t, http.NewServeMux(), "", true)
	h.bus.Emit(events.SessionExpired, events.Detail{})
	if h.svc.State().SessionExpired {
		t.Error("a logged-out session cannot expire")
	}
}

func TestOfflineRecovery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ann)
	})
	h := newHarness(t, mux, "T", false)

	st := h.svc.State()
	if st.IsOnline || st.User != nil || st.Token != "T" {
		t.Fatalf("unexpected starting state: %+v", st)
	}

	h.network.Set(true)
	h.svc.bg.Wait()

	st = h.svc.State()
	if !st.IsOnline {
		t.Error("expected IsOnline=true")
	}
	if st.User == nil || st.User.FirstName != "Ann" {
		t.Errorf("expected profile reloaded, got %+v", st.User)
	}
}

func TestConnectivityEvents(t *testing.T) {
	h := newHarness(t, http.NewServeMux(), "", true)

	h.network.Set(false)
	if h.svc.State().IsOnline {
		t.Error("expected offline")
	}

	h.svc.ObserveResult(&apiclient.Error{Kind: apiclient.KindServer})
	if !h.svc.State().ServerError {
		t.Fatal("expected ServerError")
	}

	h.network.Set(true)
	st := h.svc.State()
	if !st.IsOnline || st.ServerError {
		t.Errorf("coming back online should clear ServerError, got %+v", st)
	}
	h.svc.bg.Wait()
}

func TestServerErrorsOnOtherCalls(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ann)
	})
	mux.HandleFunc("GET /api/farms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, int(status.Load()), []any{})
	})
	h := newHarness(t, mux, "T", true)
	if err := h.svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	for _, code := range []int{http.StatusInternalServerError, http.StatusServiceUnavailable} {
		status.Store(int32(code))
		_ = h.client.Get(context.Background(), "/farms", nil)

		st := h.svc.State()
		if !st.ServerError {
			t.Errorf("%d: expected ServerError", code)
		}
		if st.Token != "T" || st.User == nil {
			t.Errorf("%d: session must survive, got %+v", code, st)
		}

		status.Store(http.StatusOK)
		if err := h.client.Get(context.Background(), "/farms", nil); err != nil {
			t.Fatalf("Get: %v", err)
		}
		if h.svc.State().ServerError {
			t.Errorf("%d: a successful request should clear ServerError", code)
		}
	}
}

func TestConcurrent401StormSetsFlagOnce(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ann)
	})
	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := newHarness(t, mux, "T", true)
	if err := h.svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var flips atomic.Int32
	h.svc.Subscribe(func(st State) {
		if st.SessionExpired {
			flips.Add(1)
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.client.Get(context.Background(), "/tasks", nil); !apiclient.IsUnauthorized(err) {
				t.Errorf("expected rejection, got %v", err)
			}
		}()
	}
	wg.Wait()

	if h.broadcasts.Load() != 1 {
		t.Errorf("expected 1 broadcast, got %d", h.broadcasts.Load())
	}
	if flips.Load() != 1 {
		t.Errorf("expected SessionExpired to be set once, got %d", flips.Load())
	}
	if st := h.svc.State(); st.Token != "T" || st.User == nil {
		t.Errorf("session must remain until redirect or dismiss, got %+v", st)
	}
}

func TestPasswordOperations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/forgot-password", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Check your inbox"})
	})
	mux.HandleFunc("POST /api/auth/reset-password", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Reset token expired"})
	})
	mux.HandleFunc("PUT /api/auth/change-password", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Current password is incorrect"})
	})
	h := newHarness(t, mux, "T", true)
	ctx := context.Background()

	if res := h.svc.RequestPasswordReset(ctx, "a@b.com"); !res.Success || res.Message != "Check your inbox" {
		t.Errorf("unexpected forgot-password result: %+v", res)
	}
	if res := h.svc.ResetPassword(ctx, "tok", "new"); res.Success || res.Message != "Reset token expired" {
		t.Errorf("unexpected reset-password result: %+v", res)
	}
	if res := h.svc.ChangePassword(ctx, "bad", "new"); res.Success || res.Message != "Current password is incorrect" {
		t.Errorf("unexpected change-password result: %+v", res)
	}

	if h.broadcasts.Load() != 0 || h.svc.State().SessionExpired {
		t.Error("a wrong current password must not end the session")
	}
	if h.tokens.Get() != "T" {
		t.Error("token must be preserved")
	}
}

func TestUpdateProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ann)
	})
	mux.HandleFunc("PUT /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		var upd ProfileUpdate
		json.NewDecoder(r.Body).Decode(&upd)
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"phone": upd.Phone, "preferredLanguage": upd.PreferredLanguage}})
	})
	h := newHarness(t, mux, "T", true)
	if err := h.svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	res := h.svc.UpdateProfile(context.Background(), ProfileUpdate{Phone: "+254700000000", PreferredLanguage: "sw"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	u := h.svc.State().User
	if u.Phone != "+254700000000" || u.PreferredLanguage != "sw" || u.FirstName != "Ann" || u.Role != domain.RoleFarmer {
		t.Errorf("unexpected merged profile: %+v", u)
	}
}

func TestLogout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ann)
	})
	h := newHarness(t, mux, "T", true)
	_ = h.svc.Init(context.Background())

	h.svc.Logout()

	st := h.svc.State()
	if st.Token != "" || st.User != nil || h.tokens.Get() != "" {
		t.Errorf("expected logged out, got %+v", st)
	}
}

func TestSyncFromStore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ann)
	})
	h := newHarness(t, mux, "T", true)
	_ = h.svc.Init(context.Background())

	// Nothing changed
	h.svc.SyncFromStore()
	if !h.svc.State().Authenticated() {
		t.Fatal("expected still authenticated")
	}

	// Another process logs out
	_ = h.tokens.Remove()
	h.svc.SyncFromStore()
	if st := h.svc.State(); st.Token != "" || st.User != nil {
		t.Errorf("expected logged out after external removal, got %+v", st)
	}

	// Another process logs in
	_ = h.tokens.Set("T9")
	h.svc.SyncFromStore()
	h.svc.bg.Wait()
	if st := h.svc.State(); st.Token != "T9" || st.User == nil {
		t.Errorf("expected profile for the new token, got %+v", st)
	}
}

func TestStateSnapshotsAreCopies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ann)
	})
	h := newHarness(t, mux, "T", true)
	_ = h.svc.Init(context.Background())

	st := h.svc.State()
	st.User.FirstName = "Mallory"
	if h.svc.State().User.FirstName != "Ann" {
		t.Error("mutating a snapshot must not change the service state")
	}
}
