package mockapi_test

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erauner12/farmhand/internal/apiclient"
	"github.com/erauner12/farmhand/internal/auth"
	"github.com/erauner12/farmhand/internal/domain"
	"github.com/erauner12/farmhand/internal/events"
	"github.com/erauner12/farmhand/internal/farm"
	"github.com/erauner12/farmhand/internal/mockapi"
	"github.com/erauner12/farmhand/internal/netstatus"
	"github.com/erauner12/farmhand/internal/notify"
	"github.com/erauner12/farmhand/internal/resources"
	"github.com/erauner12/farmhand/internal/storage"
	"github.com/erauner12/farmhand/internal/tokenstore"
)

type stack struct {
	mock    *mockapi.Server
	store   *storage.MemoryStore
	tokens  *tokenstore.Store
	bus     *events.Bus
	client  *apiclient.Client
	svc     *auth.Service
	network *netstatus.Monitor
}

// newStack wires the client side the way cmd/farmhand does, against a
// seeded mock backend
func newStack(t *testing.T) *stack {
	t.Helper()
	mock, err := mockapi.New(mockapi.Options{JWTSecret: "it-secret", TokenTTL: time.Hour, BcryptCost: 4})
	if err != nil {
		t.Fatalf("mockapi.New: %v", err)
	}
	if err := mock.Seed("password"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	srv := httptest.NewServer(mock.Routes())
	t.Cleanup(srv.Close)

	st := &stack{
		mock:    mock,
		store:   storage.NewMemoryStore(),
		bus:     events.NewBus(),
		network: netstatus.NewMonitor(),
	}
	st.tokens = tokenstore.New(st.store, "")
	st.client, err = apiclient.New(apiclient.Options{
		BaseURL:       srv.URL + "/api",
		Tokens:        st.tokens,
		Connectivity:  st.network,
		Notifier:      st.bus,
		DecisionDelay: 200 * time.Millisecond,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	st.svc = auth.NewService(st.client, st.tokens, st.bus, st.network)
	t.Cleanup(st.svc.Close)
	return st
}

func TestEndToEnd_LoginBrowseAndLoseSession(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	res := st.svc.Login(ctx, auth.Credentials{Email: "farmer@farmhand.local", Password: "password"})
	if !res.Success {
		t.Fatalf("login failed: %s", res.Message)
	}
	state := st.svc.State()
	if !state.Authenticated() || state.Role() != domain.RoleFarmer {
		t.Fatalf("unexpected state after login: %+v", state)
	}

	rc := resources.NewClient(st.client)
	farms, err := rc.Farms.List(ctx, nil)
	if err != nil {
		t.Fatalf("list farms: %v", err)
	}
	if len(farms) != 1 || farms[0].Name != "Green Valley" {
		t.Fatalf("unexpected farms: %+v", farms)
	}

	sel := farm.New(farm.Options{Store: st.store, API: st.client})
	if err := sel.SelectFarm(farms[0]); err != nil {
		t.Fatalf("select farm: %v", err)
	}
	refreshed, err := sel.Refresh(ctx)
	if err != nil || refreshed.ID != farms[0].ID {
		t.Fatalf("refresh farm: %v %+v", err, refreshed)
	}

	summary, err := rc.Dashboard(ctx, state.Role(), sel.SelectedFarmID())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if summary.Counts["animals"] != 1 || summary.Counts["tasks"] != 1 {
		t.Errorf("unexpected dashboard counts: %+v", summary)
	}

	center := notify.NewCenter(st.client, st.tokens)
	if n, err := center.RefreshUnreadCount(ctx); err != nil || n != 2 {
		t.Fatalf("unread count: %d %v", n, err)
	}
	if err := center.MarkAllAsRead(ctx); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if n, _ := center.RefreshUnreadCount(ctx); n != 0 {
		t.Errorf("expected 0 unread, got %d", n)
	}

	// Server-side revocation: the next protected call is a 401 that no
	// re-login resolves, so the session-expired flow runs once
	var broadcasts int
	st.bus.On(events.SessionExpired, func(string, events.Detail) { broadcasts++ })
	st.mock.Sessions().DeleteAll()

	_, err = rc.Tasks.List(ctx, nil)
	if !apiclient.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if broadcasts != 1 {
		t.Errorf("expected 1 broadcast, got %d", broadcasts)
	}
	if !st.svc.State().SessionExpired {
		t.Error("expected session expired flag")
	}

	st.svc.HandleSessionExpiredRedirect()
	state = st.svc.State()
	if state.Authenticated() || state.SessionExpired || st.tokens.Get() != "" {
		t.Errorf("expected cleared session, got %+v", state)
	}
}

func TestEndToEnd_WrongCurrentPasswordKeepsSession(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	if res := st.svc.Login(ctx, auth.Credentials{Email: "worker@farmhand.local", Password: "password"}); !res.Success {
		t.Fatalf("login failed: %s", res.Message)
	}

	res := st.svc.ChangePassword(ctx, "not-it", "new-password")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Message != "Current password is incorrect" {
		t.Errorf("expected server message, got %q", res.Message)
	}
	state := st.svc.State()
	if !state.Authenticated() || state.SessionExpired {
		t.Errorf("a rejected password change must not end the session: %+v", state)
	}
}

func TestEndToEnd_OutageThenRecovery(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	if res := st.svc.Login(ctx, auth.Credentials{Email: "admin@farmhand.local", Password: "password"}); !res.Success {
		t.Fatalf("login failed: %s", res.Message)
	}

	st.mock.SetOutage(503)
	if err := st.svc.LoadProfile(ctx); err == nil {
		t.Fatal("expected error during outage")
	}
	state := st.svc.State()
	if !state.ServerError || state.Token == "" {
		t.Errorf("outage must keep the token and flag the server: %+v", state)
	}

	st.mock.SetOutage(0)
	if err := st.svc.LoadProfile(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	state = st.svc.State()
	if state.ServerError || !state.Authenticated() {
		t.Errorf("expected recovered session, got %+v", state)
	}
}

func TestEndToEnd_BackendDownWhileOnline(t *testing.T) {
	ctx := context.Background()

	// Reachable probe target, unreachable backend
	probeLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer probeLn.Close()

	backendLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	backend := backendLn.Addr().String()
	backendLn.Close()

	prober, err := netstatus.NewProber(probeLn.Addr().String())
	if err != nil {
		t.Fatalf("NewProber: %v", err)
	}
	network := netstatus.NewMonitor()
	network.Set(prober.Check(ctx))
	if !network.Online() {
		t.Fatal("probe target should be reachable")
	}

	store := storage.NewMemoryStore()
	tokens := tokenstore.New(store, "")
	if err := tokens.Set("stored-token"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	client, err := apiclient.New(apiclient.Options{
		BaseURL:      "http://" + backend + "/api",
		Tokens:       tokens,
		Connectivity: network,
		Timeout:      2 * time.Second,
	})
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	svc := auth.NewService(client, tokens, events.NewBus(), network)
	defer svc.Close()

	err = client.Get(ctx, "/farms", nil)
	if kind := apiclient.KindOf(err); kind != apiclient.KindNetwork {
		t.Fatalf("expected %s, got %s (%v)", apiclient.KindNetwork, kind, err)
	}

	if err := svc.Init(ctx); err == nil {
		t.Fatal("expected profile fetch to fail")
	}
	state := svc.State()
	if !state.ServerError || !state.IsOnline {
		t.Errorf("down backend must flag the server, not connectivity: %+v", state)
	}
	if state.Token != "stored-token" {
		t.Errorf("session must be kept, got token %q", state.Token)
	}
}
