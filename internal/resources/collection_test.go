package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/erauner12/farmhand/internal/apiclient"
	"github.com/erauner12/farmhand/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	api, err := apiclient.New(apiclient.Options{
		BaseURL:       srv.URL + "/api",
		DecisionDelay: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	return NewClient(api)
}

func TestCollection_CRUD(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/livestock/animals", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("farmId") != "7" {
			t.Errorf("expected farmId filter, got %q", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, map[string]any{"animals": []map[string]any{
			{"id": 1, "farmId": 7, "tagNumber": "KE-001", "species": "cattle"},
			{"id": 2, "farmId": 7, "tagNumber": "KE-002", "species": "goat"},
		}})
	})
	mux.HandleFunc("GET /api/livestock/animals/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": r.PathValue("id"), "tagNumber": "KE-001"}})
	})
	mux.HandleFunc("POST /api/livestock/animals", func(w http.ResponseWriter, r *http.Request) {
		var a domain.Animal
		json.NewDecoder(r.Body).Decode(&a)
		a.ID = "99"
		writeJSON(w, http.StatusCreated, a)
	})
	mux.HandleFunc("PUT /api/livestock/animals/{id}", func(w http.ResponseWriter, r *http.Request) {
		var a domain.Animal
		json.NewDecoder(r.Body).Decode(&a)
		writeJSON(w, http.StatusOK, map[string]any{"animal": a})
	})
	mux.HandleFunc("DELETE /api/livestock/animals/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	list, err := c.Animals.List(ctx, url.Values{"farmId": {"7"}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []domain.Animal{
		{ID: "1", FarmID: "7", TagNumber: "KE-001", Species: "cattle"},
		{ID: "2", FarmID: "7", TagNumber: "KE-002", Species: "goat"},
	}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	got, err := c.Animals.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "1" || got.TagNumber != "KE-001" {
		t.Errorf("unexpected animal: %+v", got)
	}

	created, err := c.Animals.Create(ctx, domain.Animal{TagNumber: "KE-003", Species: "sheep"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "99" || created.Species != "sheep" {
		t.Errorf("unexpected created animal: %+v", created)
	}

	updated, err := c.Animals.Update(ctx, "99", domain.Animal{ID: "99", Species: "sheep", Weight: 41.5})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Weight != 41.5 {
		t.Errorf("unexpected updated animal: %+v", updated)
	}

	if err := c.Animals.Delete(ctx, "99"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Animals.Delete(ctx, ""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestCollection_ErrorsAreClassified(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/loans", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "Loan officers only"})
	})
	c := newTestClient(t, mux)

	_, err := c.Loans.List(context.Background(), nil)
	if !apiclient.IsAccessDenied(err) {
		t.Fatalf("expected ACCESS_DENIED, got %v", err)
	}
	if apiclient.MessageOf(err, "") != "Loan officers only" {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestDashboard_PerRole(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case strings.HasSuffix(r.URL.Path, "/treatments"):
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
		case strings.HasSuffix(r.URL.Path, "/vaccinations"):
			writeJSON(w, http.StatusOK, []any{map[string]any{"id": 1}, map[string]any{"id": 2}})
		default:
			writeJSON(w, http.StatusOK, []any{map[string]any{"id": 1}})
		}
	})
	c := newTestClient(t, mux)

	summary, err := c.Dashboard(context.Background(), domain.RoleVeterinarian, "")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if hits.Load() != 4 {
		t.Errorf("expected 4 section requests, got %d", hits.Load())
	}

	wantCounts := map[string]int{"animals": 1, "healthRecords": 1, "vaccinations": 2}
	if diff := cmp.Diff(wantCounts, summary.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if summary.Errors["treatments"] != "db down" {
		t.Errorf("expected treatments error, got %v", summary.Errors)
	}
	if diff := cmp.Diff([]string{"animals", "healthRecords", "treatments", "vaccinations"}, summary.Sections()); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestDashboard_UnauthorizedAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := newTestClient(t, mux)

	_, err := c.Dashboard(context.Background(), domain.RoleWorker, "3")
	if !apiclient.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
