package mockapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/farmhand/internal/domain"
)

const (
	farmsCollection         = "farms"
	notificationsCollection = "notifications"
)

// Farmers see their own farms; every other role sees all of them
func farmFilter(u *User) map[string]string {
	if u.Role == string(domain.RoleFarmer) {
		return map[string]string{"ownerId": u.ID}
	}
	return nil
}

func (s *Server) visibleFarm(r *http.Request) (Record, bool) {
	f, ok := s.records.Get(farmsCollection, chi.URLParam(r, "id"))
	if !ok {
		return nil, false
	}
	return f, matches(f, farmFilter(CurrentUser(r.Context())))
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (Record, bool) {
	var rec Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil || rec == nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return nil, false
	}
	return rec, true
}

// ListFarms handles GET /farms
func (s *Server) ListFarms(w http.ResponseWriter, r *http.Request) {
	farms := s.records.List(farmsCollection, farmFilter(CurrentUser(r.Context())))
	writeJSON(w, http.StatusOK, map[string]any{"farms": farms})
}

// GetFarm handles GET /farms/{id}
func (s *Server) GetFarm(w http.ResponseWriter, r *http.Request) {
	f, ok := s.visibleFarm(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Farm not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"farm": f})
}

// CreateFarm handles POST /farms
func (s *Server) CreateFarm(w http.ResponseWriter, r *http.Request) {
	u := CurrentUser(r.Context())
	if u.Role != string(domain.RoleFarmer) && u.Role != string(domain.RoleAdmin) {
		writeError(w, http.StatusForbidden, "Only farmers can create farms")
		return
	}
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	if name, _ := rec["name"].(string); strings.TrimSpace(name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "Farm name is required")
		return
	}
	if u.Role == string(domain.RoleFarmer) {
		rec["ownerId"] = u.ID
	}
	writeJSON(w, http.StatusCreated, map[string]any{"farm": s.records.Create(farmsCollection, rec)})
}

// UpdateFarm handles PUT /farms/{id}
func (s *Server) UpdateFarm(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.visibleFarm(r); !ok {
		writeError(w, http.StatusNotFound, "Farm not found")
		return
	}
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	delete(rec, "ownerId")
	f, _ := s.records.Update(farmsCollection, chi.URLParam(r, "id"), rec)
	writeJSON(w, http.StatusOK, map[string]any{"farm": f})
}

// DeleteFarm handles DELETE /farms/{id}
func (s *Server) DeleteFarm(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.visibleFarm(r); !ok {
		writeError(w, http.StatusNotFound, "Farm not found")
		return
	}
	s.records.Delete(farmsCollection, chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func ownNotifications(r *http.Request) map[string]string {
	return map[string]string{"userId": CurrentUser(r.Context()).ID}
}

// ListNotifications handles GET /notifications
func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	items := s.records.List(notificationsCollection, ownNotifications(r))
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

// UnreadCount handles GET /notifications/unread-count
func (s *Server) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n := 0
	for _, item := range s.records.List(notificationsCollection, ownNotifications(r)) {
		if read, _ := item["isRead"].(bool); !read {
			n++
		}
	}
	writeJSON(w, http.StatusOK, domain.UnreadCount{Count: n})
}

// MarkRead handles PUT /notifications/{id}/read
func (s *Server) MarkRead(w http.ResponseWriter, r *http.Request) {
	filter := ownNotifications(r)
	filter["id"] = chi.URLParam(r, "id")
	if s.records.Patch(notificationsCollection, filter, func(rec Record) { rec["isRead"] = true }) == 0 {
		writeError(w, http.StatusNotFound, "Notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles PUT /notifications/read-all
func (s *Server) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n := s.records.Patch(notificationsCollection, ownNotifications(r), func(rec Record) { rec["isRead"] = true })
	log.Ctx(r.Context()).Debug().Int("updated", n).Msg("notifications marked read")
	w.WriteHeader(http.StatusNoContent)
}

// mountCollection serves plain CRUD for a generic collection. List accepts
// equality filters as query parameters (?farmId=3).
func (s *Server) mountCollection(r chi.Router, name string) {
	base := "/" + name
	listKey := name[strings.LastIndex(name, "/")+1:]

	r.Get(base, func(w http.ResponseWriter, r *http.Request) {
		filters := map[string]string{}
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				filters[k] = v[0]
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{listKey: s.records.List(name, filters)})
	})
	r.Post(base, func(w http.ResponseWriter, r *http.Request) {
		rec, ok := decodeRecord(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"data": s.records.Create(name, rec)})
	})
	r.Get(base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := s.records.Get(name, chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": rec})
	})
	r.Put(base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := decodeRecord(w, r)
		if !ok {
			return
		}
		updated, found := s.records.Update(name, chi.URLParam(r, "id"), rec)
		if !found {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": updated})
	})
	r.Delete(base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !s.records.Delete(name, chi.URLParam(r, "id")) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
