package mockapi

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Record is a loosely typed resource row. The mock server does not model
// business rules; it only stores what clients send.
type Record map[string]any

func (r Record) id() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// RecordStore holds every generic collection, keyed by collection name
type RecordStore struct {
	mu     sync.RWMutex
	nextID int
	data   map[string]map[string]Record
}

func NewRecordStore() *RecordStore {
	return &RecordStore{nextID: 1, data: make(map[string]map[string]Record)}
}

// List returns the collection's records whose fields equal every filter,
// ordered by id
func (s *RecordStore) List(collection string, filters map[string]string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.data[collection]))
	for _, r := range s.data[collection] {
		if matches(r, filters) {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].id())
		b, _ := strconv.Atoi(out[j].id())
		return a < b
	})
	return out
}

func matches(r Record, filters map[string]string) bool {
	for k, want := range filters {
		got, ok := r[k]
		if !ok {
			return false
		}
		switch v := got.(type) {
		case string:
			if v != want {
				return false
			}
		case float64:
			if strconv.FormatFloat(v, 'f', -1, 64) != want {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (s *RecordStore) Get(collection, id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[collection][id]
	if !ok {
		return nil, false
	}
	return copyRecord(r), true
}

// Create assigns an id and timestamps and stores r
func (s *RecordStore) Create(collection string, r Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyRecord(r)
	id := strconv.Itoa(s.nextID)
	s.nextID++
	stored["id"] = id
	stored["createdAt"] = time.Now().UTC().Format(time.RFC3339)

	if s.data[collection] == nil {
		s.data[collection] = make(map[string]Record)
	}
	s.data[collection][id] = stored
	return copyRecord(stored)
}

// Update merges r into the stored record
func (s *RecordStore) Update(collection, id string, r Record) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.data[collection][id]
	if !ok {
		return nil, false
	}
	for k, v := range r {
		if k == "id" || k == "createdAt" {
			continue
		}
		stored[k] = v
	}
	stored["updatedAt"] = time.Now().UTC().Format(time.RFC3339)
	return copyRecord(stored), true
}

// Patch applies fn to every record of collection matching filters and
// returns how many were touched
func (s *RecordStore) Patch(collection string, filters map[string]string, fn func(r Record)) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.data[collection] {
		if matches(r, filters) {
			fn(r)
			n++
		}
	}
	return n
}

func (s *RecordStore) Delete(collection, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[collection][id]
	delete(s.data[collection], id)
	return ok
}

func copyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
