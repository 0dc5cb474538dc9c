// Package farm remembers which farm the user is working on. The selection is
// stored independently of the session and survives logout.
package farm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/farmhand/internal/domain"
	"github.com/erauner12/farmhand/internal/storage"
)

const (
	DefaultFarmKey   = "selectedFarm"
	DefaultFarmIDKey = "selectedFarmId"
)

// ErrNoSelection is returned by Refresh when no farm is selected
var ErrNoSelection = errors.New("no farm selected")

// Getter fetches a JSON resource (apiclient.Client)
type Getter interface {
	Get(ctx context.Context, path string, out any) error
}

// Selection holds the selected farm id and, when known, the farm object
type Selection struct {
	store   storage.Store
	api     Getter
	farmKey string
	idKey   string

	mu        sync.RWMutex
	id        domain.ID
	farm      *domain.Farm
	listeners []func(id domain.ID)
}

// Options configures a Selection. Empty keys fall back to the defaults.
type Options struct {
	Store     storage.Store
	API       Getter
	FarmKey   string
	FarmIDKey string
}

// New loads any persisted selection from opts.Store
func New(opts Options) *Selection {
	s := &Selection{
		store:   opts.Store,
		api:     opts.API,
		farmKey: opts.FarmKey,
		idKey:   opts.FarmIDKey,
	}
	if s.farmKey == "" {
		s.farmKey = DefaultFarmKey
	}
	if s.idKey == "" {
		s.idKey = DefaultFarmIDKey
	}
	s.load()
	return s
}

func (s *Selection) load() {
	if id, ok, err := s.store.Get(s.idKey); err != nil {
		log.Warn().Err(err).Str("key", s.idKey).Msg("failed to read selected farm id")
	} else if ok {
		s.id = domain.ID(id)
	}

	raw, ok, err := s.store.Get(s.farmKey)
	if err != nil {
		log.Warn().Err(err).Str("key", s.farmKey).Msg("failed to read selected farm")
		return
	}
	if !ok || raw == "" {
		return
	}
	var f domain.Farm
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		log.Warn().Err(err).Msg("discarding unreadable selected farm")
		return
	}
	// A stale object for a different id is worse than none
	if s.id == "" {
		s.id = f.ID
	}
	if f.ID == s.id {
		s.farm = &f
	}
}

// SelectedFarmID returns the selected id, or "" when none
func (s *Selection) SelectedFarmID() domain.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// SelectedFarm returns a copy of the selected farm object, or nil when only
// the id is known
func (s *Selection) SelectedFarm() *domain.Farm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.farm == nil {
		return nil
	}
	f := *s.farm
	return &f
}

// OnChange registers fn to run after the selected id changes
func (s *Selection) OnChange(fn func(id domain.ID)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// SelectFarm stores f as the selection
func (s *Selection) SelectFarm(f domain.Farm) error {
	if err := f.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode farm: %w", err)
	}
	prev, hadPrev, err := s.store.Get(s.farmKey)
	if err != nil {
		return fmt.Errorf("read selected farm: %w", err)
	}
	if err := s.store.Set(s.farmKey, string(b)); err != nil {
		return fmt.Errorf("store selected farm: %w", err)
	}
	if err := s.store.Set(s.idKey, f.ID.String()); err != nil {
		// Put the old object back so the stored pair still agrees
		s.restore(s.farmKey, prev, hadPrev)
		return fmt.Errorf("store selected farm id: %w", err)
	}

	s.mu.Lock()
	changed := s.id != f.ID
	s.id = f.ID
	s.farm = &f
	fns := s.snapshotListeners()
	s.mu.Unlock()

	log.Info().Str("farmId", f.ID.String()).Str("farm", f.Name).Msg("farm selected")
	if changed {
		notify(fns, f.ID)
	}
	return nil
}

func (s *Selection) restore(key, value string, ok bool) {
	var err error
	if ok {
		err = s.store.Set(key, value)
	} else {
		err = s.store.Delete(key)
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to restore selected farm")
	}
}

// SetSelectedFarmID stores only the id. A held farm object for another id
// is dropped until Refresh loads the new one.
func (s *Selection) SetSelectedFarmID(id domain.ID) error {
	if id == "" {
		return s.ClearSelectedFarmID()
	}
	if err := s.store.Set(s.idKey, id.String()); err != nil {
		return fmt.Errorf("store selected farm id: %w", err)
	}

	s.mu.Lock()
	changed := s.id != id
	s.id = id
	if s.farm != nil && s.farm.ID != id {
		s.farm = nil
		if err := s.store.Delete(s.farmKey); err != nil {
			log.Warn().Err(err).Msg("failed to remove stale selected farm")
		}
	}
	fns := s.snapshotListeners()
	s.mu.Unlock()

	if changed {
		notify(fns, id)
	}
	return nil
}

// ClearSelectedFarmID forgets the selection
func (s *Selection) ClearSelectedFarmID() error {
	var errs []error
	if err := s.store.Delete(s.idKey); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Delete(s.farmKey); err != nil {
		errs = append(errs, err)
	}

	s.mu.Lock()
	changed := s.id != ""
	s.id = ""
	s.farm = nil
	fns := s.snapshotListeners()
	s.mu.Unlock()

	if changed {
		notify(fns, "")
	}
	return errors.Join(errs...)
}

// Refresh reloads the selected farm object from the API
func (s *Selection) Refresh(ctx context.Context) (*domain.Farm, error) {
	id := s.SelectedFarmID()
	if id == "" {
		return nil, ErrNoSelection
	}
	if s.api == nil {
		return nil, fmt.Errorf("farm selection has no API client")
	}

	var raw json.RawMessage
	if err := s.api.Get(ctx, "/farms/"+url.PathEscape(id.String()), &raw); err != nil {
		return nil, err
	}
	f, err := domain.DecodeFarm(raw)
	if err != nil {
		return nil, err
	}

	// The selection may have moved on while the request was in flight
	if s.SelectedFarmID() != id {
		return nil, fmt.Errorf("selection changed during refresh")
	}
	if err := s.SelectFarm(*f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Selection) snapshotListeners() []func(domain.ID) {
	fns := make([]func(domain.ID), len(s.listeners))
	copy(fns, s.listeners)
	return fns
}

func notify(fns []func(domain.ID), id domain.ID) {
	for _, fn := range fns {
		fn(id)
	}
}
