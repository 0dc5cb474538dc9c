// Package uistate holds layout state shared by screens: the sidebar, the
// theme, the mobile breakpoint and which dropdown is open.
package uistate

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/farmhand/internal/storage"
)

// MobileBreakpoint is the viewport width below which the layout is mobile
const MobileBreakpoint = 768

const themeKey = "theme"

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// State is safe for concurrent use
type State struct {
	store storage.Store

	mu          sync.RWMutex
	sidebarOpen bool
	mobile      bool
	theme       Theme
	dropdown    string
}

// New restores the persisted theme. The layout starts as desktop with the
// sidebar open until SetViewportWidth says otherwise.
func New(store storage.Store) *State {
	s := &State{store: store, sidebarOpen: true, theme: ThemeLight}
	if store == nil {
		return s
	}
	v, ok, err := store.Get(themeKey)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("failed to read theme")
	case ok && (Theme(v) == ThemeLight || Theme(v) == ThemeDark):
		s.theme = Theme(v)
	}
	return s
}

func (s *State) SidebarOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sidebarOpen
}

func (s *State) ToggleSidebar() {
	s.mu.Lock()
	s.sidebarOpen = !s.sidebarOpen
	s.mu.Unlock()
}

func (s *State) SetSidebarOpen(open bool) {
	s.mu.Lock()
	s.sidebarOpen = open
	s.mu.Unlock()
}

func (s *State) IsMobile() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mobile
}

// SetViewportWidth updates the mobile flag. Entering mobile closes the
// sidebar; leaving it leaves the sidebar as the user set it.
func (s *State) SetViewportWidth(width int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mobile := width < MobileBreakpoint
	if mobile && !s.mobile {
		s.sidebarOpen = false
	}
	s.mobile = mobile
}

func (s *State) Theme() Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

// SetTheme changes and persists the theme
func (s *State) SetTheme(t Theme) error {
	if t != ThemeLight && t != ThemeDark {
		return fmt.Errorf("unknown theme %q", t)
	}
	if s.store != nil {
		if err := s.store.Set(themeKey, string(t)); err != nil {
			return fmt.Errorf("store theme: %w", err)
		}
	}
	s.mu.Lock()
	s.theme = t
	s.mu.Unlock()
	return nil
}

// OpenDropdown opens id, closing any other dropdown
func (s *State) OpenDropdown(id string) {
	s.mu.Lock()
	s.dropdown = id
	s.mu.Unlock()
}

// OpenDropdownID returns the open dropdown, or ""
func (s *State) OpenDropdownID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropdown
}

// DismissDropdowns closes whatever is open. Called on any press outside
// the open dropdown.
func (s *State) DismissDropdowns() {
	s.mu.Lock()
	s.dropdown = ""
	s.mu.Unlock()
}
