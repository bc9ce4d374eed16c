// Package session holds the console's bearer token and signed-in user. One
// Store is shared by every request so that concurrent 401 responses end the
// session exactly once.
package session

import (
	"log/slog"
	"sync"
)

// User is the signed-in account as returned by the login endpoint.
type User struct {
	ID    string `json:"id" yaml:"id"`
	Email string `json:"email" yaml:"email"`
	Name  string `json:"name" yaml:"name"`
	Role  string `json:"role" yaml:"role"`
}

// Flag names a one-time prompt the user has dismissed on this device.
type Flag string

const (
	FlagInstallPrompt  Flag = "install_prompt"
	FlagPushPermission Flag = "push_permission"
)

// Reason says why a session ended.
type Reason string

const (
	ReasonLogout  Reason = "logout"
	ReasonExpired Reason = "expired"
)

// State is everything the store persists between runs.
type State struct {
	Token     string        `yaml:"token,omitempty"`
	User      *User         `yaml:"user,omitempty"`
	Dismissed map[Flag]bool `yaml:"dismissed,omitempty"`
}

// Persister loads and saves State. FileStore is the YAML implementation.
type Persister interface {
	Load() (State, error)
	Save(State) error
}

type Option func(*Store)

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

// Store is safe for concurrent use. Every credential change bumps the
// generation; requests capture it with Current and hand it back to Expire.
type Store struct {
	persist Persister

	mu         sync.Mutex
	token      string
	user       User
	generation uint64
	dismissed  map[Flag]bool
	hooks      []func(Reason)
}

// NewStore restores persisted state when a persister is configured. A
// persister that fails to load leaves the store signed out.
func NewStore(opts ...Option) *Store {
	s := &Store{dismissed: map[Flag]bool{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.persist == nil {
		return s
	}
	state, err := s.persist.Load()
	if err != nil {
		slog.Warn("session load failed", "err", err)
		return s
	}
	s.token = state.Token
	if state.User != nil {
		s.user = *state.User
	}
	for flag, dismissed := range state.Dismissed {
		if dismissed {
			s.dismissed[flag] = true
		}
	}
	return s
}

func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Current returns the token together with the generation it belongs to.
func (s *Store) Current() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.generation
}

// User returns the signed-in user; ok is false when signed out.
func (s *Store) User() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.token != ""
}

func (s *Store) Authenticated() bool {
	return s.Token() != ""
}

func (s *Store) SetCredentials(token string, user User) {
	s.mu.Lock()
	s.token = token
	s.user = user
	s.generation++
	state := s.stateLocked()
	s.mu.Unlock()
	s.save(state)
}

// OnLogout registers fn to run after every session end. Hooks run outside the
// store lock, once per transition.
func (s *Store) OnLogout(fn func(Reason)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Clear signs out. Calling it while signed out does nothing.
func (s *Store) Clear() {
	s.end(ReasonLogout, nil)
}

// Expire ends the session that was current at generation. It reports whether
// this call performed the logout; a stale generation or a session already
// ended by another caller returns false.
func (s *Store) Expire(generation uint64) bool {
	return s.end(ReasonExpired, &generation)
}

func (s *Store) end(reason Reason, generation *uint64) bool {
	s.mu.Lock()
	if s.token == "" || (generation != nil && *generation != s.generation) {
		s.mu.Unlock()
		return false
	}
	s.token = ""
	s.user = User{}
	s.generation++
	hooks := append([]func(Reason){}, s.hooks...)
	state := s.stateLocked()
	s.mu.Unlock()

	s.save(state)
	for _, hook := range hooks {
		hook(reason)
	}
	return true
}

// Dismissed reports whether the prompt behind flag was already dismissed.
// Flags survive logout.
func (s *Store) Dismissed(flag Flag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dismissed[flag]
}

func (s *Store) Dismiss(flag Flag) {
	s.mu.Lock()
	if s.dismissed[flag] {
		s.mu.Unlock()
		return
	}
	s.dismissed[flag] = true
	state := s.stateLocked()
	s.mu.Unlock()
	s.save(state)
}

func (s *Store) stateLocked() State {
	state := State{Token: s.token}
	if s.token != "" {
		user := s.user
		state.User = &user
	}
	if len(s.dismissed) > 0 {
		state.Dismissed = make(map[Flag]bool, len(s.dismissed))
		for flag, dismissed := range s.dismissed {
			state.Dismissed[flag] = dismissed
		}
	}
	return state
}

func (s *Store) save(state State) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Save(state); err != nil {
		slog.Warn("session save failed", "err", err)
	}
}
