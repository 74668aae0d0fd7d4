package app

import (
	"fmt"
	"reflect"
	"sync"
)

// Store is the type-indexed dependency-injection registry from spec.md
// §4.6: "a type-indexed map of installed apps. install(store, option)
// resolves each dependency by type (installing it if absent)...Cyclic
// dependencies are rejected at install time."
type Store struct {
	mu         sync.Mutex
	installed  map[reflect.Type]App
	installing map[reflect.Type]bool
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		installed:  make(map[reflect.Type]App),
		installing: make(map[reflect.Type]bool),
	}
}

// ErrCyclicDependency is returned when Install's factory graph loops back
// on a type currently being constructed.
type ErrCyclicDependency struct {
	Type reflect.Type
}

func (e *ErrCyclicDependency) Error() string {
	return fmt.Sprintf("app: cyclic dependency on %s", e.Type)
}

// Get returns the already-installed instance of T, if any.
func Get[T App](s *Store) (T, bool) {
	var zero T
	t := reflect.TypeOf(&zero).Elem()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.installed[t]
	if !ok {
		return zero, false
	}
	return existing.(T), true
}

// Install resolves T, constructing it via factory if not already present.
// factory receives the store so it can recursively resolve its own
// dependencies with Install/Get. A factory that (directly or
// transitively) calls Install[T] again on the same T while it is already
// mid-construction returns *ErrCyclicDependency instead of recursing
// forever.
func Install[T App](s *Store, factory func(*Store) (T, error)) (T, error) {
	var zero T
	t := reflect.TypeOf(&zero).Elem()

	s.mu.Lock()
	if existing, ok := s.installed[t]; ok {
		s.mu.Unlock()
		return existing.(T), nil
	}
	if s.installing[t] {
		s.mu.Unlock()
		return zero, &ErrCyclicDependency{Type: t}
	}
	s.installing[t] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.installing, t)
		s.mu.Unlock()
	}()

	instance, err := factory(s)
	if err != nil {
		return zero, fmt.Errorf("app: install %s: %w", t, err)
	}

	s.mu.Lock()
	s.installed[t] = instance
	s.mu.Unlock()

	return instance, nil
}

// All returns every currently installed app, for lifecycle iteration.
func (s *Store) All() []App {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]App, 0, len(s.installed))
	for _, a := range s.installed {
		out = append(out, a)
	}
	return out
}
