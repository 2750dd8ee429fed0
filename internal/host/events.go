package host

import (
	"sync"

	"github.com/ctagard/godot-bridge/internal/lifecycle"
)

// Solution is the directory of the solution currently open in the host
type Solution struct {
	mu  sync.RWMutex
	dir string
}

// NewSolution creates a solution rooted at dir
func NewSolution(dir string) *Solution {
	return &Solution{dir: dir}
}

// Directory returns the solution directory
func (s *Solution) Directory() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dir
}

// SetDirectory changes the solution directory
func (s *Solution) SetDirectory(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = dir
}

// Events fans debugger mode changes out to subscribers
type Events struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func(lifecycle.ModeChangeReason)
}

// NewEvents creates an empty broker
func NewEvents() *Events {
	return &Events{handlers: make(map[int]func(lifecycle.ModeChangeReason))}
}

// Subscribe registers handler until the returned registration is released
func (e *Events) Subscribe(handler func(reason lifecycle.ModeChangeReason)) lifecycle.Registration {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.handlers[id] = handler
	return &subscription{events: e, id: id}
}

// Notify delivers reason to every subscriber. Handlers run on the caller's goroutine.
func (e *Events) Notify(reason lifecycle.ModeChangeReason) {
	e.mu.Lock()
	handlers := make([]func(lifecycle.ModeChangeReason), 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(reason)
	}
}

// Subscribers returns the number of live subscriptions
func (e *Events) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

type subscription struct {
	events *Events
	id     int
	once   sync.Once
}

func (s *subscription) Release() {
	s.once.Do(func() {
		s.events.mu.Lock()
		delete(s.events.handlers, s.id)
		s.events.mu.Unlock()
	})
}
