package store

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/azyu/novelcraft/internal/novel"
)

// Change describes one applied action.
type Change struct {
	Version  uint64
	Action   Action
	Document novel.Document
}

// Store owns the current document. All mutations go through Dispatch.
type Store struct {
	mu          sync.Mutex
	doc         novel.Document
	version     uint64
	subs        map[int]func(Change)
	nextSub     int
	queue       []Action
	dispatching bool

	ids    *novel.IDSource
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithIDSource sets the id source that loaded documents are reported to,
// so new entities never reuse a loaded id.
func WithIDSource(ids *novel.IDSource) Option {
	return func(s *Store) {
		s.ids = ids
	}
}

// New creates a store holding doc.
func New(doc novel.Document, opts ...Option) *Store {
	s := &Store{
		doc:    doc.Clone(),
		subs:   make(map[int]func(Change)),
		ids:    novel.Default,
		logger: slog.Default().With("component", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ids.Observe(s.doc.MaxID())
	return s
}

// Document returns a deep copy of the current document.
func (s *Store) Document() novel.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Version returns the number of applied changes so far.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe registers fn to run after every change. Subscribers run on the
// dispatching goroutine, in registration order, outside the store lock.
// The document in a Change is shared between subscribers and must be
// treated as read-only.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Dispatch applies a and notifies subscribers. Actions dispatched while
// another dispatch is running, including from a subscriber, are queued and
// applied in order by the running dispatch.
func (s *Store) Dispatch(a Action) {
	if a == nil {
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, a)
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true

	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]

		doc, changed := reduce(s.doc, next)
		if !changed {
			s.logger.Debug("action ignored", "action", next.Name())
			continue
		}
		if _, ok := next.(SetDocument); ok {
			s.ids.Observe(doc.MaxID())
		}

		s.doc = doc
		s.version++
		change := Change{Version: s.version, Action: next, Document: doc.Clone()}
		subs := s.subscribers()
		s.logger.Debug("action applied", "action", next.Name(), "version", s.version)

		s.mu.Unlock()
		for _, fn := range subs {
			s.notify(fn, change)
		}
		s.mu.Lock()
	}

	s.dispatching = false
	s.mu.Unlock()
}

// notify runs one subscriber. A panicking subscriber is logged and skipped
// so the dispatch loop keeps draining the queue.
func (s *Store) notify(fn func(Change), change Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber panicked", "action", change.Action.Name(), "version", change.Version, "panic", r)
		}
	}()
	fn(change)
}

// DispatchAll applies actions in order.
func (s *Store) DispatchAll(actions ...Action) {
	for _, a := range actions {
		s.Dispatch(a)
	}
}

func (s *Store) subscribers() []func(Change) {
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]func(Change), len(ids))
	for i, id := range ids {
		out[i] = s.subs[id]
	}
	return out
}
