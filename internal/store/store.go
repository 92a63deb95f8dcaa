package store

import (
	"sync"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/auditlog"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/events"
)

// Store owns the session's State. All writes go through Apply.
type Store struct {
	mu    sync.Mutex
	state State
	log   *auditlog.Log
	pub   auditlog.Publisher
}

type Option func(*Store)

// WithPublisher publishes events.EventStateChanged after every accepted transition.
func WithPublisher(p auditlog.Publisher) Option {
	return func(s *Store) { s.pub = p }
}

func New(log *auditlog.Log, opts ...Option) *Store {
	s := &Store{state: initialState(), log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Log() *auditlog.Log {
	return s.log
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Apply reduces ev against the current state. Log entries produced by the
// transition are appended before the new state becomes visible, so no reader
// can observe a changed status without the entry explaining it. The returned
// effects are empty when the event was rejected.
func (s *Store) Apply(ev Event) []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, effects := Reduce(s.state, ev)
	if len(effects) == 0 {
		return nil
	}

	for _, eff := range effects {
		if a, ok := eff.(AppendLog); ok {
			s.log.Append(a.Message, a.Severity)
		}
	}
	s.state = next
	if s.pub != nil {
		s.pub.Publish(events.EventStateChanged, next.clone())
	}
	return effects
}
