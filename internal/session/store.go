package session

import (
	"sync"
	"time"
)

// Store is the append-only message log of the active session.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	lastID   int64
	subs     []chan struct{}
}

// NewStore creates an empty message store.
func NewStore() *Store {
	return &Store{}
}

// Append assigns the next id and a timestamp (when unset) to msg, appends it,
// and returns the stored copy. Ids increase strictly in insertion order.
func (s *Store) Append(msg Message) Message {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Images != nil {
		msg.Images = append([]string(nil), msg.Images...)
	}

	s.mu.Lock()
	s.lastID++
	msg.ID = s.lastID
	s.messages = append(s.messages, msg)
	subs := s.subs
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return msg
}

// Snapshot returns a copy of the messages in insertion order.
func (s *Store) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the most recent message, if any.
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Subscribe returns a channel that receives a signal after appends. Signals
// coalesce: a slow reader sees one pending notification, not one per append.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}
