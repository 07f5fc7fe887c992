// Package session maps opaque client identifiers to live outbound channels.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/suzxlabs/ytserver/pkg/logging"
	"github.com/suzxlabs/ytserver/pkg/models"
)

// ErrSessionNotFound is returned by Lookup for unknown or removed sessions
var ErrSessionNotFound = errors.New("session not found")

// DefaultWriteTimeout bounds a single message write to a client
const DefaultWriteTimeout = 10 * time.Second

// Conn is the outbound side of a persistent client connection.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is one connected client
type Session struct {
	ID          string
	ConnectedAt time.Time

	conn    Conn
	writeMu sync.Mutex
	alive   atomic.Bool
}

// Alive reports whether the channel is still considered open
func (s *Session) Alive() bool {
	return s.alive.Load()
}

func (s *Session) write(event models.Event, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.alive.Load() {
		return fmt.Errorf("session %s is closed", s.ID)
	}
	if timeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := s.conn.WriteJSON(event); err != nil {
		s.alive.Store(false)
		s.conn.Close()
		return err
	}
	return nil
}

// Observer receives registry activity. Implemented by the metrics package.
type Observer interface {
	SessionOpened()
	SessionClosed()
	EventDropped(eventType string)
}

// Registry owns session id issuance and the id -> channel mapping
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	newID        func() string
	writeTimeout time.Duration
	observer     Observer
	logger       *logging.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		sessions:     make(map[string]*Session),
		newID:        uuid.NewString,
		writeTimeout: DefaultWriteTimeout,
		logger:       logger.WithField("component", "sessions"),
	}
}

// SetObserver attaches an activity observer
func (r *Registry) SetObserver(o Observer) {
	r.observer = o
}

// SetWriteTimeout overrides the per-message write deadline
func (r *Registry) SetWriteTimeout(d time.Duration) {
	r.writeTimeout = d
}

// Register issues a fresh identifier for conn, pushes it to the client as the
// first message and only then makes the session addressable.
func (r *Registry) Register(conn Conn) (string, error) {
	sess := &Session{conn: conn, ConnectedAt: time.Now()}
	sess.alive.Store(true)

	// The id is reserved under the lock so concurrent registrations can never
	// collide, but the entry stays nil until the handshake has been written.
	r.mu.Lock()
	id := r.newID()
	for _, taken := r.sessions[id]; taken; _, taken = r.sessions[id] {
		id = r.newID()
	}
	r.sessions[id] = nil
	r.mu.Unlock()

	sess.ID = id
	if err := sess.write(models.ClientIDEvent(id), r.writeTimeout); err != nil {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		return "", fmt.Errorf("failed to send client id: %w", err)
	}

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.SessionOpened()
	}
	r.logger.Debug("Session registered", logging.Fields{"session": id})
	return id, nil
}

// Lookup returns a live session by id
func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess := r.sessions[id]
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Send delivers event to the session best-effort. It reports whether the
// event was written; absent or closed sessions drop it silently.
func (r *Registry) Send(id string, event models.Event) bool {
	sess, err := r.Lookup(id)
	if err != nil || !sess.Alive() {
		r.dropped(event)
		return false
	}

	if err := sess.write(event, r.writeTimeout); err != nil {
		r.logger.Debug("Dropping event for unreachable session", logging.Fields{
			"session": id,
			"type":    string(event.Type),
			"error":   err.Error(),
		})
		r.dropped(event)
		return false
	}
	return true
}

func (r *Registry) dropped(event models.Event) {
	if r.observer != nil {
		r.observer.EventDropped(string(event.Type))
	}
}

// Unregister removes the session. Safe to call more than once.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok && sess != nil {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok || sess == nil {
		return
	}
	sess.alive.Store(false)
	if r.observer != nil {
		r.observer.SessionClosed()
	}
	r.logger.Debug("Session unregistered", logging.Fields{"session": id})
}

// Count returns the number of registered sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, sess := range r.sessions {
		if sess != nil {
			n++
		}
	}
	return n
}

// CloseAll closes every live connection. Each connection's read loop then
// unregisters its session.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	live := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		if sess != nil {
			live = append(live, sess)
		}
	}
	r.mu.RUnlock()

	for _, sess := range live {
		sess.alive.Store(false)
		sess.conn.Close()
	}
}
