package intake

import (
	"context"
	"sync"
	"time"
)

// Session is the per-call conversation state, keyed by the Twilio call SID.
type Session struct {
	CallSID    string          `json:"call_sid"`
	Messages   []ChatMessage   `json:"messages"`
	Fields     PatientFields   `json:"fields"`
	Stage      Stage           `json:"stage"`
	Persisted  bool            `json:"persisted"`
	PatientID  string          `json:"patient_id,omitempty"`
	LastActive time.Time       `json:"last_active"`
}

// clone returns a deep enough copy that callers can mutate freely. Message
// history is copied so a rolled-back turn never leaks into the stored session.
func (s *Session) clone() *Session {
	out := *s
	out.Messages = make([]ChatMessage, len(s.Messages))
	copy(out.Messages, s.Messages)
	return &out
}

// SessionStore owns per-call session lifecycle. Get returns a snapshot that
// the orchestrator mutates and writes back with Save; a turn that fails before
// Save leaves the stored session untouched. Calls are serialized per SID by
// the telephony transport, so load-modify-store is race-free per key.
type SessionStore interface {
	// Get returns the session for the SID, creating a default-initialized one
	// on first touch. Creation is atomic: concurrent first access yields one
	// session object.
	Get(ctx context.Context, callSID string) (*Session, error)
	// Save writes the session back and refreshes its idle deadline.
	Save(ctx context.Context, sess *Session) error
	Exists(ctx context.Context, callSID string) (bool, error)
	Evict(ctx context.Context, callSID string) error
}

// MemoryStore keeps sessions in process memory with idle-TTL eviction. A call
// that goes quiet for longer than the TTL is swept so sustained traffic never
// grows the table without bound.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idleTTL  time.Duration
	done     chan struct{}
	closed   sync.Once
	now      func() time.Time
}

// NewMemoryStore creates an in-memory session store. idleTTL <= 0 disables
// eviction (sessions then live until process exit).
func NewMemoryStore(idleTTL time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		done:     make(chan struct{}),
		now:      time.Now,
	}
	if idleTTL > 0 {
		go s.sweep()
	}
	return s
}

// Get implements SessionStore.
func (s *MemoryStore) Get(_ context.Context, callSID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callSID]
	if !ok {
		sess = &Session{
			CallSID:    callSID,
			Stage:      StageName,
			LastActive: s.now(),
		}
		s.sessions[callSID] = sess
	}
	return sess.clone(), nil
}

// Save implements SessionStore.
func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := sess.clone()
	stored.LastActive = s.now()
	s.sessions[sess.CallSID] = stored
	return nil
}

// Exists implements SessionStore.
func (s *MemoryStore) Exists(_ context.Context, callSID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[callSID]
	return ok, nil
}

// Evict implements SessionStore.
func (s *MemoryStore) Evict(_ context.Context, callSID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, callSID)
	return nil
}

// Close stops the eviction sweeper.
func (s *MemoryStore) Close() {
	s.closed.Do(func() { close(s.done) })
}

func (s *MemoryStore) sweep() {
	interval := s.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

func (s *MemoryStore) evictIdle() {
	cutoff := s.now().Add(-s.idleTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, sess := range s.sessions {
		if sess.LastActive.Before(cutoff) {
			delete(s.sessions, sid)
		}
	}
}

var _ SessionStore = (*MemoryStore)(nil)
