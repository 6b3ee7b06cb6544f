package session

import (
	"context"
	"log"
	"sync"
	"time"

	"personabot/internal/flow"
	"personabot/internal/models"
)

// Session is the single in-flight flow for one user. Exactly one of the state
// pointers matching Kind is non-nil.
type Session struct {
	UserID       int64
	Kind         models.FlowKind
	Assessment   *flow.AssessmentState
	Consultation *flow.ConsultationState
	Media        *flow.MediaState

	CreatedAt    time.Time
	LastActivity time.Time

	// Epoch is bumped on every destroy so results computed against a dead
	// session can be recognized and discarded.
	Epoch uint64

	// Busy marks a session whose event is suspended on a collaborator call.
	// The sweeper skips busy sessions.
	Busy bool

	cancel context.CancelFunc
}

// Store holds at most one session per user. All access goes through the
// store's lock; sessions are transient and never persisted.
//
// epochs outlive their sessions on purpose: a result computed against a
// destroyed session is recognized by its stale epoch, so the entry for a
// user must not be dropped while such a result may still arrive. One uint64
// per user ever seen is the accepted cost.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	epochs   map[int64]uint64
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*Session),
		epochs:   make(map[int64]uint64),
	}
}

// Get returns the user's session, or nil.
func (s *Store) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID]
}

// Put installs a new session for the user, replacing any existing one.
func (s *Store) Put(sess *Session) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.CreatedAt = now
	sess.LastActivity = now
	sess.Epoch = s.epochs[sess.UserID]
	s.sessions[sess.UserID] = sess
}

// Touch refreshes the idle clock.
func (s *Store) Touch(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.sessions[userID]; sess != nil {
		sess.LastActivity = time.Now()
	}
}

// SetBusy marks the session suspended on a collaborator call and registers
// the cancel hook for that call. Clearing busy drops the hook.
func (s *Store) SetBusy(userID int64, busy bool, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[userID]
	if sess == nil {
		return
	}
	sess.Busy = busy
	if busy {
		sess.cancel = cancel
	} else {
		sess.cancel = nil
	}
}

// Destroy removes the user's session, cancels any suspended collaborator
// call, and bumps the epoch. Safe to call when no session exists.
func (s *Store) Destroy(userID int64) {
	s.mu.Lock()
	sess := s.sessions[userID]
	delete(s.sessions, userID)
	s.epochs[userID]++
	s.mu.Unlock()

	if sess != nil && sess.cancel != nil {
		sess.cancel()
	}
}

// Epoch returns the user's current epoch. It survives session destruction.
func (s *Store) Epoch(userID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epochs[userID]
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartSweeper destroys sessions idle past maxIdle, checking every sweep
// interval until ctx is done. Busy sessions are left alone; their idle clock
// restarts when the suspended call returns.
func (s *Store) StartSweeper(ctx context.Context, maxIdle, sweep time.Duration) {
	if maxIdle <= 0 || sweep <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, userID := range s.expired(now, maxIdle) {
					log.Printf("session for user %d expired, destroying", userID)
					s.Destroy(userID)
				}
			}
		}
	}()
}

func (s *Store) expired(now time.Time, maxIdle time.Duration) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for id, sess := range s.sessions {
		if !sess.Busy && now.Sub(sess.LastActivity) >= maxIdle {
			out = append(out, id)
		}
	}
	return out
}
