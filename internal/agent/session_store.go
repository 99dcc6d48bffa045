package agent

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/baogate/internal/domain"
)

// SessionDefaults is the fixed configuration a new Session is created with.
type SessionDefaults struct {
	SystemInstruction string
	Tools             []string
}

// SessionStore maps channel IDs to their live Session. At most one Session
// exists per channel. Sessions returned by a store are snapshots; mutating
// them does not affect stored state.
type SessionStore interface {
	// GetOrCreate returns the channel's Session, creating an empty one with
	// defaults if none exists. created reports whether this call created it.
	GetOrCreate(channelID string, defaults SessionDefaults) (sess *domain.Session, created bool, err error)

	// Replace installs a new Session seeded with turns, discarding any prior one.
	Replace(channelID string, defaults SessionDefaults, seeded []domain.Turn) (*domain.Session, error)

	// AppendExchange appends a user Turn and its model Turn together to the
	// channel's Session, which must still be sessionID.
	AppendExchange(channelID, sessionID string, user, model domain.Turn) error

	// Get returns the channel's Session or ErrSessionNotFound.
	Get(channelID string) (*domain.Session, error)

	// List summarises all sessions ordered by channel ID.
	List() ([]domain.SessionSummary, error)
}

// MemorySessionStore is an in-memory SessionStore. State lives for the
// process lifetime only.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session // channel id → session
	now      func() time.Time
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) newSession(channelID string, defaults SessionDefaults, turns []domain.Turn) *domain.Session {
	now := s.now()
	return &domain.Session{
		ID:                uuid.New().String(),
		ChannelID:         channelID,
		SystemInstruction: defaults.SystemInstruction,
		Tools:             slices.Clone(defaults.Tools),
		CreatedAt:         now,
		UpdatedAt:         now,
		Turns:             stamp(slices.Clone(turns), now),
	}
}

func (s *MemorySessionStore) GetOrCreate(channelID string, defaults SessionDefaults) (*domain.Session, bool, error) {
	s.mu.RLock()
	sess, ok := s.sessions[channelID]
	s.mu.RUnlock()
	if ok {
		return sess.Clone(), false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check: another caller may have created it between the locks.
	if sess, ok := s.sessions[channelID]; ok {
		return sess.Clone(), false, nil
	}
	sess = s.newSession(channelID, defaults, nil)
	s.sessions[channelID] = sess
	return sess.Clone(), true, nil
}

func (s *MemorySessionStore) Replace(channelID string, defaults SessionDefaults, seeded []domain.Turn) (*domain.Session, error) {
	sess := s.newSession(channelID, defaults, seeded)

	s.mu.Lock()
	s.sessions[channelID] = sess
	s.mu.Unlock()
	return sess.Clone(), nil
}

func (s *MemorySessionStore) AppendExchange(channelID, sessionID string, user, model domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[channelID]
	if !ok || sess.ID != sessionID {
		return ErrSessionNotFound
	}
	now := s.now()
	sess.Turns = append(sess.Turns, stamp([]domain.Turn{user, model}, now)...)
	sess.UpdatedAt = now
	return nil
}

func (s *MemorySessionStore) Get(channelID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[channelID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *MemorySessionStore) List() ([]domain.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out, nil
}

// stamp fills in missing CreatedAt times.
func stamp(turns []domain.Turn, now time.Time) []domain.Turn {
	for i := range turns {
		if turns[i].CreatedAt.IsZero() {
			turns[i].CreatedAt = now
		}
	}
	return turns
}
