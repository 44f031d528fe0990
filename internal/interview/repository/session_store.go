package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"arete/internal/interview/model"
	appErr "arete/pkg/errors"
	"arete/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultShardCount = 32

// SessionStore holds live session states in process memory.
//
// Sessions are spread over shards so different ids rarely contend, and each
// session carries its own mutex so WithLock serializes every read-modify-write
// for one id. An optional SnapshotStore receives a copy after every write and
// is consulted when an id is not in memory.
type SessionStore struct {
	shards    []*sessionShard
	snapshots SnapshotStore
	now       func() time.Time
}

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[string]*sessionSlot
}

type sessionSlot struct {
	mu      sync.Mutex
	state   *model.SessionState
	removed bool
}

// StoreOption configures a SessionStore.
type StoreOption func(*SessionStore)

// WithSnapshots writes every state through to s.
func WithSnapshots(s SnapshotStore) StoreOption {
	return func(st *SessionStore) {
		st.snapshots = s
	}
}

// WithStoreClock overrides the time source used by eviction.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(st *SessionStore) {
		if now != nil {
			st.now = now
		}
	}
}

// NewSessionStore creates an empty store.
func NewSessionStore(shards int, opts ...StoreOption) *SessionStore {
	if shards <= 0 {
		shards = defaultShardCount
	}
	s := &SessionStore{shards: make([]*sessionShard, shards), now: time.Now}
	for i := range s.shards {
		s.shards[i] = &sessionShard{sessions: make(map[string]*sessionSlot)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) shardFor(sessionID string) *sessionShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// slot returns the slot for sessionID, restoring it from snapshots when needed.
func (s *SessionStore) slot(ctx context.Context, sessionID string) (*sessionSlot, error) {
	shard := s.shardFor(sessionID)
	shard.mu.RLock()
	sl, ok := shard.sessions[sessionID]
	shard.mu.RUnlock()
	if ok {
		return sl, nil
	}
	if s.snapshots == nil {
		return nil, appErr.SessionNotFoundError(sessionID)
	}

	state, err := s.snapshots.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	// Another caller may have restored it meanwhile.
	if existing, ok := shard.sessions[sessionID]; ok {
		return existing, nil
	}
	sl = &sessionSlot{state: state}
	shard.sessions[sessionID] = sl
	logger.Info(ctx, "session restored from snapshot", zap.String("session_id", sessionID))
	return sl, nil
}

// Get returns the current state of a session. The returned state must be treated
// as read-only.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*model.SessionState, error) {
	sl, err := s.slot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.removed {
		return nil, appErr.SessionNotFoundError(sessionID)
	}
	return sl.state, nil
}

// Put stores a new or replacement state.
func (s *SessionStore) Put(ctx context.Context, state *model.SessionState) error {
	if state == nil || state.SessionID == "" {
		return appErr.ValidationError("session_id", "required")
	}
	shard := s.shardFor(state.SessionID)
	shard.mu.Lock()
	sl, ok := shard.sessions[state.SessionID]
	if !ok {
		sl = &sessionSlot{}
		shard.sessions[state.SessionID] = sl
	}
	shard.mu.Unlock()

	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.state = state
	sl.removed = false
	s.persist(ctx, state)
	return nil
}

// WithLock runs fn with exclusive access to one session and stores the state it
// returns. When fn fails nothing is stored and its error is returned.
func (s *SessionStore) WithLock(ctx context.Context, sessionID string, fn func(*model.SessionState) (*model.SessionState, error)) (*model.SessionState, error) {
	sl, err := s.slot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.removed {
		return nil, appErr.SessionNotFoundError(sessionID)
	}

	next, err := fn(sl.state)
	if err != nil {
		return nil, err
	}
	if next != nil && next != sl.state {
		sl.state = next
		s.persist(ctx, next)
	}
	return sl.state, nil
}

// Delete drops a session from memory and from snapshots.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) {
	shard := s.shardFor(sessionID)
	shard.mu.Lock()
	sl, ok := shard.sessions[sessionID]
	delete(shard.sessions, sessionID)
	shard.mu.Unlock()
	if ok {
		sl.mu.Lock()
		sl.removed = true
		sl.mu.Unlock()
	}
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, sessionID); err != nil {
			logger.Warn(ctx, "delete session snapshot failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

// Len returns the number of sessions held in memory.
func (s *SessionStore) Len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		n += len(shard.sessions)
		shard.mu.RUnlock()
	}
	return n
}

// EvictPolicy says when a session may leave memory.
type EvictPolicy struct {
	// FinishedTTL is measured from ended_at.
	FinishedTTL time.Duration
	// AbandonedAfter is measured from started_at for sessions that never ended.
	// Zero keeps unfinished sessions.
	AbandonedAfter time.Duration
}

func (p EvictPolicy) expired(st *model.SessionState, now time.Time) bool {
	if st == nil {
		return false
	}
	if st.EndedAt != nil {
		return st.EndedAt.Before(now.Add(-p.FinishedTTL))
	}
	return p.AbandonedAfter > 0 && st.StartedAt.Before(now.Add(-p.AbandonedAfter))
}

// Evict moves expired sessions out of memory in two steps. Candidates are
// collected first; release then runs outside every store lock and a session only
// leaves memory once release returns nil. A session written to after it was
// collected, or busy inside WithLock, stays for the next sweep. Removed sessions
// lose their snapshot and are passed to onEvicted.
func (s *SessionStore) Evict(ctx context.Context, policy EvictPolicy, release func(*model.SessionState) error, onEvicted func(*model.SessionState)) int {
	now := s.now()
	var candidates []*model.SessionState
	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, sl := range shard.sessions {
			if !sl.mu.TryLock() {
				continue
			}
			if !sl.removed && policy.expired(sl.state, now) {
				candidates = append(candidates, sl.state)
			}
			sl.mu.Unlock()
		}
		shard.mu.RUnlock()
	}

	evicted := 0
	for _, st := range candidates {
		if release != nil {
			if err := release(st); err != nil {
				logger.Warn(ctx, "session kept in memory", zap.String("session_id", st.SessionID), zap.Error(err))
				continue
			}
		}
		if !s.removeIfUnchanged(st) {
			continue
		}
		if s.snapshots != nil {
			if err := s.snapshots.Delete(ctx, st.SessionID); err != nil {
				logger.Warn(ctx, "delete session snapshot failed", zap.String("session_id", st.SessionID), zap.Error(err))
			}
		}
		if onEvicted != nil {
			onEvicted(st)
		}
		evicted++
	}
	if evicted > 0 {
		logger.Info(ctx, "evicted sessions", zap.Int("count", evicted))
	}
	return evicted
}

// removeIfUnchanged drops the slot of st when it still holds exactly st.
func (s *SessionStore) removeIfUnchanged(st *model.SessionState) bool {
	shard := s.shardFor(st.SessionID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	sl, ok := shard.sessions[st.SessionID]
	if !ok || !sl.mu.TryLock() {
		return false
	}
	defer sl.mu.Unlock()
	if sl.removed || sl.state != st {
		return false
	}
	sl.removed = true
	delete(shard.sessions, st.SessionID)
	return true
}

func (s *SessionStore) persist(ctx context.Context, state *model.SessionState) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Save(ctx, state); err != nil {
		logger.Warn(ctx, "save session snapshot failed", zap.String("session_id", state.SessionID), zap.Error(err))
	}
}
