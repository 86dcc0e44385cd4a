package sync

import (
	"sync"
	"sync/atomic"
	"time"
)

// Session is the process-wide synchronization state: whether a cycle is
// running and when the last fully successful one finished. A single
// Session is shared by every trigger.
type Session struct {
	syncing atomic.Bool

	mu       sync.RWMutex
	lastSync time.Time
}

func NewSession() *Session { return &Session{} }

// TryBegin claims the session for one cycle. It returns false when another
// cycle holds it.
func (s *Session) TryBegin() bool {
	return s.syncing.CompareAndSwap(false, true)
}

// End releases the session.
func (s *Session) End() { s.syncing.Store(false) }

func (s *Session) IsSyncing() bool { return s.syncing.Load() }

// LastSyncTime is the completion time of the last fully successful cycle,
// zero if there was none.
func (s *Session) LastSyncTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

func (s *Session) setLastSync(t time.Time) {
	s.mu.Lock()
	if t.After(s.lastSync) {
		s.lastSync = t
	}
	s.mu.Unlock()
}
