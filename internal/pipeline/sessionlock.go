package pipeline

import "sync"

// sessionLocks serializes turns within one (user, conversation) pair.
// Session context is mutated incrementally, so turns for the same
// conversation must run in submission order; turns for different
// conversations proceed in parallel.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// acquire locks the named session and returns its unlock func. Lock entries
// are refcounted so the map stays bounded by in-flight sessions.
func (s *sessionLocks) acquire(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sessionLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
