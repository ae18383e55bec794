package flow

import "sync"

// Registry holds at most one session per user and serializes event handling
// for each user. Different users proceed in parallel.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	locks    map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session), locks: make(map[int64]*userLock)}
}

// lock blocks until the caller owns userID's lane and returns the release
// func. Lanes are dropped once nobody holds or waits on them.
func (r *Registry) lock(userID int64) func() {
	r.mu.Lock()
	l, ok := r.locks[userID]
	if !ok {
		l = &userLock{}
		r.locks[userID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, userID)
		}
		r.mu.Unlock()
	}
}

// get returns a private copy of the user's session.
func (r *Registry) get(userID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

func (r *Registry) put(s *Session) {
	r.mu.Lock()
	r.sessions[s.UserID] = s.clone()
	r.mu.Unlock()
}

func (r *Registry) drop(userID int64) {
	r.mu.Lock()
	delete(r.sessions, userID)
	r.mu.Unlock()
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
