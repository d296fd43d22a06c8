package store

import (
	"sync"
)

// SessionStore owns the ordered session list (newest first) and the current
// selection. An empty current id means nothing is selected.
type SessionStore struct {
	mu       sync.RWMutex
	sessions []Session
	current  string

	// version counts local list changes; changes keeps the ones a listing
	// started at an older version has not seen yet
	version  uint64
	listedAt uint64
	changes  []listChange
}

type listChange struct {
	version uint64
	session Session
	removed bool
}

func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Sessions returns a copy of the list in display order.
func (s *SessionStore) Sessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Session(nil), s.sessions...)
}

func (s *SessionStore) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Get looks a session up by id.
func (s *SessionStore) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return Session{}, false
	}
	return s.sessions[i], true
}

// Select makes id the current session. It returns false when id is already
// current. An empty id clears the selection.
func (s *SessionStore) Select(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.current {
		return false, nil
	}
	if id != "" && s.indexOf(id) < 0 {
		return false, ErrUnknownSession
	}
	s.current = id
	return true, nil
}

// Version identifies the current state of the local list. Pass it to
// ReplaceSince when listing sessions from the backend.
func (s *SessionStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Replace installs a freshly listed set of sessions. The selection survives
// if it is still listed and is cleared otherwise; the returned bool reports
// whether the selection changed.
func (s *SessionStore) Replace(sessions []Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(sessions, s.version)
}

// ReplaceSince installs sessions listed while the local list was at version
// since. Sessions created or removed locally after since are applied on top of
// the listing. A listing older than the one already installed is ignored.
func (s *SessionStore) ReplaceSince(sessions []Session, since uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if since < s.listedAt {
		return false
	}
	return s.replaceLocked(sessions, since)
}

func (s *SessionStore) replaceLocked(sessions []Session, since uint64) bool {
	s.sessions = append([]Session(nil), sessions...)
	kept := s.changes[:0]
	for _, c := range s.changes {
		if c.version <= since {
			continue
		}
		kept = append(kept, c)
		if c.removed {
			s.removeLocked(c.session.ID)
		} else {
			s.prependLocked(c.session)
		}
	}
	s.changes = kept
	s.listedAt = since

	if s.current != "" && s.indexOf(s.current) < 0 {
		s.current = ""
		return true
	}
	return false
}

// Prepend adds a newly created session at the head of the list.
func (s *SessionStore) Prepend(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prependLocked(session)
	s.record(listChange{session: session})
}

func (s *SessionStore) prependLocked(session Session) {
	s.removeLocked(session.ID)
	s.sessions = append([]Session{session}, s.sessions...)
}

func (s *SessionStore) removeLocked(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
	return true
}

func (s *SessionStore) record(c listChange) {
	s.version++
	c.version = s.version
	s.changes = append(s.changes, c)
}

// Remove drops id from the list. When id was selected, the new head of the list
// (or nothing) becomes current and selectionChanged is true.
func (s *SessionStore) Remove(id string) (newCurrent string, selectionChanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.removeLocked(id) {
		return s.current, false
	}
	s.record(listChange{session: Session{ID: id}, removed: true})
	if s.current != id {
		return s.current, false
	}
	s.current = ""
	if len(s.sessions) > 0 {
		s.current = s.sessions[0].ID
	}
	return s.current, true
}

func (s *SessionStore) indexOf(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}
