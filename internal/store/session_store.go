package store

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"retroboard/internal/retro"
	"retroboard/internal/roster"
)

// SessionStore serializes mutations of session documents. Update is atomic
// per session within this process: the updater runs against a deep clone,
// and only the fully mutated clone becomes visible through the cache or the
// persistence collaborator. There is no cross-process lock; concurrent
// writers on other instances are reconciled at receive time.
type SessionStore struct {
	persistence Persistence
	broadcast   Broadcaster
	resolver    *roster.Resolver

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string]retro.Document
}

// NewSessionStore wires the store to its collaborators. broadcast may be
// nil for local-only operation.
func NewSessionStore(persistence Persistence, broadcast Broadcaster) *SessionStore {
	return &SessionStore{
		persistence: persistence,
		broadcast:   broadcast,
		resolver:    roster.New(),
		locks:       map[string]*sync.Mutex{},
		cache:       map[string]retro.Document{},
	}
}

func key(teamID, sessionID string) string {
	return teamID + "/" + sessionID
}

func (s *SessionStore) sessionLock(k string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[k]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[k] = lock
	}
	return lock
}

// Read returns the freshest known document for the session, preferring the
// in-memory cache over persistence.
func (s *SessionStore) Read(ctx context.Context, teamID, sessionID string) (retro.Document, bool, error) {
	k := key(teamID, sessionID)
	s.mu.Lock()
	cached, hit := s.cache[k]
	s.mu.Unlock()
	if hit {
		return cached.Clone(), true, nil
	}
	doc, found, err := s.persistence.GetDocument(ctx, teamID, sessionID)
	if err != nil {
		return retro.Document{}, false, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	if !found {
		return retro.Document{}, false, nil
	}
	s.mu.Lock()
	s.cache[k] = doc.Clone()
	s.mu.Unlock()
	return doc, true, nil
}

// Update atomically applies the updater to the session document: load the
// freshest copy, deep-clone, ensure the roster contains the current user,
// mutate, stamp, persist, cache, broadcast. The stamp is the timestamp
// PrimeIfNewer compares against. The returned document is the persisted
// state. A broadcast failure is logged and the update still succeeds: a
// disconnected client keeps working in degraded local-only mode.
func (s *SessionStore) Update(ctx context.Context, teamID, sessionID string, current roster.Identity, updater func(*retro.Document) error) (retro.Document, error) {
	k := key(teamID, sessionID)
	lock := s.sessionLock(k)
	lock.Lock()
	defer lock.Unlock()

	doc, found, err := s.Read(ctx, teamID, sessionID)
	if err != nil {
		return retro.Document{}, err
	}
	if !found {
		return retro.Document{}, ErrNotFound
	}

	next := doc.Clone()
	next.Participants = s.resolver.Resolve(next.Participants, current, nil)
	if err := updater(&next); err != nil {
		return retro.Document{}, err
	}
	next.UpdatedAt = time.Now().UTC()

	if err := s.persistence.SaveDocument(ctx, teamID, sessionID, next); err != nil {
		return retro.Document{}, fmt.Errorf("save session %s: %w", sessionID, err)
	}
	s.mu.Lock()
	s.cache[k] = next.Clone()
	s.mu.Unlock()

	if s.broadcast != nil {
		if err := s.broadcast.PublishDocument(ctx, next); err != nil {
			log.Printf("broadcast session %s failed, continuing local-only: %v", sessionID, err)
		}
	}
	return next, nil
}

// Create persists a brand new session document and announces it.
func (s *SessionStore) Create(ctx context.Context, doc retro.Document) (retro.Document, error) {
	k := key(doc.TeamID, doc.ID)
	lock := s.sessionLock(k)
	lock.Lock()
	defer lock.Unlock()

	doc.UpdatedAt = time.Now().UTC()
	if err := s.persistence.SaveDocument(ctx, doc.TeamID, doc.ID, doc); err != nil {
		return retro.Document{}, fmt.Errorf("create session %s: %w", doc.ID, err)
	}
	s.mu.Lock()
	s.cache[k] = doc.Clone()
	s.mu.Unlock()
	if s.broadcast != nil {
		if err := s.broadcast.PublishDocument(ctx, doc); err != nil {
			log.Printf("broadcast session %s failed, continuing local-only: %v", doc.ID, err)
		}
	}
	return doc, nil
}

// Prime writes a reconciled document back into the cache so later
// snapshot-dependent reads stay consistent with what the client displays.
// It does not persist or broadcast.
func (s *SessionStore) Prime(teamID, sessionID string, doc retro.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key(teamID, sessionID)] = doc.Clone()
}

// PrimeIfNewer is Prime with a staleness guard: a reconciled document only
// replaces the cached one when it is at least as fresh, so a straggler
// broadcast cannot roll the cache back over a newer local write.
func (s *SessionStore) PrimeIfNewer(teamID, sessionID string, doc retro.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(teamID, sessionID)
	if cached, ok := s.cache[k]; ok && cached.UpdatedAt.After(doc.UpdatedAt) {
		return
	}
	s.cache[k] = doc.Clone()
}

// Forget drops a session from the cache, typically after close.
func (s *SessionStore) Forget(teamID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key(teamID, sessionID))
	delete(s.locks, key(teamID, sessionID))
}
