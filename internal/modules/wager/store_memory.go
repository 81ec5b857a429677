package wager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded SessionStore. It backs the unit tests and
// doubles as a storeless single-process mode.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

var _ SessionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.Session)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, found := s.sessions[id]
	if !found {
		return domain.Session{}, domain.ErrNotFound
	}

	return session.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.sessions[session.ID]; found {
		return domain.ErrStoreUnavailable
	}

	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *MemoryStore) CASUpdate(_ context.Context, session domain.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.sessions[session.ID]
	if !found {
		return false, domain.ErrNotFound
	}

	if current.Version != session.Version {
		return false, nil
	}

	updated := session.Clone()
	updated.Version = session.Version + 1
	s.sessions[session.ID] = updated

	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.sessions[id]
	if !found {
		return false, domain.ErrNotFound
	}

	if current.Version != expectedVersion {
		return false, nil
	}

	delete(s.sessions, id)
	return true, nil
}

func (s *MemoryStore) FindOldestWaiting(_ context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []domain.Session
	for _, session := range s.sessions {
		if session.State == domain.StateWaiting && len(session.Participants) < 2 {
			candidates = append(candidates, session)
		}
	}

	if len(candidates) == 0 {
		return domain.Session{}, domain.ErrNotFound
	}

	// Oldest first to minimize wait skew.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	return candidates[0].Clone(), nil
}

func (s *MemoryStore) FindActiveByAccount(_ context.Context, accountID uuid.UUID) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []domain.Session
	for _, session := range s.sessions {
		if session.IsTerminal() {
			continue
		}

		if session.Participant(accountID) != nil {
			candidates = append(candidates, session)
		}
	}

	if len(candidates) == 0 {
		return domain.Session{}, domain.ErrNotFound
	}

	// Oldest first so every caller converges on the same session when a
	// race left the account in more than one.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	return candidates[0].Clone(), nil
}

func (s *MemoryStore) FindExpired(_ context.Context, now time.Time, limit int) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []domain.Session
	for _, session := range s.sessions {
		if session.IsTerminal() || session.DeadlineAt.After(now) {
			continue
		}

		expired = append(expired, session.Clone())
		if limit > 0 && len(expired) == limit {
			break
		}
	}

	return expired, nil
}
