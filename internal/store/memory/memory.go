package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spigell/peermatch/internal/profile"
	"github.com/spigell/peermatch/internal/store"
)

type ledgerKey struct {
	personID int64
	action   string
}

// Store is an in-process implementation of store.Store and store.Ledger.
type Store struct {
	mu        sync.RWMutex
	profiles  map[int64]*profile.Profile
	languages map[int64]string
	ledger    map[ledgerKey]time.Time

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		profiles:  make(map[int64]*profile.Profile),
		languages: make(map[int64]string),
		ledger:    make(map[ledgerKey]time.Time),
		now:       time.Now,
	}
}

// WithClock replaces the clock used for LastUpdated.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Get(_ context.Context, personID int64) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[personID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *Store) Put(_ context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := p.Clone()
	if stored.Language == "" {
		stored.Language = profile.DefaultLanguage
	}
	if stored.Skills == nil {
		stored.Skills = []string{}
	}
	if stored.Interests == nil {
		stored.Interests = []string{}
	}
	stored.LastUpdated = s.now().UTC()
	s.profiles[p.PersonID] = stored
	p.LastUpdated = stored.LastUpdated
	return nil
}

func (s *Store) Delete(_ context.Context, personID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, personID)
	delete(s.languages, personID)
	s.forgetLocked(personID)
	return nil
}

func (s *Store) ListExcept(_ context.Context, personID int64, excludeBlocked bool) ([]*profile.Profile, error) {
	return s.list(func(p *profile.Profile) bool {
		return p.PersonID != personID && !(excludeBlocked && p.IsBlocked)
	}), nil
}

func (s *Store) ListMissingEmbedding(_ context.Context) ([]*profile.Profile, error) {
	return s.list(func(p *profile.Profile) bool { return !p.HasEmbedding() }), nil
}

func (s *Store) SetEmbedding(_ context.Context, personID int64, vector []float32, seen time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[personID]
	if !ok || !p.LastUpdated.Equal(seen) {
		return false, nil
	}
	p.Embedding = append([]float32(nil), vector...)
	return true, nil
}

func (s *Store) Block(_ context.Context, personID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[personID]
	if !ok {
		return store.ErrNotFound
	}
	p.IsBlocked = true
	return nil
}

func (s *Store) SetLanguage(_ context.Context, personID int64, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code = profile.NormalizeLanguage(code)
	s.languages[personID] = code
	if p, ok := s.profiles[personID]; ok {
		p.Language = code
	}
	return nil
}

func (s *Store) GetLanguage(_ context.Context, personID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if code, ok := s.languages[personID]; ok {
		return code, nil
	}
	if p, ok := s.profiles[personID]; ok {
		return profile.NormalizeLanguage(p.Language), nil
	}
	return profile.DefaultLanguage, nil
}

func (s *Store) Stats(_ context.Context) (*store.Stats, error) {
	all := s.list(func(*profile.Profile) bool { return true })
	lists := make([][]string, 0, len(all))
	for _, p := range all {
		lists = append(lists, p.Skills)
	}
	return &store.Stats{TotalUsers: len(all), TopSkill: store.TopSkill(lists)}, nil
}

func (s *Store) LastUsed(_ context.Context, personID int64, action string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.ledger[ledgerKey{personID: personID, action: action}]
	return at, ok, nil
}

func (s *Store) SetLastUsed(_ context.Context, personID int64, action string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger[ledgerKey{personID: personID, action: action}] = at
	return nil
}

func (s *Store) Forget(_ context.Context, personID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgetLocked(personID)
	return nil
}

func (s *Store) forgetLocked(personID int64) {
	for key := range s.ledger {
		if key.personID == personID {
			delete(s.ledger, key)
		}
	}
}

// list returns matching profiles ordered by person id, like the SQL store.
func (s *Store) list(keep func(*profile.Profile) bool) []*profile.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonID < out[j].PersonID })
	return out
}
