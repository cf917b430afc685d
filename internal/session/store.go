package session

import (
	"sort"
	"sync"
)

// Store is the in-memory session table. The table map has its own lock;
// each record is additionally guarded by a per-id mutex so writers for
// different sessions never contend.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	locks   sync.Map // map[string]*sync.Mutex
}

// NewStore returns an empty table.
func NewStore() *Store {
	return &Store{records: make(map[string]*Record)}
}

func (s *Store) lockFor(id string) *sync.Mutex {
	if existing, ok := s.locks.Load(id); ok {
		return existing.(*sync.Mutex)
	}
	actual, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (s *Store) lookup(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// insert adds rec when id is unused. Caller holds the per-id lock.
func (s *Store) insert(rec *Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return false
	}
	s.records[rec.ID] = rec
	return true
}

func (s *Store) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// view copies the record for id under its per-id lock.
func (s *Store) view(id string) (Record, bool) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	rec, ok := s.lookup(id)
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// snapshot copies every record.
func (s *Store) snapshot() []Record {
	ids := s.ids()
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.view(id); ok {
			out = append(out, rec)
		}
	}
	return out
}
