package ventilation

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrWorksheetNotFound = errors.New("worksheet not found")

// WorksheetStore holds live worksheets. Update runs each event under the
// store lock so that one event completes before the next starts.
type WorksheetStore struct {
	mu     sync.Mutex
	sheets map[uuid.UUID]*Worksheet
}

func NewWorksheetStore() *WorksheetStore {
	return &WorksheetStore{sheets: make(map[uuid.UUID]*Worksheet)}
}

func (s *WorksheetStore) Put(w *Worksheet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[w.ID] = w
}

// Update applies fn to the worksheet and returns a snapshot taken before the
// lock is released.
func (s *WorksheetStore) Update(id uuid.UUID, fn func(w *Worksheet) error) (WorksheetView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.sheets[id]
	if !ok {
		return WorksheetView{}, ErrWorksheetNotFound
	}
	if fn != nil {
		if err := fn(w); err != nil {
			return WorksheetView{}, err
		}
	}
	return w.View(), nil
}

func (s *WorksheetStore) Get(id uuid.UUID) (WorksheetView, error) {
	return s.Update(id, nil)
}

func (s *WorksheetStore) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sheets[id]; !ok {
		return ErrWorksheetNotFound
	}
	delete(s.sheets, id)
	return nil
}

func (s *WorksheetStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sheets)
}

// Sweep removes worksheets whose last event is older than cutoff and returns
// how many were removed.
func (s *WorksheetStore) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, w := range s.sheets {
		if w.UpdatedAt.Before(cutoff) {
			delete(s.sheets, id)
			n++
		}
	}
	return n
}
