// Package store keeps every event this process created or imported.
// It only grows; resolution updates entries in place.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/pkg/dto"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrIDTaken      = errors.New("backend id already owned by another event")
)

type Store struct {
	mu      sync.RWMutex
	events  []*models.Event
	byLocal map[uuid.UUID]*models.Event
	byID    map[int64]*models.Event
	now     func() time.Time
}

func New() *Store {
	return &Store{
		byLocal: make(map[uuid.UUID]*models.Event),
		byID:    make(map[int64]*models.Event),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for timeslice windows.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Append stores copies of events. Events carrying a backend id that is
// already owned are skipped and reported.
func (s *Store) Append(events ...models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := range events {
		ev := events[i].Clone()
		if ev.ID != nil {
			if _, taken := s.byID[*ev.ID]; taken {
				errs = append(errs, fmt.Errorf("append object %d: %w", *ev.ID, ErrIDTaken))
				continue
			}
			s.byID[*ev.ID] = &ev
		}
		s.events = append(s.events, &ev)
		s.byLocal[ev.LocalID] = &ev
	}
	return errors.Join(errs...)
}

// Unresolved returns copies of events of base still awaiting identity.
func (s *Store) Unresolved(base models.Base) []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Event
	for _, ev := range s.events {
		if ev.Base == base && ev.NeedsResolution {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// Resolve copies the backend identity and cluster state of obj onto the
// event with localID.
func (s *Store) Resolve(localID uuid.UUID, obj dto.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.byLocal[localID]
	if !ok {
		return fmt.Errorf("resolve %s: %w", localID, ErrUnknownEvent)
	}
	if !ev.NeedsResolution {
		return fmt.Errorf("resolve %s: already settled", localID)
	}
	if owner, taken := s.byID[obj.ID]; taken && owner != ev {
		return fmt.Errorf("resolve %s to object %d: %w", localID, obj.ID, ErrIDTaken)
	}

	if err := ApplyObject(ev, obj); err != nil {
		return fmt.Errorf("resolve %s: %w", localID, err)
	}
	ev.NeedsResolution = false
	s.byID[obj.ID] = ev
	return nil
}

// Abandon settles events whose resolution budget ran out. They keep no
// identity and never return to the unresolved set.
func (s *Store) Abandon(localIDs ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range localIDs {
		ev, ok := s.byLocal[id]
		if !ok || !ev.NeedsResolution {
			continue
		}
		ev.NeedsResolution = false
		ev.Abandoned = true
	}
}

// Refresh re-applies backend state to an already resolved event, e.g. after
// a cluster formed. It reports whether an event owns obj.ID.
func (s *Store) Refresh(obj dto.Object) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.byID[obj.ID]
	if !ok {
		return false, nil
	}
	if err := ApplyObject(ev, obj); err != nil {
		return true, fmt.Errorf("refresh object %d: %w", obj.ID, err)
	}
	return true, nil
}

func (s *Store) HasID(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// Get returns copies of the given events in argument order, skipping
// unknown ids.
func (s *Store) Get(localIDs ...uuid.UUID) []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Event, 0, len(localIDs))
	for _, id := range localIDs {
		if ev, ok := s.byLocal[id]; ok {
			out = append(out, ev.Clone())
		}
	}
	return out
}

func (s *Store) All() []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Clone())
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// ApplyObject copies backend-owned fields onto ev and derives the
// is_reference and matched metadata flags from the cluster fields.
func ApplyObject(ev *models.Event, obj dto.Object) error {
	var meta models.Metadata
	if len(obj.Metadata) > 0 && string(obj.Metadata) != "null" {
		if err := json.Unmarshal(obj.Metadata, &meta); err != nil {
			return fmt.Errorf("decode metadata of object %d: %w", obj.ID, err)
		}
	}

	id := obj.ID
	size := obj.ClusterSize
	ref := obj.IsReference
	matched := obj.ClusterSize > 1
	meta.IsReference = &ref
	meta.Matched = &matched

	ev.ID = &id
	ev.ClusterSize = &size
	ev.IsReference = &ref
	ev.ParentID = nil
	if obj.ParentID != nil {
		p := *obj.ParentID
		ev.ParentID = &p
	}
	ev.Metadata = meta
	ev.ROI = obj.ROI
	ev.ImageURL = obj.ImageURL
	return nil
}
