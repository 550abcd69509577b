package store

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/your-org/fdsender/internal/models"
)

var ErrUnknownTimeslice = errors.New("unknown timeslice")

var timeslices = map[string]time.Duration{
	"5m":  5 * time.Minute,
	"1h":  time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// Timeslice returns the rolling window named by s.
func Timeslice(s string) (time.Duration, error) {
	d, ok := timeslices[s]
	if !ok {
		return 0, fmt.Errorf("timeslice %q: %w", s, ErrUnknownTimeslice)
	}
	return d, nil
}

// Query selects events for counting. From, when set, overrides Timeslice.
// An empty Base matches every base.
type Query struct {
	Base      models.Base
	CameraIDs []int64
	Timeslice string
	From      *time.Time
	To        *time.Time
	Meta      models.MetaFilter
}

type window struct {
	from, to *time.Time
}

func (w window) contains(t time.Time) bool {
	if w.from != nil && t.Before(*w.from) {
		return false
	}
	if w.to != nil && t.After(*w.to) {
		return false
	}
	return true
}

func (q Query) window(now time.Time) (window, error) {
	w := window{from: q.From, to: q.To}
	if q.From != nil || q.Timeslice == "" {
		return w, nil
	}
	d, err := Timeslice(q.Timeslice)
	if err != nil {
		return window{}, err
	}
	from := now.Add(-d)
	w.from = &from
	if w.to == nil {
		w.to = &now
	}
	return w, nil
}

// Count returns how many stored events satisfy q. Unresolved and abandoned
// events count too: they were sent.
func (s *Store) Count(q Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, err := q.window(s.now())
	if err != nil {
		return 0, fmt.Errorf("count objects: %w", err)
	}

	n := 0
	for _, ev := range s.events {
		if matches(ev, q, w) {
			n++
		}
	}
	return n, nil
}

// CountForAges counts faces whose age lies in [minAge, maxAge]. Other
// fields of q narrow the selection as in Count.
func (s *Store) CountForAges(minAge, maxAge int, q Query) (int, error) {
	if minAge > maxAge {
		return 0, fmt.Errorf("count for ages: min %d > max %d", minAge, maxAge)
	}
	q.Base = models.BaseFace
	q.Meta.Age = &models.AgeRange{Min: minAge, Max: maxAge}
	return s.Count(q)
}

func matches(ev *models.Event, q Query, w window) bool {
	if q.Base != "" && ev.Base != q.Base {
		return false
	}
	if len(q.CameraIDs) > 0 && !slices.Contains(q.CameraIDs, ev.Camera.ID) {
		return false
	}
	if !w.contains(ev.Time()) {
		return false
	}

	f := q.Meta
	if f.Age != nil {
		if !ageMatches(ev, *f.Age) {
			return false
		}
		f.Age = nil
	}
	return f.Matches(ev.Metadata)
}

// ageMatches tests the backend age first. Until the backend reports one, an
// event crafted from an age template matches when its local range lies
// inside the requested one.
func ageMatches(ev *models.Event, r models.AgeRange) bool {
	if ev.Metadata.Age != nil {
		return r.Contains(*ev.Metadata.Age)
	}
	if l := ev.Local.AgeRange; l != nil {
		return r.Contains(l.Min) && r.Contains(l.Max)
	}
	return false
}
