package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Base string

const (
	BaseFace    Base = "face"
	BaseVehicle Base = "vehicle"
	BasePerson  Base = "person"
)

// Bases lists every detection category in a fixed order.
var Bases = []Base{BaseFace, BaseVehicle, BasePerson}

func ParseBase(s string) (Base, error) {
	switch b := Base(s); b {
	case BaseFace, BaseVehicle, BasePerson:
		return b, nil
	default:
		return "", fmt.Errorf("unknown base %q", s)
	}
}

// ROI is a region of interest given as four fractional corners:
// top-left, top-right, bottom-right, bottom-left.
type ROI [4][2]float64

// Valid reports whether every corner lies inside the unit square.
func (r ROI) Valid() bool {
	for _, p := range r {
		if p[0] < 0 || p[0] > 1 || p[1] < 0 || p[1] > 1 {
			return false
		}
	}
	return r[0][0] < r[2][0] && r[0][1] < r[2][1]
}

// AgeRange is an inclusive age interval.
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r AgeRange) Contains(age int) bool {
	return age >= r.Min && age <= r.Max
}

// LocalAttrs holds attributes that only live in this process.
// They are never part of the transmitted metadata.
type LocalAttrs struct {
	AgeRange *AgeRange
}

// Event is one synthetic detection, crafted locally and resolved against the
// backend index later.
type Event struct {
	LocalID   uuid.UUID `json:"local_id"`
	ID        *int64    `json:"id,omitempty"`
	Template  string    `json:"template,omitempty"`
	Base      Base      `json:"base"`
	Camera    Camera    `json:"camera"`
	Timestamp int64     `json:"timestamp"` // epoch seconds
	ROI       ROI       `json:"roi"`
	Metadata  Metadata  `json:"metadata"`
	Image     []byte    `json:"-"`
	ImageURL  string    `json:"image_url,omitempty"`

	ClusterSize *int   `json:"cluster_size,omitempty"`
	IsReference *bool  `json:"is_reference,omitempty"`
	ParentID    *int64 `json:"parent_id,omitempty"`

	NeedsResolution bool `json:"needs_resolution"`
	// Abandoned marks an event whose resolution budget ran out.
	Abandoned bool `json:"abandoned,omitempty"`

	Local LocalAttrs `json:"-"`
}

func (e *Event) Time() time.Time {
	return time.Unix(e.Timestamp, 0)
}

// Resolved reports whether the backend identity is known.
func (e *Event) Resolved() bool {
	return e.ID != nil
}

// Clone returns a copy that shares no mutable state with e.
func (e *Event) Clone() Event {
	c := *e
	if e.ID != nil {
		id := *e.ID
		c.ID = &id
	}
	if e.ClusterSize != nil {
		n := *e.ClusterSize
		c.ClusterSize = &n
	}
	if e.IsReference != nil {
		b := *e.IsReference
		c.IsReference = &b
	}
	if e.ParentID != nil {
		p := *e.ParentID
		c.ParentID = &p
	}
	if e.Local.AgeRange != nil {
		r := *e.Local.AgeRange
		c.Local.AgeRange = &r
	}
	c.Metadata = e.Metadata.Clone()
	return c
}
