package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/fdsender/pkg/dto"
)

// Object is one indexed detection as the backend stores it.
type Object struct {
	ID          int64     `json:"id" db:"id"`
	Base        Base      `json:"base" db:"base"`
	CameraID    int64     `json:"camera_id" db:"camera_id"`
	Timestamp   int64     `json:"timestamp" db:"timestamp"` // microseconds
	ROI         ROI       `json:"roi" db:"roi"`
	Metadata    Metadata  `json:"metadata" db:"metadata"`
	Score       float64   `json:"score" db:"score"`
	ClusterSize int       `json:"cluster_size" db:"cluster_size"`
	IsReference bool      `json:"is_reference" db:"is_reference"`
	ParentID    *int64    `json:"parent_id,omitempty" db:"parent_id"`
	ImageKey    string    `json:"image_key" db:"image_key"`
	Embedding   []float32 `json:"-" db:"embedding"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ImageURL is the backend path serving the object's image.
func (o Object) ImageURL() string {
	return fmt.Sprintf("/v1/objects/%s/%d/image", o.Base, o.ID)
}

// DTO renders the object the way search and lookup return it.
func (o Object) DTO() dto.Object {
	meta, err := json.Marshal(o.Metadata)
	if err != nil {
		meta = []byte("{}")
	}
	return dto.Object{
		ID:          o.ID,
		ClusterSize: o.ClusterSize,
		Base:        string(o.Base),
		CameraID:    o.CameraID,
		Timestamp:   o.Timestamp,
		ROI:         o.ROI,
		Metadata:    meta,
		IsReference: o.IsReference,
		ParentID:    o.ParentID,
		ImageURL:    o.ImageURL(),
	}
}

// IngestTask is the message published to NATS for the indexer.
type IngestTask struct {
	TaskID     uuid.UUID      `json:"task_id"`
	Base       Base           `json:"base"`
	CameraID   int64          `json:"camera_id"`
	Timestamp  int64          `json:"timestamp"` // microseconds
	ROI        ROI            `json:"roi"`
	Metadata   map[string]any `json:"metadata"`
	Score      float64        `json:"score"`
	ImageKey   string         `json:"image_key"`
	Analytics  string         `json:"analytics"`
	AcceptedAt time.Time      `json:"accepted_at"`
}

// SentNotice announces one dispatched batch to other processes watching
// the same backend.
type SentNotice struct {
	RunID     uuid.UUID `json:"run_id"`
	Template  string    `json:"template"`
	Base      Base      `json:"base"`
	CameraID  int64     `json:"camera_id"`
	Count     int       `json:"count"`
	Timestamp int64     `json:"timestamp"` // epoch seconds
	SentAt    time.Time `json:"sent_at"`
}
