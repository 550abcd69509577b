package dto

import "encoding/json"

// Object is one backend-indexed detection as returned by search and lookup.
type Object struct {
	ID          int64           `json:"id"`
	ClusterSize int             `json:"cluster_size"`
	Base        string          `json:"base"`
	CameraID    int64           `json:"camera_id"`
	Timestamp   int64           `json:"timestamp"` // microseconds
	ROI         [4][2]float64   `json:"roi"`
	Metadata    json.RawMessage `json:"metadata"`
	IsReference bool            `json:"is_reference"`
	ParentID    *int64          `json:"parent_id,omitempty"`
	ImageURL    string          `json:"image_url"`
}

// TimestampSeconds converts the wire timestamp to epoch seconds.
func (o Object) TimestampSeconds() int64 {
	return o.Timestamp / 1_000_000
}

const (
	OrderNewest = "-timestamp"
	OrderOldest = "timestamp"
)

// SearchFilters narrows POST /v1/objects/:base/search.
type SearchFilters struct {
	Quality       string         `json:"quality,omitempty"` // good (default), bad, any
	Metadata      map[string]any `json:"metadata,omitempty"`
	CameraIDs     []int64        `json:"camera_ids,omitempty"`
	TimestampFrom *int64         `json:"timestamp_from,omitempty"` // microseconds
	TimestampTo   *int64         `json:"timestamp_to,omitempty"`
}

type SearchRequest struct {
	Filters  SearchFilters `json:"filters"`
	Order    string        `json:"order,omitempty"`
	PgOffset int           `json:"pgoffset"`
	PgSize   int           `json:"pgsize"`
}

// WSEvent is a WebSocket message for real-time index notifications.
type WSEvent struct {
	Type   string `json:"type"` // object_indexed
	Base   string `json:"base"`
	Object Object `json:"object"`
}
