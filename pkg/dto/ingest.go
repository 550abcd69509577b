package dto

// IngestRequest is one synthetic detection submitted to POST /v1/ingest.
type IngestRequest struct {
	Token      string         `json:"token"`
	Label      string         `json:"label"`
	CameraID   int64          `json:"camera_id"`
	Timestamp  int64          `json:"timestamp"` // microseconds
	Metadata   map[string]any `json:"metadata"`
	Score      float64        `json:"score"`
	Image      []byte         `json:"image"`
	ImageShape [3]int         `json:"image_shape"` // height, width, channels
	ROI        [4][2]float64  `json:"roi"`
	Analytics  string         `json:"analytics"`
}

type IngestResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
