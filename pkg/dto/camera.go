package dto

type CreateCameraRequest struct {
	Name     string `json:"name" binding:"required"`
	Active   *bool  `json:"active,omitempty"`
	Archived bool   `json:"archived"`
}

type CameraResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Archived bool   `json:"archived"`
}

type CameraListResponse struct {
	Cameras []CameraResponse `json:"cameras"`
	Total   int              `json:"total"`
}
