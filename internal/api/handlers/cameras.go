package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/storage"
	"github.com/your-org/fdsender/pkg/dto"
)

type CameraHandler struct {
	index storage.ObjectIndex
}

func NewCameraHandler(index storage.ObjectIndex) *CameraHandler {
	return &CameraHandler{index: index}
}

func (h *CameraHandler) Create(c *gin.Context) {
	var req dto.CreateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cam := &models.Camera{Name: req.Name, Active: true, Archived: req.Archived}
	if req.Active != nil {
		cam.Active = *req.Active
	}

	err := h.index.CreateCamera(c.Request.Context(), cam)
	if errors.Is(err, storage.ErrCameraExists) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, cameraToResponse(cam))
}

func (h *CameraHandler) List(c *gin.Context) {
	cameras, err := h.index.ListCameras(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.CameraResponse, 0, len(cameras))
	for i := range cameras {
		resp = append(resp, cameraToResponse(&cameras[i]))
	}
	c.JSON(http.StatusOK, dto.CameraListResponse{Cameras: resp, Total: len(resp)})
}

func cameraToResponse(cam *models.Camera) dto.CameraResponse {
	return dto.CameraResponse{
		ID:       cam.ID,
		Name:     cam.Name,
		Active:   cam.Active,
		Archived: cam.Archived,
	}
}
