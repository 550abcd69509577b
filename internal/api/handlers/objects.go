package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/fdsender/internal/auth"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/observability"
	"github.com/your-org/fdsender/internal/storage"
	"github.com/your-org/fdsender/pkg/dto"
)

const (
	defaultPageSize = 250
	maxPageSize     = 1000
)

// TaskQueue hands accepted objects to the indexer.
type TaskQueue interface {
	PublishIngest(ctx context.Context, task models.IngestTask) error
}

type ObjectHandler struct {
	index storage.ObjectIndex
	blobs storage.BlobStore
	queue TaskQueue
	token string
	now   func() time.Time
}

func NewObjectHandler(index storage.ObjectIndex, blobs storage.BlobStore, queue TaskQueue, token string) *ObjectHandler {
	return &ObjectHandler{index: index, blobs: blobs, queue: queue, token: token, now: time.Now}
}

// unprocessable is a rejected ingest payload.
type unprocessable string

func (u unprocessable) Error() string { return "Unprocessable entity: " + string(u) }

func (h *ObjectHandler) Ingest(c *gin.Context) {
	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	task, ext, err := h.validate(ctx, &req)
	var u unprocessable
	if errors.As(err, &u) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": u.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	task.ImageKey = path.Join("objects", string(task.Base), task.TaskID.String()+ext)
	if err := h.blobs.PutObject(ctx, task.ImageKey, req.Image, contentType(ext)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store image: " + err.Error()})
		return
	}
	if err := h.queue.PublishIngest(ctx, *task); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue task: " + err.Error()})
		return
	}

	observability.ObjectsIngested.WithLabelValues(string(task.Base)).Inc()
	slog.Debug("object accepted", "task_id", task.TaskID, "base", task.Base, "camera_id", task.CameraID)

	c.JSON(http.StatusOK, dto.IngestResponse{Status: "accepted", TaskID: task.TaskID.String()})
}

func (h *ObjectHandler) validate(ctx context.Context, req *dto.IngestRequest) (*models.IngestTask, string, error) {
	if !auth.Valid(h.token, req.Token) {
		return nil, "", unprocessable("invalid token")
	}
	base, err := models.ParseBase(req.Label)
	if err != nil {
		return nil, "", unprocessable(err.Error())
	}
	if req.Timestamp <= 0 {
		return nil, "", unprocessable("timestamp must be positive")
	}

	cam, err := h.index.GetCamera(ctx, req.CameraID)
	if err != nil {
		return nil, "", fmt.Errorf("get camera: %w", err)
	}
	if cam == nil {
		return nil, "", unprocessable(fmt.Sprintf("unknown camera %d", req.CameraID))
	}
	if cam.Archived {
		return nil, "", unprocessable(fmt.Sprintf("camera %d is archived", req.CameraID))
	}

	if len(req.Image) == 0 {
		return nil, "", unprocessable("empty image")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(req.Image))
	if err != nil {
		return nil, "", unprocessable("undecodable image")
	}
	if req.ImageShape[0] != cfg.Height || req.ImageShape[1] != cfg.Width {
		return nil, "", unprocessable(fmt.Sprintf("image shape %v does not match %dx%d", req.ImageShape, cfg.Height, cfg.Width))
	}

	roi := models.ROI(req.ROI)
	if !roi.Valid() {
		return nil, "", unprocessable("malformed roi")
	}
	if _, err := models.MetadataFromMap(req.Metadata); err != nil {
		return nil, "", unprocessable(err.Error())
	}

	ext := ".jpg"
	if format == "png" {
		ext = ".png"
	}
	return &models.IngestTask{
		TaskID:     uuid.New(),
		Base:       base,
		CameraID:   req.CameraID,
		Timestamp:  req.Timestamp,
		ROI:        roi,
		Metadata:   req.Metadata,
		Score:      req.Score,
		Analytics:  req.Analytics,
		AcceptedAt: h.now(),
	}, ext, nil
}

func (h *ObjectHandler) Search(c *gin.Context) {
	base, err := models.ParseBase(c.Param("base"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q := storage.ObjectQuery{
		Quality:   req.Filters.Quality,
		Metadata:  req.Filters.Metadata,
		CameraIDs: req.Filters.CameraIDs,
		From:      req.Filters.TimestampFrom,
		To:        req.Filters.TimestampTo,
		Offset:    max(req.PgOffset, 0),
		Limit:     req.PgSize,
	}
	switch req.Order {
	case "", dto.OrderNewest:
	case dto.OrderOldest:
		q.Oldest = true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order " + req.Order})
		return
	}
	switch models.Quality(q.Quality) {
	case "", models.QualityGood, models.QualityBad, models.QualityAny:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quality " + q.Quality})
		return
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	q.Limit = min(q.Limit, maxPageSize)

	objects, err := h.index.SearchObjects(c.Request.Context(), base, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.Object, 0, len(objects))
	for _, o := range objects {
		resp = append(resp, o.DTO())
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ObjectHandler) Get(c *gin.Context) {
	obj, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, obj.DTO())
}

// Image serves the stored image of an indexed object.
func (h *ObjectHandler) Image(c *gin.Context) {
	obj, ok := h.lookup(c)
	if !ok {
		return
	}

	data, err := h.blobs.GetObject(c.Request.Context(), obj.ImageKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	c.Data(http.StatusOK, contentType(path.Ext(obj.ImageKey)), data)
}

func (h *ObjectHandler) lookup(c *gin.Context) (*models.Object, bool) {
	base, err := models.ParseBase(c.Param("base"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid object id"})
		return nil, false
	}

	obj, err := h.index.GetObject(c.Request.Context(), base, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if obj == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
		return nil, false
	}
	return obj, true
}

func contentType(ext string) string {
	if ext == ".png" {
		return "image/png"
	}
	return "image/jpeg"
}
