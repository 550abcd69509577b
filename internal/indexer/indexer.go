// Package indexer turns accepted ingest tasks into indexed, clustered
// objects.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/observability"
	"github.com/your-org/fdsender/internal/storage"
)

// Broadcaster fans indexed objects out to live subscribers.
type Broadcaster interface {
	BroadcastObject(obj models.Object)
}

type Indexer struct {
	index     storage.ObjectIndex
	blobs     storage.BlobStore
	threshold float64
	hub       Broadcaster
}

func New(index storage.ObjectIndex, blobs storage.BlobStore, threshold float64) *Indexer {
	return &Indexer{index: index, blobs: blobs, threshold: threshold}
}

func (ix *Indexer) SetBroadcaster(b Broadcaster) {
	ix.hub = b
}

// Handle indexes one ingest task. It matches queue.TaskHandler.
func (ix *Indexer) Handle(ctx context.Context, task models.IngestTask) error {
	data, err := ix.blobs.GetObject(ctx, task.ImageKey)
	if err != nil {
		return fmt.Errorf("index task %s: %w", task.TaskID, err)
	}

	meta, err := models.MetadataFromMap(task.Metadata)
	if err != nil {
		return fmt.Errorf("index task %s: %w", task.TaskID, err)
	}

	obj := &models.Object{
		Base:      task.Base,
		CameraID:  task.CameraID,
		Timestamp: task.Timestamp,
		ROI:       task.ROI,
		Metadata:  meta,
		Score:     task.Score,
		ImageKey:  task.ImageKey,
		Embedding: Embed(data),
	}
	if err := ix.index.IndexObject(ctx, obj, ix.threshold); err != nil {
		return fmt.Errorf("index task %s: %w", task.TaskID, err)
	}

	observability.ObjectsIndexed.WithLabelValues(string(obj.Base)).Inc()
	if !task.AcceptedAt.IsZero() {
		observability.IndexLag.Observe(time.Since(task.AcceptedAt).Seconds())
	}
	slog.Debug("object indexed",
		"id", obj.ID,
		"base", obj.Base,
		"camera_id", obj.CameraID,
		"cluster_size", obj.ClusterSize,
	)

	if ix.hub != nil {
		ix.hub.BroadcastObject(*obj)
	}
	return nil
}
