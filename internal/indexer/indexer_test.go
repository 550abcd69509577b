package indexer

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/storage"
)

type recorder struct {
	objects []models.Object
}

func (r *recorder) BroadcastObject(obj models.Object) {
	r.objects = append(r.objects, obj)
}

func TestEmbed(t *testing.T) {
	a := Embed([]byte("same image bytes"))
	b := Embed([]byte("same image bytes"))
	require.Len(t, a, EmbeddingDim)
	assert.Equal(t, a, b)
	assert.InDelta(t, 0, storage.CosineDistance(a, b), 1e-6)

	c := Embed([]byte{0, 0, 0, 0})
	assert.Greater(t, storage.CosineDistance(a, c), 0.5)

	assert.Equal(t, make([]float32, EmbeddingDim), Embed(nil))
}

func TestHandle_ClustersRepeatedImages(t *testing.T) {
	ctx := context.Background()
	idx := storage.NewMemoryIndex()
	blobs := storage.NewMemoryBlobs()
	require.NoError(t, blobs.PutObject(ctx, "objects/face/a.png", []byte("template-a"), "image/png"))
	require.NoError(t, blobs.PutObject(ctx, "objects/face/b.png", []byte("template-a"), "image/png"))
	require.NoError(t, blobs.PutObject(ctx, "objects/face/c.png", []byte{1, 1, 1, 1, 1}, "image/png"))

	ix := New(idx, blobs, 0.02)
	rec := &recorder{}
	ix.SetBroadcaster(rec)

	for i, key := range []string{"objects/face/a.png", "objects/face/b.png", "objects/face/c.png"} {
		require.NoError(t, ix.Handle(ctx, models.IngestTask{
			TaskID:    uuid.New(),
			Base:      models.BaseFace,
			CameraID:  1,
			Timestamp: int64(i+1) * 1_000_000,
			Metadata:  map[string]any{"gender": "male"},
			ImageKey:  key,
		}))
	}

	require.Len(t, rec.objects, 3)
	assert.True(t, rec.objects[0].IsReference)
	assert.False(t, rec.objects[1].IsReference)
	assert.Equal(t, 2, rec.objects[1].ClusterSize)
	assert.True(t, rec.objects[2].IsReference)
	assert.Equal(t, "male", rec.objects[2].Metadata.Gender)

	first, err := idx.GetObject(ctx, models.BaseFace, rec.objects[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.ClusterSize)
}

func TestHandle_MissingBlob(t *testing.T) {
	ix := New(storage.NewMemoryIndex(), storage.NewMemoryBlobs(), 0.02)
	err := ix.Handle(context.Background(), models.IngestTask{TaskID: uuid.New(), ImageKey: "gone"})
	require.ErrorIs(t, err, storage.ErrNotFound)
}
