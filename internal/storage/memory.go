package storage

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/your-org/fdsender/internal/models"
)

// MemoryIndex is an ObjectIndex for development and tests.
type MemoryIndex struct {
	mu         sync.RWMutex
	cameras    []models.Camera
	objects    []*models.Object
	nextCamera int64
	nextObject int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) CreateCamera(_ context.Context, cam *models.Camera) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.cameras {
		if c.Name == cam.Name {
			return fmt.Errorf("create camera %q: %w", cam.Name, ErrCameraExists)
		}
	}
	m.nextCamera++
	cam.ID = m.nextCamera
	cam.CreatedAt = time.Now()
	m.cameras = append(m.cameras, *cam)
	return nil
}

func (m *MemoryIndex) ListCameras(context.Context) ([]models.Camera, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.cameras), nil
}

func (m *MemoryIndex) GetCamera(_ context.Context, id int64) (*models.Camera, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cameras {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryIndex) IndexObject(_ context.Context, obj *models.Object, threshold float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ref *models.Object
	best := threshold
	for _, o := range m.objects {
		if o.Base != obj.Base || !o.IsReference {
			continue
		}
		if d := CosineDistance(o.Embedding, obj.Embedding); d <= best {
			ref, best = o, d
		}
	}

	m.nextObject++
	obj.ID = m.nextObject
	obj.CreatedAt = time.Now()

	if ref == nil {
		obj.IsReference = true
		obj.ClusterSize = 1
		obj.ParentID = nil
	} else {
		parent := ref.ID
		obj.IsReference = false
		obj.ParentID = &parent
		size := ref.ClusterSize + 1
		for _, o := range m.objects {
			if o.ID == ref.ID || (o.ParentID != nil && *o.ParentID == ref.ID) {
				o.ClusterSize = size
			}
		}
		obj.ClusterSize = size
	}

	stored := *obj
	m.objects = append(m.objects, &stored)
	return nil
}

func (m *MemoryIndex) GetObject(_ context.Context, base models.Base, id int64) (*models.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.objects {
		if o.ID == id && o.Base == base {
			c := *o
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryIndex) SearchObjects(_ context.Context, base models.Base, q ObjectQuery) ([]models.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Object
	for _, o := range m.objects {
		if o.Base != base || !q.matches(o) {
			continue
		}
		out = append(out, *o)
	}

	slices.SortStableFunc(out, func(a, b models.Object) int {
		if q.Oldest {
			return cmp.Or(cmp.Compare(a.Timestamp, b.Timestamp), cmp.Compare(a.ID, b.ID))
		}
		return cmp.Or(cmp.Compare(b.Timestamp, a.Timestamp), cmp.Compare(b.ID, a.ID))
	})

	if q.Offset >= len(out) {
		return []models.Object{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryIndex) Ping(context.Context) error { return nil }

func (q ObjectQuery) matches(o *models.Object) bool {
	if len(q.CameraIDs) > 0 && !slices.Contains(q.CameraIDs, o.CameraID) {
		return false
	}
	if q.From != nil && o.Timestamp < *q.From {
		return false
	}
	if q.To != nil && o.Timestamp > *q.To {
		return false
	}
	if !qualityMatches(q.Quality, o.Metadata) {
		return false
	}
	if len(q.Metadata) > 0 {
		have := o.Metadata.Map()
		for k, want := range q.Metadata {
			got, ok := have[k]
			if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
				return false
			}
		}
	}
	return true
}

// MemoryBlobs is a BlobStore kept in process memory.
type MemoryBlobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

func (b *MemoryBlobs) PutObject(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = slices.Clone(data)
	return nil
}

func (b *MemoryBlobs) GetObject(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, fmt.Errorf("get object %s: %w", key, ErrNotFound)
	}
	return slices.Clone(data), nil
}

func (b *MemoryBlobs) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Sorted(maps.Keys(b.blobs))
}

func (b *MemoryBlobs) Ping(context.Context) error { return nil }
