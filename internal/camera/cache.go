// Package camera caches the backend's camera list.
//
// The cache tolerates staleness: it is fine for camera identity and activity
// flags, and must never be used for anything tied to event resolution.
package camera

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/your-org/fdsender/internal/models"
)

var ErrNotFound = errors.New("camera not found")

// Lister fetches the full camera list.
type Lister interface {
	ListCameras(ctx context.Context) ([]models.Camera, error)
}

type snapshot struct {
	cameras []models.Camera
	byID    map[int64]models.Camera
	byName  map[string]models.Camera
}

type Cache struct {
	lister Lister
	snap   atomic.Pointer[snapshot]
}

func NewCache(lister Lister) *Cache {
	return &Cache{lister: lister}
}

// Get returns the cached list, fetching it when the cache is empty.
func (c *Cache) Get(ctx context.Context) ([]models.Camera, error) {
	s, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return append([]models.Camera(nil), s.cameras...), nil
}

// Invalidate drops the snapshot; the next read refetches.
func (c *Cache) Invalidate() {
	c.snap.Store(nil)
}

func (c *Cache) ByID(ctx context.Context, id int64) (models.Camera, error) {
	s, err := c.load(ctx)
	if err != nil {
		return models.Camera{}, err
	}
	cam, ok := s.byID[id]
	if !ok {
		return models.Camera{}, fmt.Errorf("camera id %d: %w", id, ErrNotFound)
	}
	return cam, nil
}

func (c *Cache) ByName(ctx context.Context, name string) (models.Camera, error) {
	s, err := c.load(ctx)
	if err != nil {
		return models.Camera{}, err
	}
	cam, ok := s.byName[name]
	if !ok {
		return models.Camera{}, fmt.Errorf("camera %q: %w", name, ErrNotFound)
	}
	return cam, nil
}

// Resolve accepts a numeric id or a camera name. A miss invalidates the
// cache and retries once, so cameras created after the first fetch are found.
func (c *Cache) Resolve(ctx context.Context, ref string) (models.Camera, error) {
	cam, err := c.resolve(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		c.Invalidate()
		cam, err = c.resolve(ctx, ref)
	}
	return cam, err
}

// ResolveAll maps refs to camera ids, preserving order.
func (c *Cache) ResolveAll(ctx context.Context, refs []string) ([]int64, error) {
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		cam, err := c.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, cam.ID)
	}
	return ids, nil
}

func (c *Cache) resolve(ctx context.Context, ref string) (models.Camera, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return c.ByID(ctx, id)
	}
	return c.ByName(ctx, ref)
}

func (c *Cache) load(ctx context.Context) (*snapshot, error) {
	if s := c.snap.Load(); s != nil {
		return s, nil
	}

	cameras, err := c.lister.ListCameras(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}

	s := &snapshot{
		cameras: cameras,
		byID:    make(map[int64]models.Camera, len(cameras)),
		byName:  make(map[string]models.Camera, len(cameras)),
	}
	for _, cam := range cameras {
		s.byID[cam.ID] = cam
		s.byName[cam.Name] = cam
	}
	c.snap.Store(s)
	return s, nil
}
