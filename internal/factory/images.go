package factory

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/your-org/fdsender/internal/models"
)

// ImageSource returns the reference image for a (base, attribute) pair.
type ImageSource interface {
	Image(ctx context.Context, base models.Base, attribute string) ([]byte, error)
}

// DirSource reads <dir>/<base>/<attribute>.jpg.
type DirSource struct {
	Dir string
}

func (s DirSource) Image(_ context.Context, base models.Base, attribute string) ([]byte, error) {
	p := filepath.Join(s.Dir, string(base), attribute+".jpg")
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read template image: %w", err)
	}
	return data, nil
}

// ObjectGetter is satisfied by storage.MinIOStore.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// BucketSource reads templates/<base>/<attribute>.jpg from object storage.
type BucketSource struct {
	Store  ObjectGetter
	Prefix string
}

func (s BucketSource) Image(ctx context.Context, base models.Base, attribute string) ([]byte, error) {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "templates"
	}
	data, err := s.Store.GetObject(ctx, path.Join(prefix, string(base), attribute+".jpg"))
	if err != nil {
		return nil, fmt.Errorf("fetch template image: %w", err)
	}
	return data, nil
}

// CachedSource memoizes another source; reference images never change
// during a run.
type CachedSource struct {
	src ImageSource

	mu    sync.Mutex
	cache map[string][]byte
}

func NewCachedSource(src ImageSource) *CachedSource {
	return &CachedSource{src: src, cache: make(map[string][]byte)}
}

func (s *CachedSource) Image(ctx context.Context, base models.Base, attribute string) ([]byte, error) {
	key := string(base) + "/" + attribute

	s.mu.Lock()
	data, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return data, nil
	}

	data, err := s.src.Image(ctx, base, attribute)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = data
	s.mu.Unlock()
	return data, nil
}
