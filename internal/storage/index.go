package storage

import (
	"context"
	"errors"
	"math"

	"github.com/your-org/fdsender/internal/models"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrCameraExists = errors.New("camera already exists")
)

// ObjectQuery narrows an object search. Quality is good (default), bad or any.
type ObjectQuery struct {
	Quality   string
	Metadata  map[string]any
	CameraIDs []int64
	From      *int64 // microseconds, inclusive
	To        *int64
	Oldest    bool
	Offset    int
	Limit     int
}

// ObjectIndex stores cameras and indexed objects.
type ObjectIndex interface {
	CreateCamera(ctx context.Context, cam *models.Camera) error
	ListCameras(ctx context.Context) ([]models.Camera, error)
	// GetCamera returns nil, nil for an unknown id.
	GetCamera(ctx context.Context, id int64) (*models.Camera, error)

	// IndexObject inserts obj and attaches it to the nearest cluster
	// reference of the same base within threshold cosine distance. When no
	// reference is close enough obj starts its own cluster.
	IndexObject(ctx context.Context, obj *models.Object, threshold float64) error
	// GetObject returns nil, nil for an unknown id.
	GetObject(ctx context.Context, base models.Base, id int64) (*models.Object, error)
	SearchObjects(ctx context.Context, base models.Base, q ObjectQuery) ([]models.Object, error)

	Ping(ctx context.Context) error
}

// BlobStore keeps object images.
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	Ping(ctx context.Context) error
}

// CosineDistance is 1 - cos(a, b), the same measure as pgvector's <=>.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func qualityMatches(want string, m models.Metadata) bool {
	switch models.Quality(want) {
	case models.QualityAny:
		return true
	case "", models.QualityGood:
		return m.Quality == "" || m.Quality == models.QualityGood
	default:
		return string(m.Quality) == want
	}
}
