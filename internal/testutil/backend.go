// Package testutil provides an in-process analytics backend for engine tests.
package testutil

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"slices"
	"sync"
	"testing"

	"github.com/your-org/fdsender/internal/client"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/pkg/dto"
)

// Never disables a visibility or clustering delay: the condition never holds.
const Never = -1

type fakeObject struct {
	obj dto.Object
	// search call number from which the object is visible
	visibleFrom int
	lookups     int
}

// Backend mimics the ingest/search/lookup surface with eventual consistency.
// Ingested objects become searchable after VisibleAfter further searches and
// report cluster_size > 1 after ClusterAfter lookups.
type Backend struct {
	mu sync.Mutex

	cameras  []models.Camera
	objects  []*fakeObject
	nextID   int64
	searches int
	ingests  int
	lookups  int
	failures []error

	visibleAfter int
	clusterAfter int
}

func NewBackend(cameras ...models.Camera) *Backend {
	if len(cameras) == 0 {
		cameras = []models.Camera{{ID: 1, Name: "camera-1", Active: true}}
	}
	return &Backend{cameras: cameras, nextID: 1000, clusterAfter: Never}
}

// SetVisibleAfter delays search visibility of newly ingested objects by n
// search calls. Never hides them for good.
func (b *Backend) SetVisibleAfter(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visibleAfter = n
}

// SetClusterAfter makes lookups report a cluster after n lookups of the same
// object. Never keeps every object a singleton.
func (b *Backend) SetClusterAfter(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clusterAfter = n
}

// FailIngest queues errors returned by the next ingest calls, in order.
func (b *Backend) FailIngest(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, errs...)
}

// TransientErr is a connection failure the client would report.
func TransientErr() error {
	return fmt.Errorf("ingest: dial tcp: connection refused: %w", client.ErrTransient)
}

// UnprocessableErr is a 422 rejection.
func UnprocessableErr() error {
	return fmt.Errorf("ingest: Unprocessable entity: bad roi: %w", client.ErrUnprocessable)
}

// Seed inserts an already visible object.
func (b *Backend) Seed(base models.Base, cameraID, timestamp int64, meta models.Metadata) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, _ := json.Marshal(meta)
	return b.insert(base, cameraID, timestamp*1_000_000, raw, 0)
}

func (b *Backend) Ingest(_ context.Context, req *dto.IngestRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ingests++
	if len(b.failures) > 0 {
		err := b.failures[0]
		b.failures = b.failures[1:]
		if err != nil {
			return err
		}
	}

	raw, err := json.Marshal(req.Metadata)
	if err != nil {
		return err
	}
	from := b.searches + 1 + b.visibleAfter
	if b.visibleAfter == Never {
		from = -1
	}
	b.insert(models.Base(req.Label), req.CameraID, req.Timestamp, raw, from)
	return nil
}

func (b *Backend) insert(base models.Base, cameraID, tsMicros int64, meta json.RawMessage, visibleFrom int) int64 {
	b.nextID++
	b.objects = append(b.objects, &fakeObject{
		obj: dto.Object{
			ID:          b.nextID,
			ClusterSize: 1,
			Base:        string(base),
			CameraID:    cameraID,
			Timestamp:   tsMicros,
			Metadata:    meta,
			ImageURL:    fmt.Sprintf("http://fake/objects/%s/%d.jpg", base, b.nextID),
		},
		visibleFrom: visibleFrom,
	})
	return b.nextID
}

func (b *Backend) Search(_ context.Context, base models.Base, req dto.SearchRequest) ([]dto.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.searches++
	var out []dto.Object
	for _, o := range b.objects {
		if o.obj.Base != string(base) || o.visibleFrom < 0 || o.visibleFrom > b.searches {
			continue
		}
		if len(req.Filters.CameraIDs) > 0 && !slices.Contains(req.Filters.CameraIDs, o.obj.CameraID) {
			continue
		}
		if !qualityMatches(req.Filters.Quality, o.obj.Metadata) {
			continue
		}
		out = append(out, o.obj)
	}

	slices.SortStableFunc(out, func(x, y dto.Object) int {
		if req.Order == dto.OrderOldest {
			return cmp.Compare(x.Timestamp, y.Timestamp)
		}
		return cmp.Compare(y.Timestamp, x.Timestamp)
	})

	if req.PgOffset >= len(out) {
		return []dto.Object{}, nil
	}
	out = out[req.PgOffset:]
	if req.PgSize > 0 && len(out) > req.PgSize {
		out = out[:req.PgSize]
	}
	return out, nil
}

func (b *Backend) SearchAll(ctx context.Context, base models.Base, req dto.SearchRequest) ([]dto.Object, error) {
	if req.PgSize <= 0 {
		req.PgSize = 250
	}
	var all []dto.Object
	for {
		page, err := b.Search(ctx, base, req)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < req.PgSize {
			return all, nil
		}
		req.PgOffset += req.PgSize
	}
}

func (b *Backend) GetObject(_ context.Context, base models.Base, id int64) (*dto.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lookups++
	for _, o := range b.objects {
		if o.obj.ID != id || o.obj.Base != string(base) {
			continue
		}
		o.lookups++
		if b.clusterAfter != Never && o.lookups > b.clusterAfter {
			o.obj.ClusterSize = 2
		}
		obj := o.obj
		return &obj, nil
	}
	return nil, fmt.Errorf("get object %d: %w", id, client.ErrNotFound)
}

func (b *Backend) ListCameras(context.Context) ([]models.Camera, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.cameras), nil
}

func (b *Backend) CreateCamera(_ context.Context, req dto.CreateCameraRequest) (*models.Camera, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slices.ContainsFunc(b.cameras, func(c models.Camera) bool { return c.Name == req.Name }) {
		return nil, &client.StatusError{Op: "create camera", Status: http.StatusConflict, Message: "camera already exists"}
	}
	cam := models.Camera{
		ID:       int64(len(b.cameras) + 1),
		Name:     req.Name,
		Active:   req.Active == nil || *req.Active,
		Archived: req.Archived,
	}
	b.cameras = append(b.cameras, cam)
	return &cam, nil
}

// Ingested returns the number of ingest calls, failed ones included.
func (b *Backend) Ingested() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ingests
}

func (b *Backend) Searches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.searches
}

func (b *Backend) Lookups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookups
}

// Objects returns every stored object of base regardless of visibility.
func (b *Backend) Objects(base models.Base) []dto.Object {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []dto.Object
	for _, o := range b.objects {
		if o.obj.Base == string(base) {
			out = append(out, o.obj)
		}
	}
	return out
}

func qualityMatches(want string, raw json.RawMessage) bool {
	if want == string(models.QualityAny) {
		return true
	}
	var m models.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	if want == "" || want == string(models.QualityGood) {
		return m.Quality == "" || m.Quality == models.QualityGood
	}
	return string(m.Quality) == want
}

// ImageSource serves one fixed PNG for every (base, attribute) pair.
type ImageSource struct {
	Data []byte
}

func (s ImageSource) Image(context.Context, models.Base, string) ([]byte, error) {
	return s.Data, nil
}

// PNG encodes a blank w×h image.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
