// Package sender is the surface UI tests use: send synthetic events, ensure
// count preconditions and query the local mirror.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/fdsender/internal/camera"
	"github.com/your-org/fdsender/internal/cluster"
	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/dispatch"
	"github.com/your-org/fdsender/internal/factory"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/precondition"
	"github.com/your-org/fdsender/internal/reconcile"
	"github.com/your-org/fdsender/internal/store"
	"github.com/your-org/fdsender/pkg/dto"
)

// Backend is everything the engine needs from the analytics backend;
// client.Client implements it.
type Backend interface {
	dispatch.Ingester
	reconcile.Searcher
	cluster.ObjectGetter
	camera.Lister
	CreateCamera(ctx context.Context, req dto.CreateCameraRequest) (*models.Camera, error)
}

type Sender struct {
	backend    Backend
	store      *store.Store
	cameras    *camera.Cache
	dispatcher *dispatch.Dispatcher
	reconciler *reconcile.Engine
	solver     *precondition.Solver

	importMu sync.Mutex
	imported bool
}

func New(cfg *config.Config, backend Backend, images factory.ImageSource) *Sender {
	st := store.New()
	cams := camera.NewCache(backend)
	rec := reconcile.New(backend, st, cams, cfg.Reconcile)

	d := dispatch.New(cfg.Sender, cfg.Backend.Token, backend, cams, factory.New(factory.NewCachedSource(images)), st)
	d.SetResolver(rec)
	d.SetClusterWaiter(cluster.NewWaiter(backend, cfg.Cluster))

	return &Sender{
		backend:    backend,
		store:      st,
		cameras:    cams,
		dispatcher: d,
		reconciler: rec,
		solver:     precondition.New(d, rec, st, cams),
	}
}

// SetNotifier publishes a notice for every sent batch.
func (s *Sender) SetNotifier(n dispatch.Notifier) {
	s.dispatcher.SetNotifier(n)
}

// Pacer spaces batches sent without an explicit timestamp.
func (s *Sender) Pacer() *dispatch.Pacer {
	return s.dispatcher.Pacer()
}

// Import scans the backend's full history into the store. It runs lazily
// before the first operation; calling it again imports objects created by
// other processes since.
func (s *Sender) Import(ctx context.Context) (int, error) {
	s.importMu.Lock()
	defer s.importMu.Unlock()

	n, err := s.reconciler.Import(ctx)
	if err != nil {
		return n, err
	}
	s.imported = true
	return n, nil
}

func (s *Sender) ensureImported(ctx context.Context) error {
	s.importMu.Lock()
	done := s.imported
	s.importMu.Unlock()
	if done {
		return nil
	}
	n, err := s.Import(ctx)
	if err != nil {
		return fmt.Errorf("import backend history: %w", err)
	}
	slog.Info("backend history imported", "objects", n)
	return nil
}

func (s *Sender) Send(ctx context.Context, req dispatch.SendRequest) ([]models.Event, error) {
	if err := s.ensureImported(ctx); err != nil {
		return nil, err
	}
	return s.dispatcher.Send(ctx, req)
}

func (s *Sender) CheckMin(ctx context.Context, conditions map[string]int, scope precondition.Scope) error {
	if err := s.ensureImported(ctx); err != nil {
		return err
	}
	return s.solver.CheckMin(ctx, conditions, scope)
}

func (s *Sender) CheckMax(ctx context.Context, conditions map[string]int, scope precondition.Scope) error {
	if err := s.ensureImported(ctx); err != nil {
		return err
	}
	return s.solver.CheckMax(ctx, conditions, scope)
}

func (s *Sender) CheckDiff(ctx context.Context, templates []string, scope precondition.Scope, minCount int) error {
	if err := s.ensureImported(ctx); err != nil {
		return err
	}
	return s.solver.CheckDiff(ctx, templates, scope, minCount)
}

func (s *Sender) CheckDiffInCameras(ctx context.Context, template string, cameraSets ...[]string) error {
	// The empty-set check must not wait on the import.
	for i, set := range cameraSets {
		if len(set) == 0 {
			return &precondition.PreconditionError{Subject: template, Reason: fmt.Sprintf("camera set #%d is empty", i+1)}
		}
	}
	if err := s.ensureImported(ctx); err != nil {
		return err
	}
	return s.solver.CheckDiffInCameras(ctx, template, cameraSets...)
}

// Reconcile resolves every pending event.
func (s *Sender) Reconcile(ctx context.Context) error {
	return s.reconciler.Reconcile(ctx)
}

// CountOptions narrows a count. From overrides Timeslice.
type CountOptions struct {
	Cameras   []string
	Timeslice string
	From      *time.Time
	To        *time.Time
	Meta      *models.MetaFilter
}

func (s *Sender) query(ctx context.Context, opts CountOptions) (store.Query, error) {
	q := store.Query{Timeslice: opts.Timeslice, From: opts.From, To: opts.To}
	if len(opts.Cameras) > 0 {
		ids, err := s.cameras.ResolveAll(ctx, opts.Cameras)
		if err != nil {
			return store.Query{}, fmt.Errorf("resolve cameras: %w", err)
		}
		q.CameraIDs = ids
	}
	if opts.Meta != nil {
		q.Meta = *opts.Meta
	}
	return q, nil
}

// ObjectsCount counts stored objects matching template and opts.
func (s *Sender) ObjectsCount(ctx context.Context, template string, opts CountOptions) (int, error) {
	tpl, err := factory.ParseTemplate(template)
	if err != nil {
		return 0, err
	}
	if err := s.ensureImported(ctx); err != nil {
		return 0, err
	}
	q, err := s.query(ctx, opts)
	if err != nil {
		return 0, err
	}
	q.Base = tpl.Base
	q.Meta = tpl.Filter().And(q.Meta)
	return s.store.Count(q)
}

// ObjectsCountForAges counts faces aged within [minAge, maxAge].
func (s *Sender) ObjectsCountForAges(ctx context.Context, minAge, maxAge int, opts CountOptions) (int, error) {
	if err := s.ensureImported(ctx); err != nil {
		return 0, err
	}
	q, err := s.query(ctx, opts)
	if err != nil {
		return 0, err
	}
	return s.store.CountForAges(minAge, maxAge, q)
}

// LastSendTime is the time of the last accepted submission, zero if none.
func (s *Sender) LastSendTime() time.Time {
	return s.dispatcher.Clock().Last()
}

// Events returns copies of every stored event.
func (s *Sender) Events() []models.Event {
	return s.store.All()
}

// Cameras returns the cached camera list.
func (s *Sender) Cameras(ctx context.Context) ([]models.Camera, error) {
	return s.cameras.Get(ctx)
}

// InvalidateCameras forces the next camera lookup to refetch.
func (s *Sender) InvalidateCameras() {
	s.cameras.Invalidate()
}

// CreateCamera registers a camera on the backend and drops the cached list
// so the next lookup sees it.
func (s *Sender) CreateCamera(ctx context.Context, name string, active bool) (*models.Camera, error) {
	cam, err := s.backend.CreateCamera(ctx, dto.CreateCameraRequest{Name: name, Active: &active})
	if err != nil {
		return nil, fmt.Errorf("create camera %q: %w", name, err)
	}
	s.InvalidateCameras()
	slog.Info("camera created", "id", cam.ID, "name", cam.Name)
	return cam, nil
}
