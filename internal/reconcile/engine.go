// Package reconcile resolves sent events against the backend index by
// timestamp correlation.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/your-org/fdsender/internal/client"
	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/observability"
	"github.com/your-org/fdsender/internal/retry"
	"github.com/your-org/fdsender/internal/store"
	"github.com/your-org/fdsender/pkg/dto"
)

var errPending = errors.New("events still pending")

type Searcher interface {
	Search(ctx context.Context, base models.Base, req dto.SearchRequest) ([]dto.Object, error)
	SearchAll(ctx context.Context, base models.Base, req dto.SearchRequest) ([]dto.Object, error)
}

type CameraLookup interface {
	ByID(ctx context.Context, id int64) (models.Camera, error)
}

type Engine struct {
	search  Searcher
	store   *store.Store
	cameras CameraLookup
	cfg     config.ReconcileConfig
}

func New(search Searcher, st *store.Store, cameras CameraLookup, cfg config.ReconcileConfig) *Engine {
	return &Engine{search: search, store: st, cameras: cameras, cfg: cfg}
}

// Reconcile resolves pending events of every base.
func (e *Engine) Reconcile(ctx context.Context) error {
	return e.reconcileBases(ctx, models.Bases, nil)
}

// ReconcileEvents resolves the given events. Other pending events of their
// bases are resolved along the way when their objects show up, but only
// the given events are waited for and abandoned.
func (e *Engine) ReconcileEvents(ctx context.Context, events []models.Event) error {
	scopes := make(map[models.Base]map[uuid.UUID]bool)
	for _, ev := range events {
		if scopes[ev.Base] == nil {
			scopes[ev.Base] = make(map[uuid.UUID]bool)
		}
		scopes[ev.Base][ev.LocalID] = true
	}

	var bases []models.Base
	for _, b := range models.Bases {
		if scopes[b] != nil {
			bases = append(bases, b)
		}
	}
	return e.reconcileBases(ctx, bases, scopes)
}

func (e *Engine) reconcileBases(ctx context.Context, bases []models.Base, scopes map[models.Base]map[uuid.UUID]bool) error {
	var errs []error
	for _, b := range bases {
		if err := e.reconcileBase(ctx, b, scopes[b]); err != nil {
			if ctx.Err() != nil {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReconcileBase matches pending events of base against the newest page of
// backend objects, refetching after a fixed delay until none are left or
// the attempt budget is spent. Exhaustion abandons the leftovers and
// returns *UnresolvedError.
func (e *Engine) ReconcileBase(ctx context.Context, base models.Base) error {
	return e.reconcileBase(ctx, base, nil)
}

// reconcileBase waits for the pending events in only, or for all pending
// events of base when only is nil.
func (e *Engine) reconcileBase(ctx context.Context, base models.Base, only map[uuid.UUID]bool) error {
	var remaining []models.Event

	policy := retry.Policy{
		Name:        "reconcile " + string(base),
		MaxAttempts: e.cfg.Attempts,
		Delay:       e.cfg.Delay,
		Retryable: func(err error) bool {
			return errors.Is(err, errPending) || client.IsTransient(err)
		},
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		pending := e.store.Unresolved(base)
		remaining = scoped(pending, only)
		if len(remaining) == 0 {
			return nil
		}
		observability.ReconcileAttempts.WithLabelValues(string(base)).Inc()

		objects, err := e.search.Search(ctx, base, dto.SearchRequest{
			Filters: dto.SearchFilters{Quality: string(models.QualityAny)},
			Order:   dto.OrderNewest,
			PgSize:  e.cfg.PageSize,
		})
		if err != nil {
			return fmt.Errorf("search %s objects: %w", base, err)
		}

		left, err := e.match(pending, objects)
		if err != nil {
			return err
		}
		remaining = scoped(left, only)
		if len(remaining) > 0 {
			return fmt.Errorf("%d %s events: %w", len(remaining), base, errPending)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || !policy.Retryable(err) {
		return err
	}

	ids := make([]uuid.UUID, 0, len(remaining))
	for _, ev := range remaining {
		ids = append(ids, ev.LocalID)
	}
	e.store.Abandon(ids...)
	observability.UnresolvedEvents.WithLabelValues(string(base)).Add(float64(len(ids)))

	uerr := &UnresolvedError{Base: base, Count: len(ids)}
	if !errors.Is(err, errPending) {
		uerr.Err = err
	}
	slog.Error("reconcile budget exhausted", "base", base, "unresolved", len(ids), "attempts", e.cfg.Attempts)
	return uerr
}

func scoped(events []models.Event, only map[uuid.UUID]bool) []models.Event {
	if only == nil {
		return events
	}
	var out []models.Event
	for _, ev := range events {
		if only[ev.LocalID] {
			out = append(out, ev)
		}
	}
	return out
}

// match resolves each pending event against at most one object with the same
// timestamp second and camera. Objects already owned by a stored event are
// skipped, so one object never resolves two events.
func (e *Engine) match(pending []models.Event, objects []dto.Object) ([]models.Event, error) {
	left := slices.Clone(pending)
	for _, obj := range objects {
		if len(left) == 0 {
			break
		}
		if e.store.HasID(obj.ID) {
			continue
		}
		ts := obj.TimestampSeconds()
		i := slices.IndexFunc(left, func(ev models.Event) bool {
			return ev.Timestamp == ts && ev.Camera.ID == obj.CameraID
		})
		if i < 0 {
			continue
		}
		if err := e.store.Resolve(left[i].LocalID, obj); err != nil {
			return nil, fmt.Errorf("resolve event: %w", err)
		}
		left = slices.Delete(left, i, i+1)
	}

	if resolved := len(pending) - len(left); resolved > 0 {
		slog.Debug("events resolved", "resolved", resolved, "pending", len(left))
	}
	return left, nil
}

// Import appends every backend object not yet owned by a stored event, so
// counts cover objects created before this process started.
func (e *Engine) Import(ctx context.Context) (int, error) {
	total := 0
	for _, base := range models.Bases {
		objects, err := e.search.SearchAll(ctx, base, dto.SearchRequest{
			Filters: dto.SearchFilters{Quality: string(models.QualityAny)},
			Order:   dto.OrderNewest,
			PgSize:  e.cfg.PageSize,
		})
		if err != nil {
			return total, fmt.Errorf("import %s objects: %w", base, err)
		}

		// Pending events claim their objects first, so a repeated import
		// does not adopt them as foreign history.
		if _, err := e.match(e.store.Unresolved(base), objects); err != nil {
			return total, fmt.Errorf("import %s objects: %w", base, err)
		}

		var events []models.Event
		for _, obj := range objects {
			if e.store.HasID(obj.ID) {
				continue
			}
			ev, err := e.eventFromObject(ctx, base, obj)
			if err != nil {
				return total, fmt.Errorf("import object %d: %w", obj.ID, err)
			}
			events = append(events, ev)
		}
		if err := e.store.Append(events...); err != nil {
			return total, fmt.Errorf("import %s objects: %w", base, err)
		}
		total += len(events)
		slog.Info("objects imported", "base", base, "count", len(events))
	}
	return total, nil
}

func (e *Engine) eventFromObject(ctx context.Context, base models.Base, obj dto.Object) (models.Event, error) {
	cam, err := e.cameras.ByID(ctx, obj.CameraID)
	if err != nil {
		// Objects can outlive their camera.
		slog.Debug("camera lookup failed", "camera_id", obj.CameraID, "error", err)
		cam = models.Camera{ID: obj.CameraID}
	}

	ev := models.Event{
		LocalID:   uuid.New(),
		Base:      base,
		Camera:    cam,
		Timestamp: obj.TimestampSeconds(),
	}
	if err := store.ApplyObject(&ev, obj); err != nil {
		return models.Event{}, err
	}
	return ev, nil
}
