// Package dispatch submits batches of synthetic events through a bounded
// worker pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/fdsender/internal/client"
	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/factory"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/observability"
	"github.com/your-org/fdsender/internal/retry"
	"github.com/your-org/fdsender/internal/store"
	"github.com/your-org/fdsender/pkg/dto"
)

var ErrInvalidRequest = errors.New("invalid send request")

type Ingester interface {
	Ingest(ctx context.Context, req *dto.IngestRequest) error
}

type CameraResolver interface {
	Resolve(ctx context.Context, ref string) (models.Camera, error)
}

type Resolver interface {
	ReconcileEvents(ctx context.Context, events []models.Event) error
}

type ClusterWaiter interface {
	Wait(ctx context.Context, base models.Base, ids []int64) ([]dto.Object, error)
}

// Notifier announces sent batches; queue.Producer implements it.
type Notifier interface {
	PublishSent(ctx context.Context, notice models.SentNotice) error
}

// SendRequest describes one batch. Camera is an id or a name; empty means
// the configured default camera. A zero Timestamp is assigned by the pacer.
type SendRequest struct {
	Template       string
	Count          int
	Camera         string
	Timestamp      int64
	Metadata       *models.Metadata
	Untracked      bool
	// Resolve waits until this batch's events are matched to backend
	// objects. Older pending events are resolved on the way but never make
	// this batch fail.
	Resolve        bool
	WaitForCluster bool
}

type Dispatcher struct {
	ingest   Ingester
	cameras  CameraResolver
	factory  *factory.Factory
	store    *store.Store
	resolver Resolver
	waiter   ClusterWaiter
	notifier Notifier

	cfg   config.SenderConfig
	token string
	runID uuid.UUID
	clock *SendClock
	pacer *Pacer
}

func New(cfg config.SenderConfig, token string, ingest Ingester, cameras CameraResolver, f *factory.Factory, st *store.Store) *Dispatcher {
	return &Dispatcher{
		ingest:  ingest,
		cameras: cameras,
		factory: f,
		store:   st,
		cfg:     cfg,
		token:   token,
		runID:   uuid.New(),
		clock:   &SendClock{},
		pacer:   NewPacer(cfg.PaceInterval),
	}
}

func (d *Dispatcher) SetResolver(r Resolver)           { d.resolver = r }
func (d *Dispatcher) SetClusterWaiter(w ClusterWaiter) { d.waiter = w }
func (d *Dispatcher) SetNotifier(n Notifier)           { d.notifier = n }

func (d *Dispatcher) Clock() *SendClock { return d.clock }

func (d *Dispatcher) Pacer() *Pacer { return d.pacer }

func (d *Dispatcher) RunID() uuid.UUID { return d.runID }

type result struct {
	idx int
	err error
}

// Send crafts req.Count events sharing one timestamp and submits them
// concurrently. Events that were accepted are stored (unless untracked) and
// returned even when others failed; the failures come back joined.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) ([]models.Event, error) {
	if req.Count < 1 {
		return nil, fmt.Errorf("%w: count %d", ErrInvalidRequest, req.Count)
	}
	if req.Untracked && (req.Resolve || req.WaitForCluster) {
		return nil, fmt.Errorf("%w: untracked events cannot be resolved", ErrInvalidRequest)
	}

	tpl, err := factory.ParseTemplate(req.Template)
	if err != nil {
		return nil, err
	}

	ref := req.Camera
	if ref == "" {
		ref = d.cfg.DefaultCamera
	}
	cam, err := d.cameras.Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("resolve camera: %w", err)
	}

	ts := req.Timestamp
	if ts == 0 {
		if ts, err = d.pacer.Next(ctx); err != nil {
			return nil, fmt.Errorf("pace batch: %w", err)
		}
	} else {
		d.pacer.Observe(ts)
	}

	events := make([]*models.Event, req.Count)
	for i := range events {
		if events[i], err = d.factory.Build(ctx, tpl, cam, ts, req.Metadata); err != nil {
			return nil, err
		}
	}

	sent, failed := d.submit(ctx, events)

	if len(sent) > 0 {
		if !req.Untracked {
			if err := d.store.Append(sent...); err != nil {
				return nil, fmt.Errorf("store sent events: %w", err)
			}
		}
		d.notify(ctx, tpl, cam, ts, len(sent))
	}

	slog.Info("batch sent",
		"template", req.Template,
		"camera", cam.Name,
		"timestamp", ts,
		"sent", len(sent),
		"failed", len(failed),
	)

	if len(failed) > 0 {
		return d.snapshot(req, sent), fmt.Errorf("send %s: %d of %d events failed: %w",
			req.Template, len(failed), req.Count, errors.Join(failed...))
	}

	if req.Resolve || req.WaitForCluster {
		if d.resolver == nil {
			return d.snapshot(req, sent), fmt.Errorf("send %s: no resolver configured", req.Template)
		}
		if err := d.resolver.ReconcileEvents(ctx, sent); err != nil {
			return d.snapshot(req, sent), fmt.Errorf("resolve sent events: %w", err)
		}
	}

	if req.WaitForCluster {
		if err := d.waitForCluster(ctx, tpl.Base, sent); err != nil {
			return d.snapshot(req, sent), err
		}
	}

	return d.snapshot(req, sent), nil
}

// submit runs the pool. Workers only submit; the caller owns the results.
func (d *Dispatcher) submit(ctx context.Context, events []*models.Event) ([]models.Event, []error) {
	workers := min(max(d.cfg.Workers, 1), len(events))

	jobs := make(chan int)
	results := make(chan result, len(events))

	for i := 0; i < workers; i++ {
		go func() {
			for idx := range jobs {
				results <- result{idx: idx, err: d.submitOne(ctx, events[idx])}
			}
		}()
	}

	for i := range events {
		jobs <- i
	}
	close(jobs)

	errs := make([]error, len(events))
	for range events {
		r := <-results
		errs[r.idx] = r.err
	}

	var sent []models.Event
	var failed []error
	for i, ev := range events {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		sent = append(sent, *ev)
	}
	return sent, failed
}

func (d *Dispatcher) submitOne(ctx context.Context, ev *models.Event) error {
	payload, err := factory.IngestRequest(ev, d.token)
	if err != nil {
		return err
	}

	policy := retry.Policy{
		Name:        "ingest " + ev.Template,
		MaxAttempts: d.cfg.SubmitAttempts,
		Delay:       d.cfg.SubmitDelay,
		Retryable:   client.IsTransient,
		OnRetry: func(int, error) {
			observability.SubmitRetries.Inc()
		},
	}
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		return d.ingest.Ingest(ctx, payload)
	})
	if err != nil {
		kind := "other"
		switch {
		case errors.Is(err, client.ErrUnprocessable):
			kind = "unprocessable"
		case client.IsTransient(err):
			kind = "transient"
		}
		observability.SubmitFailures.WithLabelValues(kind).Inc()
		return fmt.Errorf("submit event %s: %w", ev.LocalID, err)
	}

	d.clock.Mark(time.Now())
	observability.EventsSent.WithLabelValues(string(ev.Base)).Inc()
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, tpl factory.Template, cam models.Camera, ts int64, n int) {
	if d.notifier == nil {
		return
	}
	notice := models.SentNotice{
		RunID:     d.runID,
		Template:  tpl.Raw,
		Base:      tpl.Base,
		CameraID:  cam.ID,
		Count:     n,
		Timestamp: ts,
		SentAt:    time.Now().UTC(),
	}
	if err := d.notifier.PublishSent(ctx, notice); err != nil {
		slog.Warn("publish sent notice failed", "template", tpl.Raw, "error", err)
	}
}

func (d *Dispatcher) waitForCluster(ctx context.Context, base models.Base, sent []models.Event) error {
	if d.waiter == nil {
		return fmt.Errorf("wait for cluster: no waiter configured")
	}

	var ids []int64
	for _, ev := range d.store.Get(localIDs(sent)...) {
		if ev.ID != nil {
			ids = append(ids, *ev.ID)
		}
	}

	objects, err := d.waiter.Wait(ctx, base, ids)
	if err != nil {
		return fmt.Errorf("wait for cluster: %w", err)
	}
	for _, obj := range objects {
		if _, err := d.store.Refresh(obj); err != nil {
			return fmt.Errorf("wait for cluster: %w", err)
		}
	}
	return nil
}

// snapshot returns the current state of sent events: the stored copies
// when tracked, the submitted ones otherwise.
func (d *Dispatcher) snapshot(req SendRequest, sent []models.Event) []models.Event {
	if req.Untracked {
		return sent
	}
	return d.store.Get(localIDs(sent)...)
}

func localIDs(events []models.Event) []uuid.UUID {
	ids := make([]uuid.UUID, len(events))
	for i, ev := range events {
		ids[i] = ev.LocalID
	}
	return ids
}
