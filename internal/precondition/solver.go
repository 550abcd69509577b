// Package precondition drives the dispatcher until the local store holds
// the object counts a UI scenario needs.
package precondition

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/your-org/fdsender/internal/dispatch"
	"github.com/your-org/fdsender/internal/factory"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/store"
)

type Sender interface {
	Send(ctx context.Context, req dispatch.SendRequest) ([]models.Event, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) error
}

type CameraResolver interface {
	ResolveAll(ctx context.Context, refs []string) ([]int64, error)
}

// Scope narrows counting to a camera set and a metadata filter. Top-ups go
// to the first camera of the set (the default camera when the set is empty)
// and carry the filter's concrete metadata.
type Scope struct {
	Cameras []string
	Meta    *models.MetaFilter
}

type Solver struct {
	sender     Sender
	reconciler Reconciler
	store      *store.Store
	cameras    CameraResolver
}

func New(sender Sender, reconciler Reconciler, st *store.Store, cameras CameraResolver) *Solver {
	return &Solver{sender: sender, reconciler: reconciler, store: st, cameras: cameras}
}

// group is one counted bucket: a template over a camera set.
type group struct {
	label     string
	tpl       factory.Template
	cameras   []string
	cameraIDs []int64
	meta      *models.MetaFilter
}

func (g group) query() store.Query {
	f := g.tpl.Filter()
	if g.meta != nil {
		f = f.And(*g.meta)
	}
	return store.Query{Base: g.tpl.Base, CameraIDs: g.cameraIDs, Meta: f}
}

// avoiding moves the first camera outside ids to the front, so a top-up
// does not also grow an overlapping group.
func (g group) avoiding(ids []int64) group {
	for i, id := range g.cameraIDs {
		if i < len(g.cameras) && !slices.Contains(ids, id) {
			cams := slices.Clone(g.cameras)
			cams[0], cams[i] = cams[i], cams[0]
			g.cameras = cams
			return g
		}
	}
	return g
}

func (s *Solver) newGroup(ctx context.Context, template string, scope Scope) (group, error) {
	tpl, err := factory.ParseTemplate(template)
	if err != nil {
		return group{}, err
	}
	g := group{label: template, tpl: tpl, cameras: scope.Cameras, meta: scope.Meta}
	if len(scope.Cameras) > 0 {
		if g.cameraIDs, err = s.cameras.ResolveAll(ctx, scope.Cameras); err != nil {
			return group{}, fmt.Errorf("resolve cameras of %s: %w", template, err)
		}
	}
	return g, nil
}

func (s *Solver) count(g group) (int, error) {
	n, err := s.store.Count(g.query())
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", g.label, err)
	}
	return n, nil
}

// topUp sends enough events to bring g to target and reports how many it
// sent. A met target makes no call.
func (s *Solver) topUp(ctx context.Context, g group, target int) (int, error) {
	current, err := s.count(g)
	if err != nil {
		return 0, err
	}
	need := target - current
	if need <= 0 {
		return 0, nil
	}

	req := dispatch.SendRequest{Template: g.tpl.Raw, Count: need}
	if len(g.cameras) > 0 {
		req.Camera = g.cameras[0]
	}
	if g.meta != nil {
		m := g.meta.Metadata()
		req.Metadata = &m
	}

	slog.Info("topping up objects", "subject", g.label, "current", current, "target", target, "sending", need)
	if _, err := s.sender.Send(ctx, req); err != nil {
		return 0, fmt.Errorf("top up %s: %w", g.label, err)
	}
	return need, nil
}

func (s *Solver) reconcileIfSent(ctx context.Context, sent int) error {
	if sent == 0 {
		return nil
	}
	if err := s.reconciler.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile top-ups: %w", err)
	}
	return nil
}

// CheckMin makes every template in conditions reach at least its target.
// Templates are handled in sorted order; a full reconcile pass follows when
// anything was sent.
func (s *Solver) CheckMin(ctx context.Context, conditions map[string]int, scope Scope) error {
	groups, err := s.groups(ctx, sortedKeys(conditions), scope)
	if err != nil {
		return err
	}

	sent := 0
	for _, g := range groups {
		n, err := s.topUp(ctx, g, conditions[g.label])
		if err != nil {
			return err
		}
		sent += n
	}
	return s.reconcileIfSent(ctx, sent)
}

// CheckMax fails when any template exceeds its bound. It never sends.
func (s *Solver) CheckMax(ctx context.Context, conditions map[string]int, scope Scope) error {
	groups, err := s.groups(ctx, sortedKeys(conditions), scope)
	if err != nil {
		return err
	}

	var violations []string
	for _, g := range groups {
		n, err := s.count(g)
		if err != nil {
			return err
		}
		if limit := conditions[g.label]; n > limit {
			violations = append(violations, fmt.Sprintf("%s has %d objects, max %d", g.label, n, limit))
		}
	}
	if len(violations) > 0 {
		return violation("max objects count", "%s", strings.Join(violations, "; "))
	}
	return nil
}

// CheckDiff leaves templates with pairwise distinct counts, strictly
// increasing in list order, each at least minCount.
func (s *Solver) CheckDiff(ctx context.Context, templates []string, scope Scope, minCount int) error {
	if minCount < 0 {
		return violation("diff objects count", "negative min count %d", minCount)
	}
	for i, t := range templates {
		if slices.Contains(templates[:i], t) {
			return violation(t, "listed twice, counts can never differ")
		}
	}

	groups, err := s.groups(ctx, templates, scope)
	if err != nil {
		return err
	}
	return s.diff(ctx, groups, minCount)
}

// CheckDiffInCameras is CheckDiff for one template over camera groupings.
// Every grouping must be non-empty; that is checked before any I/O.
func (s *Solver) CheckDiffInCameras(ctx context.Context, template string, cameraSets ...[]string) error {
	for i, set := range cameraSets {
		if len(set) == 0 {
			return violation(template, "camera set #%d is empty", i+1)
		}
	}

	groups := make([]group, 0, len(cameraSets))
	for _, set := range cameraSets {
		g, err := s.newGroup(ctx, template, Scope{Cameras: set})
		if err != nil {
			return err
		}
		g.label = template + "@" + strings.Join(set, ",")
		groups = append(groups, g)
	}
	return s.diff(ctx, groups, 1)
}

// diff tops every group up to minCount, then walks the list raising each
// group to one more than its predecessor. Groups may overlap (a template
// and its refinement, nested camera sets), so the walk repeats until the
// ordering holds, at most once per group.
func (s *Solver) diff(ctx context.Context, groups []group, minCount int) error {
	sent := 0
	for _, g := range groups {
		n, err := s.topUp(ctx, g, minCount)
		if err != nil {
			return err
		}
		sent += n
	}

	for pass := 0; pass <= len(groups); pass++ {
		counts, err := s.counts(groups)
		if err != nil {
			return err
		}
		if increasing(counts) {
			return s.reconcileIfSent(ctx, sent)
		}

		prev := -1
		var prevIDs []int64
		for _, g := range groups {
			current, err := s.count(g)
			if err != nil {
				return err
			}
			target := max(current, prev+1)
			n, err := s.topUp(ctx, g.avoiding(prevIDs), target)
			if err != nil {
				return err
			}
			sent += n
			prev = target
			prevIDs = g.cameraIDs
		}
	}

	if err := s.reconcileIfSent(ctx, sent); err != nil {
		return err
	}
	counts, err := s.counts(groups)
	if err != nil {
		return err
	}
	if increasing(counts) {
		return nil
	}
	labels := make([]string, len(groups))
	for i, g := range groups {
		labels[i] = fmt.Sprintf("%s=%d", g.label, counts[i])
	}
	return violation("diff objects count", "overlapping groups cannot be ordered: %s", strings.Join(labels, ", "))
}

func (s *Solver) groups(ctx context.Context, templates []string, scope Scope) ([]group, error) {
	// Parse everything first so a bad template fails before any send.
	for _, t := range templates {
		if _, err := factory.ParseTemplate(t); err != nil {
			return nil, err
		}
	}
	groups := make([]group, 0, len(templates))
	for _, t := range templates {
		g, err := s.newGroup(ctx, t, scope)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (s *Solver) counts(groups []group) ([]int, error) {
	out := make([]int, len(groups))
	for i, g := range groups {
		n, err := s.count(g)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func increasing(counts []int) bool {
	for i := 1; i < len(counts); i++ {
		if counts[i] <= counts[i-1] {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
