package precondition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/fdsender/internal/camera"
	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/dispatch"
	"github.com/your-org/fdsender/internal/factory"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/reconcile"
	"github.com/your-org/fdsender/internal/store"
	"github.com/your-org/fdsender/internal/testutil"
)

type fixture struct {
	backend *testutil.Backend
	store   *store.Store
	d       *dispatch.Dispatcher
	solver  *Solver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := testutil.NewBackend(
		models.Camera{ID: 1, Name: "camera-1", Active: true},
		models.Camera{ID: 2, Name: "camera-2", Active: true},
		models.Camera{ID: 3, Name: "camera-3", Active: true},
	)
	st := store.New()
	cams := camera.NewCache(b)
	rec := reconcile.New(b, st, cams, config.ReconcileConfig{Attempts: 3, Delay: time.Millisecond, PageSize: 250})

	d := dispatch.New(config.SenderConfig{
		Workers:        4,
		SubmitAttempts: 2,
		SubmitDelay:    time.Millisecond,
		DefaultCamera:  "camera-1",
	}, "tok", b, cams, factory.New(testutil.ImageSource{Data: testutil.PNG(t, 4, 4)}), st)
	d.SetResolver(rec)
	d.Pacer().SetClock(time.Now, func(context.Context, time.Duration) error { return nil })

	return &fixture{backend: b, store: st, d: d, solver: New(d, rec, st, cams)}
}

func (f *fixture) count(t *testing.T, template string, cameraIDs ...int64) int {
	t.Helper()
	tpl, err := factory.ParseTemplate(template)
	require.NoError(t, err)
	n, err := f.store.Count(store.Query{Base: tpl.Base, CameraIDs: cameraIDs, Meta: tpl.Filter()})
	require.NoError(t, err)
	return n
}

func (f *fixture) send(t *testing.T, template string, n int, cam string) {
	t.Helper()
	_, err := f.d.Send(context.Background(), dispatch.SendRequest{Template: template, Count: n, Camera: cam, Resolve: true})
	require.NoError(t, err)
}

func TestCheckMin_SendsExactlyTheGap(t *testing.T) {
	f := newFixture(t)
	f.send(t, "face-male", 2, "")
	before := f.backend.Ingested()

	require.NoError(t, f.solver.CheckMin(context.Background(), map[string]int{"face-male": 5}, Scope{}))

	assert.Equal(t, 3, f.backend.Ingested()-before)
	assert.Equal(t, 5, f.count(t, "face-male"))
	assert.Empty(t, f.store.Unresolved(models.BaseFace))
}

func TestCheckMin_Idempotent(t *testing.T) {
	f := newFixture(t)
	conds := map[string]int{"face-female": 2, "vehicle-type-suv": 3, "person": 1}

	require.NoError(t, f.solver.CheckMin(context.Background(), conds, Scope{}))
	ingested, searches := f.backend.Ingested(), f.backend.Searches()

	require.NoError(t, f.solver.CheckMin(context.Background(), conds, Scope{}))
	assert.Equal(t, ingested, f.backend.Ingested())
	assert.Equal(t, searches, f.backend.Searches())

	for tpl, n := range conds {
		assert.GreaterOrEqual(t, f.count(t, tpl), n, tpl)
	}
}

func TestCheckMin_ScopedCamerasAndMeta(t *testing.T) {
	f := newFixture(t)
	f.send(t, "face", 4, "camera-1")

	scope := Scope{Cameras: []string{"camera-2", "camera-3"}, Meta: &models.MetaFilter{Gender: "female"}}
	require.NoError(t, f.solver.CheckMin(context.Background(), map[string]int{"face": 2}, scope))

	assert.Equal(t, 2, f.count(t, "face-female", 2, 3))
	assert.Equal(t, 2, f.count(t, "face", 2))
	assert.Zero(t, f.count(t, "face", 3))
}

func TestCheckMin_BadTemplateFailsBeforeSending(t *testing.T) {
	f := newFixture(t)
	err := f.solver.CheckMin(context.Background(), map[string]int{"face-male": 1, "face-sedan": 1}, Scope{})
	require.ErrorIs(t, err, factory.ErrUnknownAttribute)
	assert.Zero(t, f.backend.Ingested())
}

func TestCheckMax(t *testing.T) {
	f := newFixture(t)
	f.send(t, "vehicle-type-bus", 3, "")
	before := f.backend.Ingested()

	require.NoError(t, f.solver.CheckMax(context.Background(), map[string]int{"vehicle-type-bus": 3}, Scope{}))

	err := f.solver.CheckMax(context.Background(), map[string]int{"vehicle-type-bus": 2, "face": 0}, Scope{})
	require.ErrorIs(t, err, ErrPrecondition)
	assert.Contains(t, err.Error(), "vehicle-type-bus has 3 objects, max 2")
	assert.NotContains(t, err.Error(), "face")

	require.NoError(t, f.solver.CheckMax(context.Background(), map[string]int{"vehicle-type-bus": 0}, Scope{Cameras: []string{"camera-2"}}))
	assert.Equal(t, before, f.backend.Ingested())
}

func TestCheckDiff_StrictlyIncreasingInListOrder(t *testing.T) {
	f := newFixture(t)
	f.send(t, "face-male", 4, "")
	f.send(t, "face-female", 1, "")

	templates := []string{"face-male", "face-female", "vehicle-type-sedan"}
	require.NoError(t, f.solver.CheckDiff(context.Background(), templates, Scope{}, 1))

	counts := []int{f.count(t, templates[0]), f.count(t, templates[1]), f.count(t, templates[2])}
	assert.Equal(t, []int{4, 5, 6}, counts)
	assert.Empty(t, f.store.Unresolved(models.BaseFace))
	assert.Empty(t, f.store.Unresolved(models.BaseVehicle))

	before := f.backend.Ingested()
	require.NoError(t, f.solver.CheckDiff(context.Background(), templates, Scope{}, 1))
	assert.Equal(t, before, f.backend.Ingested())
}

func TestCheckDiff_MinCount(t *testing.T) {
	f := newFixture(t)
	templates := []string{"person-male", "person-female"}
	require.NoError(t, f.solver.CheckDiff(context.Background(), templates, Scope{}, 3))
	assert.Equal(t, 3, f.count(t, "person-male"))
	assert.Equal(t, 4, f.count(t, "person-female"))
}

func TestCheckDiff_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.solver.CheckDiff(ctx, []string{"face", "face"}, Scope{}, 1), ErrPrecondition)
	require.ErrorIs(t, f.solver.CheckDiff(ctx, []string{"face"}, Scope{}, -1), ErrPrecondition)
	assert.Zero(t, f.backend.Ingested())

	// Every face-male also counts as a face, so face can never be smaller.
	err := f.solver.CheckDiff(ctx, []string{"face", "face-male"}, Scope{}, 1)
	require.ErrorIs(t, err, ErrPrecondition)
	assert.Contains(t, err.Error(), "overlapping")
}

func TestCheckDiffInCameras_EmptySetFailsBeforeIO(t *testing.T) {
	s := New(nil, nil, nil, nil)
	err := s.CheckDiffInCameras(context.Background(), "face", []string{}, []string{"camera-1"})
	require.ErrorIs(t, err, ErrPrecondition)

	var perr *PreconditionError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "#1")
}

func TestCheckDiffInCameras(t *testing.T) {
	f := newFixture(t)
	f.send(t, "face", 2, "camera-1")

	err := f.solver.CheckDiffInCameras(context.Background(), "face", []string{"camera-1"}, []string{"camera-2", "camera-3"})
	require.NoError(t, err)

	one, twoThree := f.count(t, "face", 1), f.count(t, "face", 2, 3)
	assert.Equal(t, 2, one)
	assert.Equal(t, 3, twoThree)
	assert.Equal(t, 3, f.count(t, "face", 2))
}

func TestCheckDiffInCameras_OverlappingSets(t *testing.T) {
	f := newFixture(t)

	err := f.solver.CheckDiffInCameras(context.Background(), "vehicle", []string{"camera-1"}, []string{"camera-1", "camera-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(t, "vehicle", 1))
	assert.Equal(t, 2, f.count(t, "vehicle", 1, 2))
	assert.Equal(t, 1, f.count(t, "vehicle", 2))
}
