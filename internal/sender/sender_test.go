package sender

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/dispatch"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/precondition"
	"github.com/your-org/fdsender/internal/testutil"
)

func newSender(t *testing.T, b *testutil.Backend) *Sender {
	t.Helper()
	cfg := config.Default()
	cfg.Sender.SubmitDelay = time.Millisecond
	cfg.Reconcile.Delay = time.Millisecond
	cfg.Reconcile.Attempts = 3
	cfg.Cluster.Delay = time.Millisecond
	cfg.Cluster.Attempts = 3

	s := New(cfg, b, testutil.ImageSource{Data: testutil.PNG(t, 4, 4)})
	s.dispatcher.Pacer().SetClock(time.Now, func(context.Context, time.Duration) error { return nil })
	return s
}

func TestSender_CountsIncludeImportedHistory(t *testing.T) {
	b := testutil.NewBackend()
	b.Seed(models.BaseFace, 1, time.Now().Unix(), models.Metadata{Gender: "male", Quality: models.QualityGood})
	b.Seed(models.BaseFace, 1, time.Now().Unix(), models.Metadata{Gender: "male"})
	s := newSender(t, b)

	n, err := s.ObjectsCount(context.Background(), "face-male", CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.CheckMin(context.Background(), map[string]int{"face-male": 5}, precondition.Scope{}))
	assert.Equal(t, 3, b.Ingested())

	n, err = s.ObjectsCount(context.Background(), "face-male", CountOptions{Timeslice: "1h"})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, s.Events(), 5)
}

func TestSender_SendThenCountDoesNotDoubleCount(t *testing.T) {
	b := testutil.NewBackend()
	s := newSender(t, b)

	events, err := s.Send(context.Background(), dispatch.SendRequest{Template: "vehicle-type-sedan", Count: 3, Camera: "camera-1", Resolve: true})
	require.NoError(t, err)
	require.Len(t, events, 3)

	n, err := s.ObjectsCount(context.Background(), "vehicle-type-sedan", CountOptions{Cameras: []string{"camera-1"}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	imported, err := s.Import(context.Background())
	require.NoError(t, err)
	assert.Zero(t, imported)
	assert.False(t, s.LastSendTime().IsZero())
}

func TestSender_ImportWhileEventsPending(t *testing.T) {
	b := testutil.NewBackend()
	s := newSender(t, b)
	ctx := context.Background()

	events, err := s.Send(ctx, dispatch.SendRequest{Template: "face-male", Count: 3})
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.True(t, ev.NeedsResolution)
	}

	imported, err := s.Import(ctx)
	require.NoError(t, err)
	assert.Zero(t, imported)

	require.NoError(t, s.Reconcile(ctx))

	n, err := s.ObjectsCount(ctx, "face-male", CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all := s.Events()
	require.Len(t, all, 3)
	for _, ev := range all {
		assert.False(t, ev.Abandoned)
		assert.True(t, ev.Resolved())
	}
}

func TestSender_CreateCameraRefreshesCache(t *testing.T) {
	b := testutil.NewBackend()
	s := newSender(t, b)
	ctx := context.Background()

	cams, err := s.Cameras(ctx)
	require.NoError(t, err)
	require.Len(t, cams, 1)

	cam, err := s.CreateCamera(ctx, "lobby", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cam.ID)

	cams, err = s.Cameras(ctx)
	require.NoError(t, err)
	assert.Len(t, cams, 2)

	events, err := s.Send(ctx, dispatch.SendRequest{Template: "face", Count: 1, Camera: "lobby", Resolve: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), events[0].Camera.ID)
}

func TestSender_CountForAges(t *testing.T) {
	b := testutil.NewBackend()
	age := 33
	b.Seed(models.BaseFace, 1, time.Now().Unix(), models.Metadata{Age: &age})
	s := newSender(t, b)

	require.NoError(t, s.CheckMin(context.Background(), map[string]int{"face-age-20-30": 2}, precondition.Scope{}))

	n, err := s.ObjectsCountForAges(context.Background(), 20, 30, CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.ObjectsCountForAges(context.Background(), 18, 40, CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// The age range never leaves the process.
	for _, o := range b.Objects(models.BaseFace) {
		assert.NotContains(t, string(o.Metadata), "age_range")
		assert.NotContains(t, string(o.Metadata), "20")
	}
}

func TestSender_CheckDiffInCamerasEmptySet(t *testing.T) {
	b := testutil.NewBackend()
	s := newSender(t, b)

	err := s.CheckDiffInCameras(context.Background(), "face", []string{}, []string{"camera-1"})
	require.ErrorIs(t, err, precondition.ErrPrecondition)
	assert.Zero(t, b.Searches())
	assert.Zero(t, b.Ingested())
}

func TestSender_UnknownCamera(t *testing.T) {
	s := newSender(t, testutil.NewBackend())
	_, err := s.ObjectsCount(context.Background(), "face", CountOptions{Cameras: []string{"ghost"}})
	require.Error(t, err)
}
