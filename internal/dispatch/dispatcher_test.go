package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/fdsender/internal/camera"
	"github.com/your-org/fdsender/internal/client"
	"github.com/your-org/fdsender/internal/cluster"
	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/factory"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/reconcile"
	"github.com/your-org/fdsender/internal/store"
	"github.com/your-org/fdsender/internal/testutil"
)

var senderCfg = config.SenderConfig{
	Workers:        4,
	SubmitAttempts: 3,
	SubmitDelay:    time.Millisecond,
	DefaultCamera:  "camera-1",
	PaceInterval:   time.Second,
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []models.SentNotice
	err     error
}

func (n *recordingNotifier) PublishSent(_ context.Context, notice models.SentNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

type fixture struct {
	backend *testutil.Backend
	store   *store.Store
	d       *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := testutil.NewBackend(
		models.Camera{ID: 1, Name: "camera-1", Active: true},
		models.Camera{ID: 2, Name: "camera-2", Active: true},
	)
	st := store.New()
	cams := camera.NewCache(b)
	f := factory.New(testutil.ImageSource{Data: testutil.PNG(t, 4, 4)})

	d := New(senderCfg, "tok", b, cams, f, st)
	d.SetResolver(reconcile.New(b, st, cams, config.ReconcileConfig{Attempts: 3, Delay: time.Millisecond, PageSize: 250}))
	d.SetClusterWaiter(cluster.NewWaiter(b, config.ClusterConfig{Attempts: 3, Delay: time.Millisecond}))
	d.Pacer().SetClock(time.Now, func(context.Context, time.Duration) error { return nil })

	return &fixture{backend: b, store: st, d: d}
}

func TestSend_ResolvesSedans(t *testing.T) {
	f := newFixture(t)

	events, err := f.d.Send(context.Background(), SendRequest{
		Template: "vehicle-type-sedan",
		Count:    3,
		Camera:   "camera-1",
		Resolve:  true,
	})
	require.NoError(t, err)
	require.Len(t, events, 3)

	ids := map[int64]bool{}
	for _, ev := range events {
		assert.False(t, ev.NeedsResolution)
		assert.Equal(t, models.BaseVehicle, ev.Base)
		assert.Equal(t, "sedan", ev.Metadata.VehicleType)
		assert.Equal(t, "sedan", ev.Metadata.Map()["type"])
		require.NotNil(t, ev.ID)
		ids[*ev.ID] = true
	}
	assert.Len(t, ids, 3)
	assert.Equal(t, 3, f.backend.Ingested())
	assert.False(t, f.d.Clock().Last().IsZero())
}

func TestSend_SharesOneTimestamp(t *testing.T) {
	f := newFixture(t)

	events, err := f.d.Send(context.Background(), SendRequest{Template: "face-male", Count: 5})
	require.NoError(t, err)
	require.Len(t, events, 5)
	for _, ev := range events {
		assert.Equal(t, events[0].Timestamp, ev.Timestamp)
		assert.Equal(t, int64(1), ev.Camera.ID)
		assert.True(t, ev.NeedsResolution)
	}
	assert.Equal(t, 5, f.store.Len())
}

func TestSend_Untracked(t *testing.T) {
	f := newFixture(t)

	events, err := f.d.Send(context.Background(), SendRequest{Template: "face", Count: 2, Untracked: true})
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Zero(t, f.store.Len())
	assert.Equal(t, 2, f.backend.Ingested())
}

func TestSend_InvalidRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.d.Send(ctx, SendRequest{Template: "face", Count: 0})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.d.Send(ctx, SendRequest{Template: "face", Count: 1, Untracked: true, Resolve: true})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.d.Send(ctx, SendRequest{Template: "face-sedan", Count: 1})
	require.ErrorIs(t, err, factory.ErrUnknownAttribute)

	_, err = f.d.Send(ctx, SendRequest{Template: "face", Count: 1, Camera: "nowhere"})
	require.ErrorIs(t, err, camera.ErrNotFound)

	assert.Zero(t, f.backend.Ingested())
}

func TestSend_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t)
	f.backend.FailIngest(testutil.TransientErr(), testutil.TransientErr())

	events, err := f.d.Send(context.Background(), SendRequest{Template: "person-female", Count: 1, Timestamp: 500})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(500), events[0].Timestamp)
	assert.Equal(t, 3, f.backend.Ingested())
}

func TestSend_TransientExhaustion(t *testing.T) {
	f := newFixture(t)
	f.backend.FailIngest(testutil.TransientErr(), testutil.TransientErr(), testutil.TransientErr())

	events, err := f.d.Send(context.Background(), SendRequest{Template: "face", Count: 1})
	require.Error(t, err)
	assert.True(t, client.IsTransient(err))
	assert.Empty(t, events)
	assert.Equal(t, senderCfg.SubmitAttempts, f.backend.Ingested())
	assert.True(t, f.d.Clock().Last().IsZero())
}

func TestSend_UnprocessableIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.backend.FailIngest(testutil.UnprocessableErr())

	_, err := f.d.Send(context.Background(), SendRequest{Template: "face", Count: 1})
	require.ErrorIs(t, err, client.ErrUnprocessable)
	assert.Equal(t, 1, f.backend.Ingested())
}

func TestSend_PartialFailureKeepsSentEvents(t *testing.T) {
	f := newFixture(t)
	f.backend.FailIngest(testutil.UnprocessableErr())

	events, err := f.d.Send(context.Background(), SendRequest{Template: "face-female", Count: 3, Resolve: true})
	require.ErrorIs(t, err, client.ErrUnprocessable)
	assert.Len(t, events, 2)
	assert.Equal(t, 2, f.store.Len())
}

func TestSend_AutoTimestampsArePaced(t *testing.T) {
	f := newFixture(t)
	base := time.Unix(1_700_000_000, 0)
	var slept []time.Duration
	f.d.Pacer().SetClock(func() time.Time { return base }, func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	var stamps []int64
	for range 3 {
		events, err := f.d.Send(context.Background(), SendRequest{Template: "face", Count: 1})
		require.NoError(t, err)
		stamps = append(stamps, events[0].Timestamp)
	}
	assert.Equal(t, []int64{1_700_000_000, 1_700_000_001, 1_700_000_002}, stamps)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestSend_AutoTimestampSkipsExplicitSeconds(t *testing.T) {
	f := newFixture(t)
	base := time.Unix(1_700_000_000, 0)
	f.d.Pacer().SetClock(func() time.Time { return base }, func(context.Context, time.Duration) error { return nil })
	ctx := context.Background()

	for _, ts := range []int64{base.Unix(), base.Unix() + 1} {
		_, err := f.d.Send(ctx, SendRequest{Template: "vehicle", Count: 1, Timestamp: ts})
		require.NoError(t, err)
	}

	events, err := f.d.Send(ctx, SendRequest{Template: "face", Count: 1})
	require.NoError(t, err)
	assert.Equal(t, base.Unix()+2, events[0].Timestamp)
}

func TestPacer_ObserveIgnoresPastSeconds(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	p := NewPacer(time.Second)
	p.SetClock(func() time.Time { return base }, func(context.Context, time.Duration) error { return nil })

	ts, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, base.Unix(), ts)

	p.Observe(base.Unix() - 5)
	p.Observe(base.Unix())
	ts, err = p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, base.Unix()+1, ts)

	p.Observe(base.Unix() + 2)
	p.Observe(base.Unix() + 3)
	ts, err = p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, base.Unix()+4, ts)
}

func TestSend_WaitForCluster(t *testing.T) {
	f := newFixture(t)
	f.backend.SetClusterAfter(1)

	events, err := f.d.Send(context.Background(), SendRequest{Template: "face-male", Count: 2, WaitForCluster: true})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		require.NotNil(t, ev.ClusterSize)
		assert.Equal(t, 2, *ev.ClusterSize)
		require.NotNil(t, ev.Metadata.Matched)
		assert.True(t, *ev.Metadata.Matched)
	}
}

func TestSend_WaitForClusterFails(t *testing.T) {
	f := newFixture(t)

	events, err := f.d.Send(context.Background(), SendRequest{Template: "face-male", Count: 1, WaitForCluster: true})
	require.ErrorIs(t, err, cluster.ErrNotClustered)
	require.Len(t, events, 1)
	assert.False(t, events[0].NeedsResolution)
}

func TestSend_UnresolvedSurfaces(t *testing.T) {
	f := newFixture(t)
	f.backend.SetVisibleAfter(testutil.Never)

	events, err := f.d.Send(context.Background(), SendRequest{Template: "face", Count: 2, Resolve: true})
	require.ErrorIs(t, err, reconcile.ErrUnresolved)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.False(t, ev.NeedsResolution)
		assert.True(t, ev.Abandoned)
	}
}

func TestSend_Notifies(t *testing.T) {
	f := newFixture(t)
	n := &recordingNotifier{err: errors.New("nats down")}
	f.d.SetNotifier(n)

	_, err := f.d.Send(context.Background(), SendRequest{Template: "vehicle-type-bus", Count: 2, Camera: "2", Timestamp: 42})
	require.NoError(t, err)
	require.Len(t, n.notices, 1)
	notice := n.notices[0]
	assert.Equal(t, f.d.RunID(), notice.RunID)
	assert.Equal(t, "vehicle-type-bus", notice.Template)
	assert.Equal(t, int64(2), notice.CameraID)
	assert.Equal(t, 2, notice.Count)
	assert.Equal(t, int64(42), notice.Timestamp)
}

func TestSendClock_Monotonic(t *testing.T) {
	var c SendClock
	assert.True(t, c.Last().IsZero())

	later := time.Unix(200, 0)
	c.Mark(later)
	c.Mark(time.Unix(100, 0))
	assert.True(t, c.Last().Equal(later))
}
