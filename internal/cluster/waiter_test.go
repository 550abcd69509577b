package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/testutil"
)

var testCfg = config.ClusterConfig{Attempts: 5, Delay: time.Millisecond}

func TestWait_EmptyIsNoop(t *testing.T) {
	b := testutil.NewBackend()
	objs, err := NewWaiter(b, testCfg).Wait(context.Background(), models.BaseFace, nil)
	require.NoError(t, err)
	assert.Empty(t, objs)
	assert.Zero(t, b.Lookups())
}

func TestWait_ClustersAfterPolling(t *testing.T) {
	b := testutil.NewBackend()
	b.SetClusterAfter(2)
	id1 := b.Seed(models.BaseFace, 1, 10, models.Metadata{})
	id2 := b.Seed(models.BaseFace, 1, 11, models.Metadata{})

	objs, err := NewWaiter(b, testCfg).Wait(context.Background(), models.BaseFace, []int64{id2, id1})
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, id2, objs[0].ID)
	assert.Equal(t, id1, objs[1].ID)
	for _, o := range objs {
		assert.Greater(t, o.ClusterSize, 1)
	}
	// Two ids, three rounds each.
	assert.Equal(t, 6, b.Lookups())
}

func TestWait_Bounded(t *testing.T) {
	b := testutil.NewBackend()
	id := b.Seed(models.BaseFace, 1, 10, models.Metadata{})

	_, err := NewWaiter(b, testCfg).Wait(context.Background(), models.BaseFace, []int64{id})
	require.ErrorIs(t, err, ErrNotClustered)

	var cerr *ClusterError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []int64{id}, cerr.Pending)
	assert.Equal(t, testCfg.Attempts, b.Lookups())
}

func TestWait_UnknownObjectExhausts(t *testing.T) {
	b := testutil.NewBackend()
	_, err := NewWaiter(b, testCfg).Wait(context.Background(), models.BaseVehicle, []int64{404})
	require.ErrorIs(t, err, ErrNotClustered)
}
