// Package cluster waits for freshly sent objects to join an existing cluster.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/your-org/fdsender/internal/client"
	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/observability"
	"github.com/your-org/fdsender/internal/retry"
	"github.com/your-org/fdsender/pkg/dto"
)

var ErrNotClustered = errors.New("clusterization failed")

var errNotYet = errors.New("cluster not formed yet")

// ClusterError lists the objects still outside a cluster when the polling
// budget ran out.
type ClusterError struct {
	Base    models.Base
	Pending []int64
}

func (e *ClusterError) Error() string {
	return fmt.Sprintf("clusterization failed: %d %s objects not clustered: %v", len(e.Pending), e.Base, e.Pending)
}

func (e *ClusterError) Is(target error) bool {
	return target == ErrNotClustered
}

type ObjectGetter interface {
	GetObject(ctx context.Context, base models.Base, id int64) (*dto.Object, error)
}

type Waiter struct {
	objects ObjectGetter
	cfg     config.ClusterConfig
}

func NewWaiter(objects ObjectGetter, cfg config.ClusterConfig) *Waiter {
	return &Waiter{objects: objects, cfg: cfg}
}

// Wait polls every id until each reports cluster_size > 1 and returns the
// final objects in id order. An empty id set returns immediately.
func (w *Waiter) Wait(ctx context.Context, base models.Base, ids []int64) ([]dto.Object, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() {
		observability.ClusterWaitDuration.Observe(time.Since(start).Seconds())
	}()

	done := make(map[int64]dto.Object, len(ids))
	pending := slices.Clone(ids)

	policy := retry.Policy{
		Name:        "wait cluster " + string(base),
		MaxAttempts: w.cfg.Attempts,
		Delay:       w.cfg.Delay,
		Retryable: func(err error) bool {
			return errors.Is(err, errNotYet) || client.IsTransient(err) || errors.Is(err, client.ErrNotFound)
		},
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var still []int64
		for _, id := range pending {
			obj, err := w.objects.GetObject(ctx, base, id)
			if err != nil {
				return fmt.Errorf("get %s object %d: %w", base, id, err)
			}
			if obj.ClusterSize > 1 {
				done[id] = *obj
				continue
			}
			still = append(still, id)
		}
		pending = still
		if len(pending) > 0 {
			return fmt.Errorf("%d objects: %w", len(pending), errNotYet)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil || !policy.Retryable(err) {
			return nil, err
		}
		slog.Error("cluster wait budget exhausted", "base", base, "pending", len(pending), "attempts", w.cfg.Attempts)
		return nil, &ClusterError{Base: base, Pending: pending}
	}

	out := make([]dto.Object, 0, len(ids))
	for _, id := range ids {
		out = append(out, done[id])
	}
	return out, nil
}
