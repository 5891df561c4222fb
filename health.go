package runner

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EnsureGreen blocks until the cluster (scoped to the given indices, none
// meaning all) reaches green status with no relocating shards and a
// drained pending-task queue. On timeout the diagnostic goes through the
// failure policy and the last observed status is returned regardless, so
// callers that tolerate a lower status can proceed.
func (r *Runner) EnsureGreen(ctx context.Context, indices ...string) (HealthStatus, error) {
	return r.awaitHealth(ctx, "ensureGreen", StatusGreen, true, indices...)
}

// EnsureYellow blocks until the cluster reaches at least yellow status
// with no relocating shards and a drained pending-task queue.
func (r *Runner) EnsureYellow(ctx context.Context, indices ...string) (HealthStatus, error) {
	return r.awaitHealth(ctx, "ensureYellow", StatusYellow, true, indices...)
}

// WaitForRelocation blocks until no shards are relocating, without a
// status floor. Every relocation-sensitive operation calls it first so it
// never observes a cluster mid-rebalance.
func (r *Runner) WaitForRelocation(ctx context.Context) (HealthStatus, error) {
	return r.awaitHealth(ctx, "waitForRelocation", StatusRed, false)
}

// awaitHealth polls the cluster health until the convergence conditions
// hold or the configured health timeout elapses. The last observed status
// is always returned; on timeout the error follows the failure policy.
func (r *Runner) awaitHealth(ctx context.Context, op string, target HealthStatus, waitStatus bool, indices ...string) (HealthStatus, error) {
	cli, err := r.Client()
	if err != nil {
		return StatusRed, err
	}

	start := time.Now()
	deadline := time.NewTimer(r.cfg.healthTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.cfg.healthPollInterval)
	defer ticker.Stop()

	var last *ClusterHealth
	for {
		health, err := cli.Health(ctx, indices...)
		if err == nil {
			last = health
			converged := health.RelocatingShards == 0 && health.PendingTasks == 0
			if converged && (!waitStatus || health.Status.AtLeast(target)) {
				r.cfg.recorder.recordHealthWait(op, time.Since(start), false)
				return health.Status, nil
			}
		}

		select {
		case <-ctx.Done():
			return lastStatus(last), ctx.Err()
		case <-deadline.C:
			r.cfg.recorder.recordHealthWait(op, time.Since(start), true)
			r.cfg.recorder.recordConvergenceTimeout(op)
			msg := fmt.Sprintf("%s timed out, cluster state:\n%s", op, r.stateDump(ctx, cli))
			return lastStatus(last), r.onFailure(msg, last)
		case <-ticker.C:
		}
	}
}

// stateDump renders the full cluster state and pending tasks for timeout
// diagnostics.
func (r *Runner) stateDump(ctx context.Context, cli Client) string {
	var b strings.Builder
	if state, err := cli.State(ctx); err == nil {
		b.WriteString(state.String())
	} else {
		fmt.Fprintf(&b, "cluster state unavailable: %v", err)
	}
	b.WriteString("\npending tasks:\n")
	if tasks, err := cli.PendingTasks(ctx); err == nil {
		if len(tasks) == 0 {
			b.WriteString("(none)")
		} else {
			b.WriteString(strings.Join(tasks, "\n"))
		}
	} else {
		fmt.Fprintf(&b, "unavailable: %v", err)
	}
	return b.String()
}

func lastStatus(health *ClusterHealth) HealthStatus {
	if health == nil {
		return StatusRed
	}
	return health.Status
}
