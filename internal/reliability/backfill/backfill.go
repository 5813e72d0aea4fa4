// Package backfill schedules and executes gap-closing fetch jobs.
//
// # Design: Durable Queue, Idempotent Enqueue
//
// The task table is the single source of truth. Enqueue is idempotent on
// (series, range): re-detecting an unresolved gap resolves to the existing
// task instead of flooding the queue. Claiming uses a conditional update so
// horizontally scaled schedulers never execute the same task twice.
//
// # Usage
//
//	sched := backfill.NewScheduler(backfill.DefaultConfig(), deps)
//
//	// When a quality check finds a gap
//	sched.Enqueue(ctx, key, gap.Start, gap.End, domain.PriorityRecent, &expected)
//
//	// Background draining
//	go sched.Run(ctx)
package backfill

import (
	"time"

	"github.com/vietddude/marketsync/internal/reliability/retry"
)

// Config configures the scheduler's drain loop.
type Config struct {
	WorkerCount   int           // Concurrent task executors
	ClaimBatch    int           // Max tasks claimed per drain tick
	DrainInterval time.Duration // Time between drain ticks
	LeaseTimeout  time.Duration // Running tasks idle longer than this are reclaimed
	Retry         retry.Policy  // Per-task fetch retry policy
}

// DefaultConfig returns conservative defaults for rate-limited upstreams.
// The lease must outlast the worst-case retry sequence of one task, or a
// slow task gets reclaimed while its claimant is still backing off.
func DefaultConfig() Config {
	return Config{
		WorkerCount:   4,
		ClaimBatch:    8,
		DrainInterval: 30 * time.Second,
		LeaseTimeout:  10 * time.Minute,
		Retry:         retry.DefaultPolicy(),
	}
}
