package backfill

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/marketsync/internal/core/domain"
	"github.com/vietddude/marketsync/internal/reliability/metrics"
)

// Run drains the queue until ctx is cancelled. A bounded worker pool executes
// claimed tasks so one slow or backing-off series does not starve the rest.
func (s *Scheduler) Run(ctx context.Context) error {
	taskCh := make(chan *domain.BackfillTask)
	var wg sync.WaitGroup

	for i := 0; i < s.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				if err := s.ExecuteTask(ctx, task); err != nil {
					s.log.Error("Task execution error", "task", task.ID, "error", err)
				}
			}
		}()
	}

	ticker := time.NewTicker(s.cfg.DrainInterval)
	defer ticker.Stop()

	// First drain immediately, then on the interval.
	s.drainOnce(ctx, taskCh)

	for {
		select {
		case <-ctx.Done():
			close(taskCh)
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.drainOnce(ctx, taskCh)
		}
	}
}

func (s *Scheduler) drainOnce(ctx context.Context, taskCh chan<- *domain.BackfillTask) {
	if n, err := s.tasks.ReclaimStale(ctx, s.cfg.LeaseTimeout); err != nil {
		s.log.Error("Failed to reclaim stale tasks", "error", err)
	} else if n > 0 {
		s.log.Warn("Reclaimed abandoned running tasks", "count", n)
	}

	if pending, err := s.tasks.CountByStatus(ctx, "", domain.TaskStatusPending); err == nil {
		metrics.QueueDepth.Set(float64(pending))
	}

	tasks, err := s.ClaimPending(ctx, s.cfg.ClaimBatch)
	if err != nil {
		s.log.Error("Failed to claim pending tasks", "error", err)
		return
	}

	for _, task := range tasks {
		select {
		case taskCh <- task:
		case <-ctx.Done():
			// Claimed-but-undispatched tasks stay running until the lease
			// expires and a later drain reclaims them.
			return
		}
	}
}
