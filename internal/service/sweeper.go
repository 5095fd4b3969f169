package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"reveal-service/internal/observability"
)

// Sweeper reconciles due messages on a fixed interval and optionally deletes
// messages whose group is gone.
type Sweeper struct {
	messages  *MessageService
	interval  time.Duration
	batchSize int
	gcOrphans bool
	log       *zap.Logger
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Revealed       int64    `json:"revealed"`
	Batches        int      `json:"batches"`
	SkippedGroups  []string `json:"skipped_groups,omitempty"`
	CommitFailed   bool     `json:"commit_failed,omitempty"`
	OrphansDeleted int64    `json:"orphans_deleted"`
}

func NewSweeper(messages *MessageService, interval time.Duration, batchSize int, gcOrphans bool) *Sweeper {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Sweeper{
		messages:  messages,
		interval:  interval,
		batchSize: batchSize,
		gcOrphans: gcOrphans,
		log:       messages.deps.Log.Named("sweeper"),
	}
}

// Run sweeps every interval until ctx is done. A non-positive interval disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("reveal sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep pages through reveal candidates until none are left or a short page
// is seen. Groups that fail to load are skipped for the rest of the sweep so
// later groups still get their turn. A failed commit ends paging; the next
// sweep retries it.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	deps := s.messages.deps
	for {
		candidates, err := deps.Messages.ListRevealCandidates(ctx, deps.Clock.Now(), s.batchSize, result.SkippedGroups)
		if err != nil {
			return result, storeFailure("failed to list reveal candidates", err)
		}
		if len(candidates) == 0 {
			break
		}
		res, _ := reconcile(ctx, deps, candidates)
		result.Batches++
		result.Revealed += res.Revealed
		result.SkippedGroups = append(result.SkippedGroups, res.FailedGroups...)
		if res.CommitFailed {
			result.CommitFailed = true
			break
		}
		if len(candidates) < s.batchSize {
			break
		}
		// a full page with no progress can only repeat itself
		if res.Revealed == 0 && len(res.FailedGroups) == 0 {
			break
		}
	}

	if s.gcOrphans {
		deleted, err := deps.Messages.DeleteOrphaned(ctx)
		if err != nil {
			return result, storeFailure("failed to delete orphaned messages", err)
		}
		result.OrphansDeleted = deleted
		if deleted > 0 {
			observability.AddOrphansDeleted(deleted)
			s.log.Info("orphaned messages deleted", zap.Int64("count", deleted))
		}
	}
	return result, nil
}
