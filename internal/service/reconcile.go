package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"reveal-service/internal/changefeed"
	"reveal-service/internal/models"
	"reveal-service/internal/observability"
	"reveal-service/internal/reveal"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Examined     int      `json:"examined"`
	Eligible     int      `json:"eligible"`
	Revealed     int64    `json:"revealed"`
	FailedGroups []string `json:"failed_groups,omitempty"`
	CommitFailed bool     `json:"commit_failed,omitempty"`
}

// ReconcileRevealedStatus persists the reveal flag for every message in msgs
// whose effective reveal date has passed. Each group is looked up once; a
// group that fails to load is logged and skipped without affecting the rest.
// All flips are committed in a single all-or-nothing write, and nothing is
// written when no message is due. A failed commit is logged and reported in
// the result; the next pass retries it.
func (s *MessageService) ReconcileRevealedStatus(ctx context.Context, msgs []models.Message) (ReconcileResult, error) {
	result, _ := reconcile(ctx, s.deps, msgs)
	return result, nil
}

// reconcile does the work of ReconcileRevealedStatus and hands back the commit
// error for callers that must not proceed without it.
func reconcile(ctx context.Context, d Deps, msgs []models.Message) (ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "message.service.ReconcileRevealedStatus")
	defer span.End()

	now := d.Clock.Now()
	result := ReconcileResult{Examined: len(msgs)}

	order := make([]string, 0)
	byGroup := make(map[string][]models.Message)
	for _, m := range msgs {
		if m.GroupID == "" {
			continue
		}
		if _, ok := byGroup[m.GroupID]; !ok {
			order = append(order, m.GroupID)
		}
		byGroup[m.GroupID] = append(byGroup[m.GroupID], m)
	}

	var due []string
	touched := make([]string, 0, len(order))
	for _, groupID := range order {
		group, err := d.Groups.GetGroup(ctx, groupID)
		if err != nil {
			d.Log.Warn("reconcile: group lookup failed", zap.String("group_id", groupID), zap.Error(err))
			observability.IncReconcileGroupFailure()
			result.FailedGroups = append(result.FailedGroups, groupID)
			continue
		}
		before := len(due)
		for _, m := range byGroup[groupID] {
			if m.IsRevealed {
				continue
			}
			if reveal.IsRevealed(now, reveal.EffectiveDate(&group, m)) {
				due = append(due, m.ID)
			}
		}
		if len(due) > before {
			touched = append(touched, groupID)
		}
	}
	result.Eligible = len(due)
	span.SetAttributes(
		attribute.Int("reconcile.examined", result.Examined),
		attribute.Int("reconcile.eligible", result.Eligible),
		attribute.Int("reconcile.failed_groups", len(result.FailedGroups)),
	)
	if len(due) == 0 {
		return result, nil
	}

	revealed, err := d.Messages.MarkRevealed(ctx, due)
	if err != nil {
		d.Log.Error("reconcile: batch commit failed", zap.Int("messages", len(due)), zap.Error(err))
		observability.IncReconcileCommitFailure()
		span.SetStatus(codes.Error, "commit failed")
		result.CommitFailed = true
		return result, fmt.Errorf("commit reveal batch: %w", err)
	}
	result.Revealed = revealed
	observability.AddRevealed(revealed)
	d.Log.Info("reconcile: messages revealed", zap.Int64("revealed", revealed), zap.Int("groups", len(touched)))

	for _, groupID := range touched {
		d.notify(ctx, changefeed.Event{Collection: changefeed.Messages, GroupID: groupID})
	}
	return result, nil
}

// ReconcileGroup reconciles every message of one group on behalf of a member.
func (s *MessageService) ReconcileGroup(ctx context.Context, caller models.Caller, groupID string) (ReconcileResult, error) {
	if _, err := s.memberGroup(ctx, caller, groupID); err != nil {
		return ReconcileResult{}, err
	}
	msgs, err := s.deps.Messages.ListGroupMessages(ctx, groupID)
	if err != nil {
		return ReconcileResult{}, storeFailure("failed to load messages", err)
	}
	return s.ReconcileRevealedStatus(ctx, msgs)
}
