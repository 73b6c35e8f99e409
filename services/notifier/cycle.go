package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"lonetwatch/lib/scrapers/lonet"
	"lonetwatch/lib/timezone"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type pendingNotification struct {
	subject string
	task    lonet.Task
	// zero when the index only carries the pre-existing sentinel
	creation time.Time
	sortKey  time.Time
}

// RunCycle executes one collect → reconcile → notify → persist pass.
//
// firstRun seeds unknown tasks silently (pre-existing sentinel, no
// notification); refresh re-announces every already-tracked task.
// Notifications go out oldest-first. A delivery failure aborts the
// remainder of the cycle and skips persistence, registrations made in
// this cycle stay in memory until the next successful save.
func (s *Service) RunCycle(ctx context.Context, channelId string, refresh, firstRun bool) error {
	ctx, span := tracer.Start(ctx, "RunCycle", trace.WithAttributes(
		attribute.Bool("refresh", refresh),
		attribute.Bool("first_run", firstRun),
	))
	defer span.End()

	plan, err := s.collect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to collect plan")
		return fmt.Errorf("collect plan: %w", err)
	}

	now := timezone.Now()
	var pending []pendingNotification
	for _, subject := range plan.Subjects {
		for _, task := range subject.Tasks {
			wasKnown := s.index.IsKnown(subject.Name, task.Name)
			if !wasKnown {
				s.index.Register(subject.Name, task.Name, firstRun)
			}

			newlySeen := !wasKnown && !firstRun
			backfilled := wasKnown && refresh
			if !newlySeen && !backfilled {
				continue
			}

			creation, err := s.index.FirstSeenAt(subject.Name, task.Name)
			if err != nil {
				return err
			}
			sortKey := creation
			if sortKey.IsZero() {
				sortKey = now
			}
			pending = append(pending, pendingNotification{
				subject:  subject.Name,
				task:     task,
				creation: creation,
				sortKey:  sortKey,
			})
		}
	}

	// chronologically earliest first, stable so plan order breaks ties
	slices.SortStableFunc(pending, func(a, b pendingNotification) int {
		return a.sortKey.Compare(b.sortKey)
	})

	for _, p := range pending {
		err := s.sender.SendMessage(ctx, channelId, "", buildTaskEmbed(p.subject, p.task, p.creation))
		if err != nil {
			// skipping the save on purpose: tasks registered this cycle
			// are re-detected after a restart, at-least-once beats never
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to deliver notification")
			return fmt.Errorf("notify %s: %s: %w", p.subject, p.task.Name, err)
		}
	}

	err = s.index.Save(s.indexFile)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save index")
		return fmt.Errorf("save index: %w", err)
	}

	span.SetAttributes(attribute.Int("notified", len(pending)))
	slog.InfoContext(ctx, "check cycle done", "notified", len(pending), "tracked", s.index.Len())
	return nil
}
