package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// watchDaemon runs check cycles forever, one at a time. Each cycle is
// an isolation boundary: a failure is reported once to the channel and
// logged, then the loop keeps its schedule. Only ctx stops the daemon.
func (s *Service) watchDaemon(ctx context.Context, channelId string, refreshOnFirstRun bool) {
	slog.InfoContext(
		ctx, "watch daemon started",
		"channel", channelId,
		"interval", s.interval,
		"refresh_on_first_run", refreshOnFirstRun,
	)

	firstRun := true
	for {
		refresh := refreshOnFirstRun && firstRun
		err := s.RunCycle(ctx, channelId, refresh, firstRun)
		if err != nil {
			slog.ErrorContext(ctx, "check cycle failed", "err", err)
			sendErr := s.sender.SendMessage(ctx, channelId, fmt.Sprintf("An error occurred: %s", err))
			if sendErr != nil {
				slog.ErrorContext(ctx, "failed to report cycle failure", "err", sendErr)
			}
		} else {
			// a failed first cycle stays a first run so seeding still
			// happens before anything gets announced
			firstRun = false
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}
