// Package scheduler fires the daily digest pass at a fixed local time.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/st20medic/trucks/internal/pipeline"
)

// Runner is the pass entry point. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, now time.Time, force bool) (pipeline.Summary, error)
}

type Daily struct {
	runner Runner
	hour   int
	minute int
	loc    *time.Location
	logger *zap.Logger
}

func NewDaily(runner Runner, hour, minute int, loc *time.Location, logger *zap.Logger) *Daily {
	return &Daily{
		runner: runner,
		hour:   hour,
		minute: minute,
		loc:    loc,
		logger: logger.Named("scheduler"),
	}
}

// Run blocks until ctx is cancelled, invoking one pass at each daily fire
// time. A failed pass is logged and retried at the next fire time; the manual
// trigger is the immediate retry mechanism.
func (d *Daily) Run(ctx context.Context) {
	for {
		next := nextFireTime(time.Now().In(d.loc), d.hour, d.minute)
		d.logger.Info("next scheduled digest pass", zap.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}

		summary, err := d.runner.Run(ctx, time.Now(), false)
		if err != nil {
			d.logger.Error("scheduled pass failed", zap.Error(err))
			continue
		}
		d.logger.Info("scheduled pass complete",
			zap.Int("evaluated", summary.Evaluated),
			zap.Int("included", len(summary.Included)),
			zap.Bool("sent", summary.Sent))
	}
}

// nextFireTime returns the next hh:mm in now's location strictly after now.
func nextFireTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
