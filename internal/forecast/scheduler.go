package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "cyclecal/internal/log"
)

// Job is extra work run on each scheduled tick before the refresh, such as
// importing remote feeds.
type Job func(ctx context.Context) error

// StartScheduler runs Refresh on the given cron schedule until ctx is
// done. pre jobs run first on each tick; their errors are logged and do
// not stop the refresh. The returned cron is already started.
func (s *Service) StartScheduler(ctx context.Context, spec string, loc *time.Location, pre ...Job) (*cron.Cron, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc))

	_, err := c.AddFunc(spec, func() {
		s.tick(ctx, pre)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	c.Start()
	appLog.Info("forecast scheduler started", "schedule", spec, "timezone", loc.String())

	go func() {
		<-ctx.Done()
		stopCtx := c.Stop()
		<-stopCtx.Done()
		appLog.Info("forecast scheduler stopped")
	}()
	return c, nil
}

func (s *Service) tick(ctx context.Context, pre []Job) {
	if ctx.Err() != nil {
		return
	}
	for _, job := range pre {
		if err := job(ctx); err != nil {
			appLog.Error("scheduled job failed", err)
		}
	}
	if _, err := s.Refresh(ctx); err != nil {
		appLog.Error("scheduled refresh failed", err)
	}
}
