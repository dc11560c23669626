package orchestrators

import (
	"context"
	"time"
)

// ScheduleLoader is the read side of ScheduleService.
type ScheduleLoader interface {
	LoadSchedule(ctx context.Context, batchID string) (Schedule, error)
}

// StartScheduleRefresher reloads batchID immediately and then on every tick,
// handing each outcome to onRefresh. The host owns the ticker's lifetime.
// PRE: interval > 0; onRefresh is non-nil
// POST: Returns a stop func; onRefresh is not called after stop returns
func StartScheduleRefresher(ctx context.Context, loader ScheduleLoader, batchID string, interval time.Duration, onRefresh func(Schedule, error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			schedule, err := loader.LoadSchedule(ctx, batchID)
			if ctx.Err() != nil {
				return
			}
			onRefresh(schedule, err)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
