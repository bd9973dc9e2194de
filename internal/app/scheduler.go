package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stockflow/engine/internal/common"
)

// StartScheduler launches the daily batch on the configured cron schedule,
// evaluated in the engine timezone. Weekend triggers are skipped; the news
// and card artifacts are keyed to the latest expected trading day.
func (a *App) StartScheduler() {
	loc := a.Config.Engine.Location()
	runner := cron.New(cron.WithLocation(loc))

	spec := a.Config.Engine.DailySchedule()
	_, err := runner.AddFunc(spec, func() { a.runScheduledBatch(loc) })
	if err != nil {
		a.Logger.Error().Str("spec", spec).Err(err).Msg("invalid daily cron spec, scheduler disabled")
		return
	}

	runner.Start()
	a.schedulerStop = func() {
		stopCtx := runner.Stop()
		<-stopCtx.Done()
	}
	a.Logger.Info().Str("spec", spec).Str("tz", loc.String()).Msg("daily scheduler started")
}

func (a *App) runScheduledBatch(loc *time.Location) {
	now := time.Now().In(loc)
	if !common.IsTradingDay(now) {
		a.Logger.Info().
			Str("expected", common.DateString(common.LatestExpectedTradingDay(now))).
			Msg("non-trading day, skipping daily batch")
		return
	}

	ctx := context.Background()
	result, err := a.Batch.RunDaily(ctx)
	if err != nil {
		a.Logger.Error().Err(err).Msg("daily batch failed to start")
		return
	}
	if result.Aborted {
		a.Logger.Error().Str("run_id", result.RunID).Str("cause", result.AbortCause).Msg("daily batch aborted")
		return
	}
	a.Logger.Info().Str("run_id", result.RunID).Msg("daily batch complete")
}
