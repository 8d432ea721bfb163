package scheduler

import (
	"context"
	"time"

	"github.com/artpro/stockpulse/pkg/services"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Syncer refreshes one symbol from the provider
type Syncer interface {
	Sync(ctx context.Context, symbol string) (*services.SyncResult, error)
}

// SymbolLister lists the symbols worth keeping fresh
type SymbolLister interface {
	TrackedSymbols(ctx context.Context) ([]string, error)
}

// DigestSender sends the digests that are due
type DigestSender interface {
	SendDueDigests(ctx context.Context) (int, error)
}

// Jobs holds the work the scheduler runs
type Jobs struct {
	Sync    Syncer
	Symbols SymbolLister
	Digests DigestSender
	Logger  zerolog.Logger
}

// InitScheduler starts the cron scheduler for the daily refresh and the
// hourly digest check
func InitScheduler(jobs *Jobs) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)

	// Daily refresh of every watched or held symbol
	if _, err := s.Every(1).Day().At("00:00").Do(func() {
		jobs.Logger.Info().Msg("Running daily stock refresh")
		jobs.RefreshTracked(context.Background())
	}); err != nil {
		return nil, err
	}

	// Digest check job (every hour)
	if _, err := s.Every(1).Hour().Do(func() {
		jobs.SendDigests(context.Background())
	}); err != nil {
		return nil, err
	}

	s.StartAsync()
	jobs.Logger.Info().Msg("Scheduler initialized and started")
	return s, nil
}

// RefreshTracked refreshes every tracked symbol in turn and returns how many
// succeeded. Failures are logged and do not stop the run.
func (j *Jobs) RefreshTracked(ctx context.Context) int {
	symbols, err := j.Symbols.TrackedSymbols(ctx)
	if err != nil {
		j.Logger.Error().Err(err).Msg("Failed to fetch tracked symbols")
		return 0
	}

	j.Logger.Info().Int("count", len(symbols)).Msg("Refreshing stocks")

	refreshed := 0
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		result, err := j.Sync.Sync(ctx, symbol)
		if err != nil {
			j.Logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to refresh stock")
			continue
		}
		if !result.Live() {
			j.Logger.Warn().Err(result.Cause).Str("symbol", symbol).Msg("Stock kept its stored values")
			continue
		}
		refreshed++
		j.Logger.Debug().Str("symbol", symbol).Msg("Stock refreshed")
	}
	return refreshed
}

// SendDigests sends the digests that are due
func (j *Jobs) SendDigests(ctx context.Context) {
	if j.Digests == nil {
		return
	}
	if _, err := j.Digests.SendDueDigests(ctx); err != nil {
		j.Logger.Error().Err(err).Msg("Failed to send digests")
	}
}
