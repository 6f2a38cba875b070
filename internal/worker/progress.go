package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sdqueue/internal/models"
	"sdqueue/internal/sdapi"
	"sdqueue/internal/telemetry"
)

type progressSource interface {
	Progress(ctx context.Context) (models.ProgressSample, error)
}

type jobWatcher interface {
	Done() <-chan struct{}
}

type pollOutcome int

const (
	pollJobDone pollOutcome = iota
	pollCancelled
	pollRetriesExhausted
)

// progressPoller reports progress of an in-flight job. It only observes: stopping it never cancels the job.
type progressPoller struct {
	source     progressSource
	interval   time.Duration
	maxRetries int
	logger     zerolog.Logger
}

func (p progressPoller) run(ctx context.Context, job jobWatcher) pollOutcome {
	interval := p.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxRetries := p.maxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	failures := 0
	for {
		select {
		case <-job.Done():
			return pollJobDone
		case <-ctx.Done():
			p.logger.Debug().Msg("progress polling cancelled")
			return pollCancelled
		default:
		}

		sample, err := p.source.Progress(ctx)
		switch {
		case err == nil:
			failures = 0
			telemetry.ProgressGauge.Set(sample.Fraction)
			telemetry.ETAGauge.Set(sample.ETASeconds)
			p.logger.Info().
				Str("progress", formatPercent(sample.Fraction)).
				Float64("eta_seconds", sample.ETASeconds).
				Msgf("Progress: %s ETA: %.2f seconds", formatPercent(sample.Fraction), sample.ETASeconds)
		case ctx.Err() != nil:
			p.logger.Debug().Msg("progress polling cancelled")
			return pollCancelled
		case sdapi.IsConnectionError(err):
			failures++
			telemetry.ProgressConnectionErrors.Inc()
			p.logger.Warn().Err(err).Msgf("connection error while checking progress, retrying (%d/%d)", failures, maxRetries)
			if failures >= maxRetries {
				p.logger.Warn().Msg("max retries reached, stopped checking progress")
				return pollRetriesExhausted
			}
		default:
			p.logger.Warn().Err(err).Msg("error checking progress, retrying")
		}

		timer := time.NewTimer(interval)
		select {
		case <-job.Done():
			timer.Stop()
			return pollJobDone
		case <-ctx.Done():
			timer.Stop()
			p.logger.Debug().Msg("progress polling cancelled")
			return pollCancelled
		case <-timer.C:
		}
	}
}

func formatPercent(fraction float64) string {
	return fmt.Sprintf("%.2f%%", fraction*100)
}
