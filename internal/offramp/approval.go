package offramp

import (
	"context"
	"log/slog"
	"time"

	"github.com/paylink/offramp/internal/metrics"
)

// DefaultPollInterval is the constant wait between status polls.
const DefaultPollInterval = 5 * time.Second

// Poller waits for an approval track to settle.
type Poller struct {
	source StatusSource
	logger *slog.Logger

	// Interval between polls; DefaultPollInterval when zero.
	Interval time.Duration
	// MaxAttempts bounds the number of polls. Zero polls until approval, review or cancellation.
	MaxAttempts int
	Metrics     *metrics.Metrics

	wait func(ctx context.Context, d time.Duration) error
}

// NewPoller builds a poller reading status from source.
func NewPoller(source StatusSource, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{source: source, logger: logger, Interval: DefaultPollInterval, wait: sleep}
}

// AwaitApproval blocks until track is approved. It returns an *UnderReviewError when the provider
// parks the track for review, ctx.Err() when ctx ends during a wait, and status read errors as is.
func (p *Poller) AwaitApproval(ctx context.Context, customerID string, track Track, initial ApprovalStatus) error {
	if initial == StatusApproved {
		return nil
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	wait := p.wait
	if wait == nil {
		wait = sleep
	}

	for attempt := 1; ; attempt++ {
		status, err := p.source.GetStatus(ctx, customerID, track)
		if err != nil {
			return err
		}
		p.Metrics.ObservePoll(string(track), string(status))

		switch status {
		case StatusApproved:
			p.logger.InfoContext(ctx, "approval granted", slog.String("customer_id", customerID), slog.String("track", string(track)), slog.Int("attempts", attempt))
			return nil
		case StatusUnderReview:
			p.logger.WarnContext(ctx, "approval under review", slog.String("customer_id", customerID), slog.String("track", string(track)))
			return &UnderReviewError{Track: track}
		}

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return ErrApprovalTimeout
		}
		p.logger.DebugContext(ctx, "approval pending", slog.String("track", string(track)), slog.String("status", string(status)), slog.Int("attempt", attempt))
		if err := wait(ctx, interval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
