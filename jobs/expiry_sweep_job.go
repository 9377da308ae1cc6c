package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper revokes temporary premium grants that have ended
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// ExpirySweepJob revokes expired grants of installations that have no
// session open to notice it themselves
type ExpirySweepJob struct {
	sweeper Sweeper
	timeout time.Duration
	now     func() time.Time
}

// NewExpirySweepJob creates the sweep job
func NewExpirySweepJob(sweeper Sweeper) *ExpirySweepJob {
	return &ExpirySweepJob{
		sweeper: sweeper,
		timeout: 30 * time.Second,
		now:     time.Now,
	}
}

// Run implements cron.Job
func (j *ExpirySweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	revoked, err := j.sweeper.SweepExpired(ctx, j.now())
	if err != nil {
		slog.Error("Expiry sweep failed", slog.Any("error", err))
		return
	}
	if revoked > 0 {
		slog.Info("Expired premium grants revoked", slog.Int("count", revoked))
	}
}
