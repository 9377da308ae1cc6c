package jobs

import "log/slog"

// Pruner drops idle rate limiter buckets
type Pruner interface {
	Prune() int
}

// LimiterPruneJob keeps the per-installation limiter map bounded
type LimiterPruneJob struct {
	pruner Pruner
}

// NewLimiterPruneJob creates the prune job
func NewLimiterPruneJob(pruner Pruner) *LimiterPruneJob {
	return &LimiterPruneJob{pruner: pruner}
}

// Run implements cron.Job
func (j *LimiterPruneJob) Run() {
	if n := j.pruner.Prune(); n > 0 {
		slog.Debug("Pruned idle rate limiters", slog.Int("count", n))
	}
}
