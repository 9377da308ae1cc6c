// Package jobs runs the periodic maintenance tasks on a cron scheduler.
package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Entry pairs a cron spec with the job it runs
type Entry struct {
	Spec string
	Job  cron.Job
}

// NewScheduler registers every entry; the caller starts and stops it
func NewScheduler(loc *time.Location, entries ...Entry) (*cron.Cron, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	for _, e := range entries {
		if _, err := c.AddJob(e.Spec, e.Job); err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", e.Spec, err)
		}
	}
	return c, nil
}
