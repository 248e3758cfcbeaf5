// Package jobs runs periodic housekeeping inside the server process.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron"
)

// Purger deletes expired rows and reports how many went.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// StartPurge schedules every purger on schedule and starts the scheduler.
// The caller stops it on shutdown.
func StartPurge(schedule string, purgers map[string]Purger) (*cron.Cron, error) {
	c := cron.New()
	if err := c.AddFunc(schedule, func() { RunPurge(context.Background(), purgers) }); err != nil {
		return nil, err
	}
	c.Start()
	log.Printf("[Cron] purge scheduled %q", schedule)
	return c, nil
}

// RunPurge runs each purger once. Failures are logged and do not stop the others.
func RunPurge(ctx context.Context, purgers map[string]Purger) map[string]int64 {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	removed := make(map[string]int64, len(purgers))
	for name, p := range purgers {
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			log.Printf("[Cron] purge %s failed: %v", name, err)
			continue
		}
		removed[name] = n
		if n > 0 {
			log.Printf("[Cron] purged %d expired %s", n, name)
		}
	}
	return removed
}
