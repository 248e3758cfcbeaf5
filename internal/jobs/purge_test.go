package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokossimo/backend/internal/jobs"
)

type countingPurger struct {
	removed int64
	err     error
	calls   atomic.Int32
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return p.removed, p.err
}

func TestRunPurgeContinuesPastFailures(t *testing.T) {
	codes := &countingPurger{removed: 3}
	broken := &countingPurger{err: errors.New("db gone")}
	sessions := &countingPurger{}

	removed := jobs.RunPurge(context.Background(), map[string]jobs.Purger{
		"codes":    codes,
		"broken":   broken,
		"sessions": sessions,
	})

	assert.Equal(t, map[string]int64{"codes": 3, "sessions": 0}, removed)
	assert.EqualValues(t, 1, codes.calls.Load())
	assert.EqualValues(t, 1, broken.calls.Load())
	assert.EqualValues(t, 1, sessions.calls.Load())
}

func TestStartPurgeRejectsBadSchedule(t *testing.T) {
	_, err := jobs.StartPurge("not a schedule", nil)
	assert.Error(t, err)

	c, err := jobs.StartPurge("@every 1h", map[string]jobs.Purger{"codes": &countingPurger{}})
	require.NoError(t, err)
	c.Stop()
}
