// Package ingest feeds raw log lines from watched files and, optionally,
// a Kafka topic into the detection channel.
package ingest

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"siemlite/internal/model"
)

// Send blocks until the line is queued or ctx is done.
func Send(ctx context.Context, out chan<- model.LogLine, line model.LogLine) bool {
	select {
	case out <- line:
		return true
	case <-ctx.Done():
		return false
	}
}

func BackoffSleep(ctx context.Context, c clock.Clock, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	if c == nil {
		c = clock.New()
	}
	t := c.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
