package news

import (
	"context"
	"testing"
	"time"
)

func TestScheduledRunnerStopsAllLoops(t *testing.T) {
	p := newTestPipeline(t, nil)
	cfg := Config{RSSIntervalMinutes: 1, SocialIntervalHours: 1, FullIntervalHours: 1}
	// Shrink to sub-second intervals for the test by constructing the
	// runner directly rather than through NewScheduledRunner's
	// minute/hour granularity.
	runner := &ScheduledRunner{
		pipeline:       p,
		rssInterval:    10 * time.Millisecond,
		socialInterval: 10 * time.Millisecond,
		fullInterval:   10 * time.Millisecond,
	}
	runner.logger = NewScheduledRunner(p, cfg).logger

	handle := runner.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	handle.Stop()

	// A second Stop should not hang or panic.
	done := make(chan struct{})
	go func() {
		handle.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Stop call hung")
	}
}

func TestScheduledRunnerSkipsZeroIntervals(t *testing.T) {
	p := newTestPipeline(t, nil)
	runner := &ScheduledRunner{pipeline: p}
	handle := runner.Start(context.Background())
	done := make(chan struct{})
	go func() {
		handle.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop hung with zero-interval loops")
	}
}
