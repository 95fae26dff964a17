package news

import (
	"context"
	"log"
	"sync"
	"time"
)

// ScheduledRunner composes three independent timers over a Pipeline: an
// RSS-only poll, a social-only poll, and a full run. A single stop flag
// terminates all three.
type ScheduledRunner struct {
	pipeline       *Pipeline
	rssInterval    time.Duration
	socialInterval time.Duration
	fullInterval   time.Duration
	logger         *log.Logger
}

// NewScheduledRunner builds a runner over pipeline using cfg's interval
// fields.
func NewScheduledRunner(pipeline *Pipeline, cfg Config) *ScheduledRunner {
	return &ScheduledRunner{
		pipeline:       pipeline,
		rssInterval:    time.Duration(cfg.RSSIntervalMinutes) * time.Minute,
		socialInterval: time.Duration(cfg.SocialIntervalHours) * time.Hour,
		fullInterval:   time.Duration(cfg.FullIntervalHours) * time.Hour,
		logger:         log.New(log.Writer(), "[news-scheduler] ", log.LstdFlags),
	}
}

// ScheduledHandle stops a running ScheduledRunner.
type ScheduledHandle struct {
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// Stop signals all three timer loops to exit and waits for them to do so.
func (h *ScheduledHandle) Stop() {
	h.cancel()
	h.wg.Wait()
}

// Start spawns the three timer loops as goroutines and returns a handle
// that stops them.
func (r *ScheduledRunner) Start(ctx context.Context) *ScheduledHandle {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(3)

	go r.loop(ctx, &wg, r.rssInterval, "RSS", func(ctx context.Context) error {
		_, err := r.pipeline.RunRSSOnly(ctx)
		return err
	})
	go r.loop(ctx, &wg, r.socialInterval, "social", func(ctx context.Context) error {
		_, err := r.pipeline.RunSocialOnly(ctx)
		return err
	})
	go r.loop(ctx, &wg, r.fullInterval, "full", func(ctx context.Context) error {
		_, err := r.pipeline.Run(ctx)
		return err
	})

	return &ScheduledHandle{cancel: cancel, wg: &wg}
}

func (r *ScheduledRunner) loop(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, label string, run func(context.Context) error) {
	defer wg.Done()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := run(ctx); err != nil {
				r.logger.Printf("scheduled %s run failed: %v", label, err)
			}
		}
	}
}
