package reminder

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultJobInterval is how often the background job drains due
	// reminders. The finest ladder rung is one hour, so a minute keeps
	// firing jitter negligible.
	DefaultJobInterval = time.Minute

	// DefaultPassTimeout bounds one dispatch pass.
	DefaultPassTimeout = 10 * time.Minute

	// DefaultTokenRetention is how long expired check-in tokens linger
	// before the job prunes them.
	DefaultTokenRetention = 7 * 24 * time.Hour
)

// Job runs the dispatcher on a schedule in a background goroutine. An
// in-progress pass finishes before Stop returns control flow to shutdown.
type Job struct {
	dispatcher *Dispatcher
	interval   time.Duration
	timeout    time.Duration
	log        *slog.Logger
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewJob creates a dispatch job. Zero interval or timeout select the
// defaults.
func NewJob(dispatcher *Dispatcher, interval, timeout time.Duration, log *slog.Logger) *Job {
	if interval <= 0 {
		interval = DefaultJobInterval
	}
	if timeout <= 0 {
		timeout = DefaultPassTimeout
	}
	return &Job{
		dispatcher: dispatcher,
		interval:   interval,
		timeout:    timeout,
		log:        log,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the background loop. The first pass runs immediately.
func (j *Job) Start() {
	j.log.Info("Starting reminder dispatch job", slog.Duration("interval", j.interval))
	go j.loop()
}

// Stop signals the loop to exit and waits for an in-progress pass to
// finish.
func (j *Job) Stop() {
	close(j.stopCh)
	<-j.doneCh
	j.log.Info("Reminder dispatch job stopped")
}

func (j *Job) loop() {
	defer close(j.doneCh)

	j.runPass()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.runPass()
		case <-j.stopCh:
			return
		}
	}
}

func (j *Job) runPass() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	processed, err := j.dispatcher.RunOnce(ctx)
	if err != nil {
		j.log.Error("Reminder dispatch pass failed",
			slog.Int("processed", processed),
			slog.String("err", err.Error()))
		return
	}

	if deleted, err := j.dispatcher.store.DeleteExpiredTokens(ctx, time.Now().Add(-DefaultTokenRetention)); err != nil {
		j.log.Error("Failed to prune expired tokens", slog.String("err", err.Error()))
	} else if deleted > 0 {
		j.log.Info("Pruned expired check-in tokens", slog.Int64("deleted", deleted))
	}

	if processed > 0 {
		j.log.Info("Reminder dispatch pass complete",
			slog.Int("processed", processed),
			slog.Duration("duration", time.Since(start)))
	}
}
