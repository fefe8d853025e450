// Package scheduler runs one job on a fixed interval. Runs never overlap:
// the next run starts one interval after the previous one returned.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Job func(ctx context.Context) error

// Status is a snapshot of the scheduler state.
type Status struct {
	Name         string        `json:"name"`
	Running      bool          `json:"running"`
	Runs         int           `json:"runs"`
	LastRun      time.Time     `json:"last_run"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run"`
}

// Scheduler runs a Job on a fixed interval, one tick at a time.
type Scheduler struct {
	name        string
	interval    time.Duration
	tickTimeout time.Duration
	job         Job
	logger      *zap.Logger

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler. A zero tickTimeout leaves runs unbounded.
func New(name string, interval, tickTimeout time.Duration, job Job, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		name:        name,
		interval:    interval,
		tickTimeout: tickTimeout,
		job:         job,
		logger:      logger,
		status:      Status{Name: name},
	}
}

// Run executes the job immediately and then every interval until ctx is
// cancelled. A run already in progress is not interrupted by cancellation;
// it is bounded only by the tick timeout.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started",
		zap.String("job", s.name),
		zap.Duration("interval", s.interval),
	)
	defer s.logger.Info("Scheduler stopped", zap.String("job", s.name))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.tick(ctx)

		s.mu.Lock()
		s.status.NextRun = time.Now().Add(s.interval).UTC()
		s.mu.Unlock()
		timer.Reset(s.interval)
	}
}

func (s *Scheduler) tick(parent context.Context) {
	ctx := context.WithoutCancel(parent)
	if s.tickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.tickTimeout)
		defer cancel()
	}

	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()

	start := time.Now()
	err := s.safeRun(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.status.Running = false
	s.status.Runs++
	s.status.LastRun = start.UTC()
	s.status.LastDuration = elapsed
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled job failed, retrying next tick",
			zap.String("job", s.name),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) safeRun(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", s.name, p)
		}
	}()
	return s.job(ctx)
}

// Start runs the loop in a background goroutine. Calling Start on a running
// scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.Run(ctx)
	}()
}

// Stop cancels the loop and waits for it to exit, including any run in
// progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
