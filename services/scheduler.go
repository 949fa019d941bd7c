package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobFunc is one worker cycle. It must honor ctx cancellation between items.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
}

// Scheduler runs registered jobs on fixed intervals, one goroutine per job.
// Start launches them; Stop cancels and waits for in-flight cycles.
type Scheduler struct {
	jobs     []job
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

func NewScheduler() *Scheduler {
	return &Scheduler{stopChan: make(chan struct{})}
}

func (s *Scheduler) Register(name string, interval time.Duration, run JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job{name: name, interval: interval, run: trackRun(name, run)})
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	slog.Info("scheduler started", "jobs", len(s.jobs))
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("job cycle failed", "job", j.name, "error", err)
			}
		case <-ctx.Done():
			slog.Info("job stopping", "job", j.name)
			return
		case <-s.stopChan:
			slog.Info("job stopping", "job", j.name)
			return
		}
	}
}

// Stop halts all job loops and blocks until the current cycles finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
}
