package export

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs an Exporter on a fixed interval until stopped.
type Scheduler struct {
	exporter *Exporter
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewScheduler(exporter *Exporter, interval time.Duration) *Scheduler {
	return &Scheduler{
		exporter: exporter,
		interval: interval,
		timeout:  2 * time.Minute,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the loop in a goroutine. The first export runs after one
// full interval.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop ends the loop and waits for an in-flight export to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.exporter.Run(ctx); err != nil {
		slog.Error("Scheduled export failed", "error", err)
	}
}
