package scheduler

import (
	"fmt"
	"sync"
	"time"

	"checkinbot/internal/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs periodic jobs beside the poll loop.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	started bool
}

func New(location *time.Location) *Scheduler {
	if location == nil {
		location = time.UTC
	}

	return &Scheduler{
		cron: cron.New(cron.WithLocation(location), cron.WithChain(cron.Recover(cronLogger{}))),
	}
}

// Schedule adds fn under a standard cron spec or descriptor such as "@hourly".
func (s *Scheduler) Schedule(spec string, name string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("add cron job %s: %w", name, err)
	}

	logger.Debug("scheduler: job added", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		<-s.cron.Stop().Done()
		s.started = false
	}
}

// cronLogger routes cron's own diagnostics to the package logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug("scheduler: "+msg, zap.Any("details", keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error("scheduler: "+msg, zap.Error(err), zap.Any("details", keysAndValues))
}
