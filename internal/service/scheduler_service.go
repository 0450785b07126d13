package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"taskcal/internal/logger"
)

// Job is a scheduled unit of work. It gets a context bounded by the job's
// timeout and by scheduler shutdown.
type Job func(ctx context.Context) error

// SchedulerService runs named cron jobs.
type SchedulerService struct {
	cron *cron.Cron

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSchedulerService(loc *time.Location) *SchedulerService {
	cronLog := cron.PrintfLogger(logger.Standard(log.WarnLevel))
	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Daily runs job every day at clock, given as HH:MM in the scheduler's
// location.
func (s *SchedulerService) Daily(name, clock string, timeout time.Duration, job Job) (cron.EntryID, error) {
	spec, err := dailySpec(clock)
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.cron.AddJob(spec, s.wrap(name, timeout, job))
}

// Every runs job at a fixed interval of at least one second.
func (s *SchedulerService) Every(name string, interval, timeout time.Duration, job Job) (cron.EntryID, error) {
	if interval < time.Second {
		return 0, fmt.Errorf("schedule %s: interval must be at least one second", name)
	}
	return s.cron.Schedule(cron.Every(interval), s.wrap(name, timeout, job)), nil
}

func (s *SchedulerService) wrap(name string, timeout time.Duration, job Job) cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		base := s.ctx
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()

		started := time.Now()
		err := job(ctx)
		switch {
		case err == nil:
			logger.Debug("job done", "job", name, "took", time.Since(started))
		case errors.Is(err, context.Canceled):
			logger.Debug("job cancelled", "job", name)
		default:
			logger.Error("job failed", "job", name, "took", time.Since(started), "error", err)
		}
	})
}

// Next reports when the entry runs next. Zero before Start.
func (s *SchedulerService) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

func dailySpec(clock string) (string, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(clock), ":")
	if !ok {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", clock)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", clock)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", clock)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
