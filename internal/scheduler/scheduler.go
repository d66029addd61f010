// Package scheduler запускает периодические задачи: опрос сетей и ежедневную сводку.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"xepbot/internal/logger"

	"github.com/go-co-op/gocron/v2"
)

type Scheduler struct {
	s      gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

func New(loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{s: s, ctx: ctx, cancel: cancel, log: logger.With("component", "scheduler")}, nil
}

// Every запускает fn каждые d, первый запуск сразу.
// Если предыдущий запуск не закончился, следующий переносится.
func (s *Scheduler) Every(name string, d time.Duration, fn func(ctx context.Context)) error {
	if d <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	_, err := s.s.NewJob(
		gocron.DurationJob(d),
		gocron.NewTask(s.wrap(name, fn)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	return nil
}

// Daily запускает fn раз в сутки в hour:00
func (s *Scheduler) Daily(name string, hour int, fn func(ctx context.Context)) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("job %s: hour %d out of range", name, hour)
	}
	_, err := s.s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), 0, 0))),
		gocron.NewTask(s.wrap(name, fn)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) wrap(name string, fn func(ctx context.Context)) func() {
	return func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("job panicked", "job", name, "panic", r)
			}
		}()
		fn(s.ctx)
		s.log.Debug("job done", "job", name, "took", time.Since(start))
	}
}

func (s *Scheduler) Start() {
	s.s.Start()
	s.log.Info("scheduler started", "jobs", len(s.s.Jobs()))
}

// Stop отменяет контекст задач и ждет их завершения
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.s.Shutdown()
}
