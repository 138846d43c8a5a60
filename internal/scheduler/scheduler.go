package scheduler

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultProcessingWorkers = 4
	defaultSendWorkers       = 8
	defaultTimerWorkers      = 2
	defaultGrace             = 10 * time.Second
)

// Имена пулов используются в логах и метриках.
const (
	PoolProcessing = "processing"
	PoolSend       = "send"
	PoolTimer      = "timer"
)

// Config задаёт размеры пулов и время на корректную остановку каждого из них.
type Config struct {
	ProcessingWorkers int
	SendWorkers       int
	TimerWorkers      int
	Grace             time.Duration
}

// DefaultConfig возвращает 4/8/2 воркера и 10 секунд на остановку пула.
func DefaultConfig() Config {
	return Config{
		ProcessingWorkers: defaultProcessingWorkers,
		SendWorkers:       defaultSendWorkers,
		TimerWorkers:      defaultTimerWorkers,
		Grace:             defaultGrace,
	}
}

// Scheduler объединяет пул обработки платежей, пул отправки webhook и таймер.
type Scheduler struct {
	processing *Pool
	send       *Pool
	timer      *Timer
	grace      time.Duration
	logger     *log.Entry
}

// New создаёт планировщик. Нулевые значения cfg заменяются значениями по умолчанию.
func New(cfg Config, options ...Option) *Scheduler {
	defaults := DefaultConfig()
	if cfg.ProcessingWorkers <= 0 {
		cfg.ProcessingWorkers = defaults.ProcessingWorkers
	}
	if cfg.SendWorkers <= 0 {
		cfg.SendWorkers = defaults.SendWorkers
	}
	if cfg.TimerWorkers <= 0 {
		cfg.TimerWorkers = defaults.TimerWorkers
	}
	if cfg.Grace <= 0 {
		cfg.Grace = defaults.Grace
	}

	var opts poolOptions
	for _, option := range options {
		option(&opts)
	}
	if opts.logger == nil {
		opts.logger = log.WithField("component", "scheduler")
	}

	return &Scheduler{
		processing: NewPool(PoolProcessing, cfg.ProcessingWorkers, options...),
		send:       NewPool(PoolSend, cfg.SendWorkers, options...),
		timer:      NewTimer(cfg.TimerWorkers, options...),
		grace:      cfg.Grace,
		logger:     opts.logger,
	}
}

// SubmitProcessing ставит задачу в пул обработки платежей.
func (s *Scheduler) SubmitProcessing(task Task) error {
	return s.processing.Submit(task)
}

// SubmitSend ставит задачу в пул отправки webhook.
func (s *Scheduler) SubmitSend(task Task) error {
	return s.send.Submit(task)
}

// After выполняет task на пуле таймера через delay.
func (s *Scheduler) After(delay time.Duration, task Task) error {
	return s.timer.Schedule(delay, task)
}

// PendingTimers возвращает число несработавших отложенных задач.
func (s *Scheduler) PendingTimers() int {
	return s.timer.Pending()
}

// Accepting сообщает, принимает ли планировщик новую работу.
func (s *Scheduler) Accepting() bool {
	return !s.processing.IsClosed() && !s.send.IsClosed()
}

// Shutdown останавливает приём новых задач и по очереди дренирует пулы:
// таймер перестаёт принимать задачи, затем обработка, отправка и сам пул таймера.
// Каждый пул получает grace; не успевший пул останавливается принудительно.
// ctx ограничивает общее ожидание вызывающего.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if dropped := s.timer.Close(); dropped > 0 {
		s.logger.WithField("dropped", dropped).Warn("pending deferred tasks cancelled on shutdown")
	}

	done := make(chan error, 1)
	go func() {
		var errs []error
		for _, stop := range []func(time.Duration) error{
			s.processing.Shutdown,
			s.send.Shutdown,
			s.timer.pool.Shutdown,
		} {
			if err := stop(s.grace); err != nil {
				errs = append(errs, err)
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		if err == nil {
			s.logger.Info("scheduler pools stopped")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
