package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrClosed возвращается при попытке отправить задачу в остановленный пул.
	ErrClosed = errors.New("scheduler pool is closed")
	// ErrShutdownTimeout: пул не успел завершить задачи за отведённое время.
	ErrShutdownTimeout = errors.New("scheduler pool shutdown timed out")
)

// Task: единица работы. ctx отменяется при принудительной остановке пула.
type Task func(ctx context.Context)

// Observer получает события жизненного цикла задач (метрики).
type Observer interface {
	TaskStarted(pool string)
	TaskFinished(pool string)
	TaskPanicked(pool string)
}

// Option настраивает Pool.
type Option func(*poolOptions)

type poolOptions struct {
	logger   *log.Entry
	observer Observer
}

// WithLogger задаёт logger пула.
func WithLogger(logger *log.Entry) Option {
	return func(opts *poolOptions) {
		opts.logger = logger
	}
}

// WithObserver задаёт наблюдателя за задачами.
func WithObserver(observer Observer) Option {
	return func(opts *poolOptions) {
		opts.observer = observer
	}
}

// Pool выполняет задачи не более чем в size горутинах одновременно.
// Очередь не ограничена: задача ждёт свободный слот, вызывающий не блокируется.
type Pool struct {
	name     string
	size     int
	sem      *semaphore.Weighted
	logger   *log.Entry
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool создаёт пул с фиксированной степенью параллелизма.
func NewPool(name string, size int, options ...Option) *Pool {
	if size <= 0 {
		size = 1
	}
	var opts poolOptions
	for _, option := range options {
		option(&opts)
	}
	logger := opts.logger
	if logger == nil {
		logger = log.WithField("component", "scheduler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		name:     name,
		size:     size,
		sem:      semaphore.NewWeighted(int64(size)),
		logger:   logger.WithField("pool", name),
		observer: opts.observer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Name возвращает имя пула.
func (p *Pool) Name() string {
	return p.name
}

// Size возвращает максимальное число одновременно выполняемых задач.
func (p *Pool) Size() int {
	return p.size
}

// Submit ставит задачу в очередь пула.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("pool %s: nil task", p.name)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.logger.Warn("queued task dropped: pool was force-stopped")
			return
		}
		defer p.sem.Release(1)
		if p.ctx.Err() != nil {
			p.logger.Warn("queued task dropped: pool was force-stopped")
			return
		}
		p.run(task)
	}()

	return nil
}

// run выполняет задачу и не даёт панике выйти за границу пула.
func (p *Pool) run(task Task) {
	if p.observer != nil {
		p.observer.TaskStarted(p.name)
		defer p.observer.TaskFinished(p.name)
	}

	defer func() {
		if r := recover(); r != nil {
			if p.observer != nil {
				p.observer.TaskPanicked(p.name)
			}
			p.logger.WithFields(log.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("task panicked")
		}
	}()

	task(p.ctx)
}

// IsClosed сообщает, перестал ли пул принимать задачи.
func (p *Pool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Shutdown перестаёт принимать задачи и ждёт завершения уже принятых не дольше grace.
// По истечении grace контекст задач отменяется, ожидающие в очереди задачи не стартуют,
// и возвращается ErrShutdownTimeout.
func (p *Pool) Shutdown(grace time.Duration) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-timer.C:
		p.cancel()
		p.logger.WithField("grace", grace.String()).Warn("pool did not drain in time, forcing stop")
		return ErrShutdownTimeout
	}
}
