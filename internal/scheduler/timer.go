package scheduler

import (
	"sync"
	"time"
)

// Timer откладывает задачи без блокировки горутин: после задержки
// продолжение выполняется на собственном пуле таймера.
type Timer struct {
	pool *Pool

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	pending map[uint64]*time.Timer
}

// NewTimer создаёт таймер с пулом из size горутин.
func NewTimer(size int, options ...Option) *Timer {
	return &Timer{
		pool:    NewPool("timer", size, options...),
		pending: make(map[uint64]*time.Timer),
	}
}

// Schedule выполняет task на пуле таймера через delay.
func (t *Timer) Schedule(delay time.Duration, task Task) error {
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}

	id := t.nextID
	t.nextID++
	t.pending[id] = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.pending, id)
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		if err := t.pool.Submit(task); err != nil {
			t.pool.logger.WithError(err).Warn("deferred task dropped")
		}
	})

	return nil
}

// Pending возвращает число ещё не сработавших отложенных задач.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close перестаёт принимать задачи и отменяет несработавшие таймеры.
// Возвращает число отменённых задач.
func (t *Timer) Close() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}
	t.closed = true

	dropped := 0
	for id, timer := range t.pending {
		if timer.Stop() {
			dropped++
		}
		delete(t.pending, id)
	}
	return dropped
}

// Shutdown закрывает таймер и дожидается уже запущенных продолжений.
func (t *Timer) Shutdown(grace time.Duration) error {
	if dropped := t.Close(); dropped > 0 {
		t.pool.logger.WithField("dropped", dropped).Warn("pending deferred tasks cancelled on shutdown")
	}
	return t.pool.Shutdown(grace)
}
