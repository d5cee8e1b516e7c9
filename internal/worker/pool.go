package worker

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrClosed = errors.New("пул зупинено")

// Observer отримує події життєвого циклу задач (метрики).
type Observer interface {
	JobStarted()
	JobFinished(d time.Duration)
	JobPanicked()
}

type nopObserver struct{}

func (nopObserver) JobStarted()                 {}
func (nopObserver) JobFinished(d time.Duration) {}
func (nopObserver) JobPanicked()                {}

// Pool запускає задачі у фоні, не більше size одночасно. Submit не блокує:
// задача чекає на вільний слот у власній горутині.
// Паніка в задачі логується і не зачіпає інші задачі.
type Pool struct {
	sem *semaphore.Weighted
	wg  conc.WaitGroup
	log *zap.Logger
	obs Observer

	mu     sync.RWMutex
	closed bool
}

func New(size int, log *zap.Logger, obs Observer) *Pool {
	if size <= 0 {
		size = 1
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), log: log, obs: obs}
}

// Submit ставить задачу. Контекст задачі не скасовується при зупинці пулу,
// задачі, що вже почались, доводяться до кінця.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	p.obs.JobStarted()
	p.wg.Go(func() {
		start := time.Now()
		defer func() { p.obs.JobFinished(time.Since(start)) }()

		ctx := context.Background()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)

		var catcher panics.Catcher
		catcher.Try(func() { fn(ctx) })
		if r := catcher.Recovered(); r != nil {
			p.obs.JobPanicked()
			p.log.Error("Паніка у фоновій задачі",
				zap.String("job", name),
				zap.Any("panic", r.Value),
				zap.ByteString("stack", r.Stack),
			)
		}
	})
	return nil
}

// Shutdown забороняє нові задачі і чекає завершення поточних до закінчення ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "не всі задачі завершились")
	}
}
