// Package loader runs blocking fetches in the background and hands their
// outcome to a listener as a result.Result, following the lifecycle of the
// component that owns the loader (started, stopped, reset).
package loader

import (
	"context"
	"strconv"
	"sync"

	"fetchutils/pkg/result"

	"golang.org/x/sync/singleflight"
)

// Func is a blocking load operation.
type Func[S any] func(ctx context.Context) (S, error)

// Run executes fn on the calling goroutine and packs its outcome.
func Run[S any](ctx context.Context, fn Func[S]) result.Result[S, error] {
	s, err := fn(ctx)
	if err != nil {
		return result.Failure[S](err)
	}
	return result.Success[S, error](s)
}

// Listener receives delivered results.
type Listener[S any] func(result.Result[S, error])

// Loader caches the last result of fn and redelivers it whenever it is
// started again. Results are only delivered while the loader is started and
// never once it has been reset.
type Loader[S any] struct {
	fn       Func[S]
	listener Listener[S]
	group    singleflight.Group

	mu      sync.Mutex
	ctx     context.Context
	cached  *result.Result[S, error]
	started bool
	reset   bool
	changed bool
	gen     uint64
	cancel  context.CancelFunc
}

func New[S any](fn Func[S], listener Listener[S]) *Loader[S] {
	return &Loader[S]{
		fn:       fn,
		listener: listener,
		ctx:      context.Background(),
	}
}

// Start delivers the cached result if there is one and loads in the
// background when nothing is cached or the content changed meanwhile.
func (l *Loader[S]) Start(ctx context.Context) {
	l.mu.Lock()
	l.ctx = ctx
	l.started = true
	l.reset = false
	cached := l.cached
	load := l.changed || cached == nil
	l.changed = false
	l.mu.Unlock()

	if cached != nil {
		l.listener(*cached)
	}
	if load {
		l.ForceLoad()
	}
}

// Stop cancels the load in progress; its result is discarded.
func (l *Loader[S]) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *Loader[S]) stopLocked() {
	l.started = false
	l.gen++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// Reset stops the loader and forgets the cached result.
func (l *Loader[S]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
	l.reset = true
	l.cached = nil
}

// OnContentChanged reloads right away when started, otherwise on the next
// Start.
func (l *Loader[S]) OnContentChanged() {
	l.mu.Lock()
	started := l.started
	if !started {
		l.changed = true
	}
	l.mu.Unlock()

	if started {
		l.ForceLoad()
	}
}

// ForceLoad starts a background load.
func (l *Loader[S]) ForceLoad() {
	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()

	go l.Load(ctx)
}

// Load runs fn, or joins the run already in progress for the same
// generation, delivers the outcome and returns it. A run left over from
// before a Stop is never joined.
func (l *Loader[S]) Load(ctx context.Context) result.Result[S, error] {
	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()

	v, _, _ := l.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		l.mu.Lock()
		if gen == l.gen {
			l.cancel = cancel
		} else {
			cancel()
		}
		l.mu.Unlock()

		res := Run(ctx, l.fn)
		l.deliver(res, gen)
		return res, nil
	})
	return v.(result.Result[S, error])
}

func (l *Loader[S]) deliver(res result.Result[S, error], gen uint64) {
	l.mu.Lock()
	if l.reset || gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.cached = &res
	l.cancel = nil
	started := l.started
	l.mu.Unlock()

	if started {
		l.listener(res)
	}
}

// Cached returns the last delivered result.
func (l *Loader[S]) Cached() (result.Result[S, error], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached == nil {
		return result.Result[S, error]{}, false
	}
	return *l.cached, true
}
