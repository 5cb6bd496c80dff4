// Package cancel turns external interrupts into workspace teardown and
// context cancellation.
package cancel

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/WrongMoves/roop/internal/infra/metrics"
	"go.uber.org/zap"
)

// ExitCodeInterrupted is the conventional status for SIGINT termination.
const ExitCodeInterrupted = 130

// DefaultGrace bounds how long an interrupted job may take to unwind.
const DefaultGrace = 5 * time.Second

const releasePoll = 10 * time.Millisecond

// DiscardFunc removes the workspace derived for a target. It must only touch
// the filesystem.
type DiscardFunc func(targetPath string) error

type Option func(*Controller)

// WithExit terminates the process after teardown. Without it the controller
// only cancels the context and the caller shuts down on its own.
func WithExit(exit func(code int)) Option {
	return func(c *Controller) { c.exit = exit }
}

// WithGrace sets how long to wait for in-flight jobs after cancelling them.
func WithGrace(d time.Duration) Option {
	return func(c *Controller) { c.grace = d }
}

// WithNotify replaces signal.Notify, mainly for tests.
func WithNotify(notify func(ch chan<- os.Signal, sig ...os.Signal)) Option {
	return func(c *Controller) { c.notify = notify }
}

type Controller struct {
	discard DiscardFunc
	logger  *zap.Logger
	exit    func(code int)
	grace   time.Duration
	notify  func(ch chan<- os.Signal, sig ...os.Signal)

	// targets holds in-flight job targets; never locked by the job flow.
	targets sync.Map
	sigCh   chan os.Signal
	done    chan struct{}
	fired   chan struct{}
	once    sync.Once
}

func New(discard DiscardFunc, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		discard: discard,
		logger:  logger,
		notify:  signal.Notify,
		grace:   DefaultGrace,
		sigCh:   make(chan os.Signal, 1),
		done:    make(chan struct{}),
		fired:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start registers for SIGINT/SIGTERM and returns a context that is cancelled
// once teardown has run. Call it before any long-running work.
func (c *Controller) Start(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	c.notify(c.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer cancel()
		select {
		case sig := <-c.sigCh:
			c.handle(sig, cancel)
		case <-c.done:
		case <-ctx.Done():
		}
	}()
	return ctx
}

// Track marks targetPath as in flight until the returned release is called.
func (c *Controller) Track(targetPath string) (release func()) {
	key := new(struct{})
	c.targets.Store(key, targetPath)
	return func() { c.targets.Delete(key) }
}

// Fired is closed once an interrupt has been handled.
func (c *Controller) Fired() <-chan struct{} { return c.fired }

// Stop unregisters the handler goroutine. Safe to call more than once.
func (c *Controller) Stop() {
	c.once.Do(func() {
		signal.Stop(c.sigCh)
		close(c.done)
	})
}

// handle cancels running work first so child processes are killed, gives
// the job up to the grace period to unwind, then removes what is left.
func (c *Controller) handle(sig os.Signal, cancel context.CancelFunc) {
	c.logger.Warn("interrupt received, discarding temporary resources", zap.String("signal", sig.String()))
	inflight := c.inflight()
	cancel()
	if !c.waitReleased() {
		c.logger.Warn("job did not release its workspace in time", zap.Duration("grace", c.grace))
	}
	for _, target := range inflight {
		if err := c.discard(target); err != nil {
			c.logger.Error("discard on interrupt failed", zap.String("target", target), zap.Error(err))
		} else {
			metrics.WorkspaceDiscardsTotal.WithLabelValues("signal").Inc()
		}
	}
	close(c.fired)
	if c.exit != nil {
		_ = c.logger.Sync()
		c.exit(ExitCodeInterrupted)
	}
}

func (c *Controller) inflight() []string {
	var targets []string
	c.targets.Range(func(_, v any) bool {
		targets = append(targets, v.(string))
		return true
	})
	return targets
}

// waitReleased polls until no target is tracked or the grace period ends.
func (c *Controller) waitReleased() bool {
	deadline := time.Now().Add(c.grace)
	for {
		if len(c.inflight()) == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(releasePoll)
	}
}
