// Package delivery pushes messages to per-tab observers over channels that
// may not be listening yet.
package delivery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sumitx99/ethical-web-watchdog/internal/message"
	"github.com/sumitx99/ethical-web-watchdog/internal/schedule"
)

var (
	// ErrNoObserver means nothing is listening for the tab.
	ErrNoObserver = errors.New("no observer for tab")
	// ErrObserverBusy means the observer exists but cannot accept more messages.
	ErrObserverBusy = errors.New("observer busy")
)

// Messenger is a transport to tab observers. Ping reports whether an
// observer for the tab is reachable right now.
type Messenger interface {
	Ping(ctx context.Context, tabID int) error
	Send(ctx context.Context, tabID int, msg message.Envelope) error
}

const (
	DefaultBackoff = 500 * time.Millisecond
	DefaultTimeout = 2 * time.Second
)

type Options struct {
	// Backoff is the wait before the single retry when the ping fails.
	Backoff time.Duration
	// Timeout bounds each Ping and Send call.
	Timeout time.Duration
}

// Channel delivers push messages fire-and-forget. Deliver never blocks the
// caller and never returns an error; failures are logged and the message is
// dropped after one retry.
type Channel struct {
	messenger Messenger
	sched     *schedule.Scheduler
	logger    *zap.Logger
	backoff   time.Duration
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add against Close so no delivery starts after Close
	// has begun waiting.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewChannel(messenger Messenger, sched *schedule.Scheduler, opts Options, logger *zap.Logger) *Channel {
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		messenger: messenger,
		sched:     sched,
		logger:    logger,
		backoff:   opts.Backoff,
		timeout:   opts.Timeout,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Deliver sends msg to the observer of tabID in the background.
func (c *Channel) Deliver(tabID int, msg message.Envelope) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.drop(tabID, msg, context.Canceled)
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.attempt(tabID, msg)
	}()
}

func (c *Channel) attempt(tabID int, msg message.Envelope) {
	pingCtx, cancel := context.WithTimeout(c.ctx, c.timeout)
	err := c.messenger.Ping(pingCtx, tabID)
	cancel()

	if err == nil {
		c.send(tabID, msg)
		return
	}

	// The observer may still be starting up: wait once, then try the send
	// without probing again.
	c.logger.Debug("observer not reachable, retrying after backoff",
		zap.Int("tab_id", tabID),
		zap.String("type", string(msg.Type)),
		zap.Duration("backoff", c.backoff),
		zap.Error(err),
	)
	c.wg.Add(1)
	task := c.sched.After(c.backoff, func() {
		defer c.wg.Done()
		c.send(tabID, msg)
	})
	if task == nil {
		c.wg.Done()
		c.drop(tabID, msg, context.Canceled)
		return
	}
	go func() {
		select {
		case <-task.Done():
		case <-c.ctx.Done():
			task.Cancel()
		}
		// A retry cancelled by Close or by the scheduler shutting down never
		// runs, so it is dropped here.
		if task.Cancelled() {
			c.wg.Done()
			c.drop(tabID, msg, context.Canceled)
		}
	}()
}

func (c *Channel) send(tabID int, msg message.Envelope) {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()
	if err := c.messenger.Send(ctx, tabID, msg); err != nil {
		c.drop(tabID, msg, err)
		return
	}
	c.delivered.Add(1)
}

func (c *Channel) drop(tabID int, msg message.Envelope, err error) {
	c.dropped.Add(1)
	c.logger.Warn("message dropped",
		zap.Int("tab_id", tabID),
		zap.String("type", string(msg.Type)),
		zap.String("interaction_id", msg.InteractionID),
		zap.Error(err),
	)
}

// Delivered returns how many messages reached an observer.
func (c *Channel) Delivered() int64 { return c.delivered.Load() }

// Dropped returns how many messages were given up on.
func (c *Channel) Dropped() int64 { return c.dropped.Load() }

// Close cancels pending retries and waits for in-flight sends to finish.
// Deliver calls made after Close drop their message.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until every delivery started so far has finished or been
// dropped. It does not stop new deliveries, so callers must not Deliver
// concurrently with Wait; use Close during shutdown.
func (c *Channel) Wait() {
	c.wg.Wait()
}
