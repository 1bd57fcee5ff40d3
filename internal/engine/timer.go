package engine

import (
	"sync"
	"time"
)

// Countdown is a one-shot per-question timer. It starts at the full
// time limit, decrements once per interval (one second in production),
// and fires exactly one expiry callback at zero. Stopping it before
// expiry suppresses the callback, which is what prevents a late expiry
// from double-recording a question the player already answered.
type Countdown struct {
	total    int
	interval time.Duration
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	remaining int
	started   bool
	stopped   bool
	done      chan struct{}
}

func NewCountdown(seconds int, onTick func(int), onExpire func()) *Countdown {
	return NewCountdownWithInterval(seconds, time.Second, onTick, onExpire)
}

// NewCountdownWithInterval is test-only for fast ticking.
func NewCountdownWithInterval(seconds int, interval time.Duration, onTick func(int), onExpire func()) *Countdown {
	return &Countdown{
		total:     seconds,
		interval:  interval,
		onTick:    onTick,
		onExpire:  onExpire,
		remaining: seconds,
		done:      make(chan struct{}),
	}
}

// Start launches the tick loop. Calling it twice is a no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
}

func (c *Countdown) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				return
			}
			c.remaining--
			remaining := c.remaining
			expired := remaining <= 0
			if expired {
				c.stopped = true
			}
			c.mu.Unlock()

			if c.onTick != nil && remaining >= 0 {
				c.onTick(remaining)
			}
			if expired {
				if c.onExpire != nil {
					c.onExpire()
				}
				return
			}
		case <-c.done:
			return
		}
	}
}

// Stop cancels the countdown. It reports whether the call actually
// stopped a live timer; false means the countdown already expired or
// was stopped before.
func (c *Countdown) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.stopped = true
	close(c.done)
	return true
}

// Remaining returns whole seconds left, never negative.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining < 0 {
		return 0
	}
	return c.remaining
}

// Elapsed returns whole seconds consumed so far.
func (c *Countdown) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := c.total - c.remaining
	if elapsed < 0 {
		return 0
	}
	if elapsed > c.total {
		return c.total
	}
	return elapsed
}

// Percent returns remaining time as a display percentage in [0,100].
func (c *Countdown) Percent() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total <= 0 {
		return 0
	}
	pct := 100 * float64(c.remaining) / float64(c.total)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
