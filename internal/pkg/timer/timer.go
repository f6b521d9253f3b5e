// Package timer provides a pausable one-shot countdown.
//
// A Countdown holds its remaining duration explicitly, not as a wall-clock
// deadline, so pausing and resuming is a value update rather than a thread
// suspend. This models a turn clock that must survive a player's
// disconnection grace window without losing elapsed time.
package timer

import (
	"sync"
	"time"
)

// Countdown fires a callback once after its remaining duration elapses.
// It can be paused and later resumed from where it left off. All methods
// are safe for concurrent use. The callback runs on its own goroutine and
// must not call back into the Countdown.
type Countdown struct {
	mu        sync.Mutex
	remaining time.Duration
	startedAt time.Time
	timer     *time.Timer
	running   bool
	stopped   bool
	gen       uint64
	fn        func()
}

// New creates a countdown that will fire fn after d once started.
func New(d time.Duration, fn func()) *Countdown {
	return &Countdown{remaining: d, fn: fn}
}

// Start arms the countdown. Starting an already-running or stopped
// countdown is a no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.stopped {
		return
	}
	c.arm()
}

// Pause suspends the countdown, preserving its remaining duration.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.disarm()
	c.remaining -= time.Since(c.startedAt)
	if c.remaining < 0 {
		c.remaining = 0
	}
}

// Resume continues the countdown from its remaining duration. It does not
// reset the clock to its full duration.
func (c *Countdown) Resume() {
	c.Start()
}

// Stop cancels the countdown permanently. The callback will not fire after
// Stop returns.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.disarm()
	c.stopped = true
}

// Remaining returns the duration left on the clock.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return c.remaining
	}
	left := c.remaining - time.Since(c.startedAt)
	if left < 0 {
		left = 0
	}
	return left
}

// arm starts the underlying timer. Callers must hold mu.
func (c *Countdown) arm() {
	gen := c.gen
	c.startedAt = time.Now()
	c.running = true
	c.timer = time.AfterFunc(c.remaining, func() {
		c.mu.Lock()
		if c.gen != gen || c.stopped {
			c.mu.Unlock()
			return
		}
		c.remaining = 0
		c.running = false
		c.gen++
		c.mu.Unlock()
		c.fn()
	})
}

// disarm cancels the underlying timer and invalidates any in-flight fire.
// Callers must hold mu.
func (c *Countdown) disarm() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
	}
	c.running = false
}
