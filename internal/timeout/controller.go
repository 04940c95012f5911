package timeout

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Slot names a delayed callback
type Slot string

// SlotStop stops the recording after a period of continuous silence
const SlotStop Slot = "stop"

// Controller schedules at most one callback per slot
type Controller struct {
	clock clock.Clock
	delay time.Duration

	callbacks map[Slot]func()
	pending   map[Slot]*clock.Timer

	mu sync.Mutex
}

// New creates a controller firing callbacks after delay.
// A nil clock uses the wall clock.
func New(delay time.Duration, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		clock:     clk,
		delay:     delay,
		callbacks: make(map[Slot]func()),
		pending:   make(map[Slot]*clock.Timer),
	}
}

// Register sets the callback fired for slot
func (c *Controller) Register(slot Slot, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[slot] = fn
}

// Arm schedules the slot callback unless one is already pending.
// It reports whether a new timer was scheduled.
func (c *Controller) Arm(slot Slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, armed := c.pending[slot]; armed {
		return false
	}
	fn, ok := c.callbacks[slot]
	if !ok {
		return false
	}

	var timer *clock.Timer
	timer = c.clock.AfterFunc(c.delay, func() {
		c.mu.Lock()
		// a disarm+arm may have replaced us while we were waiting for the lock
		if c.pending[slot] != timer {
			c.mu.Unlock()
			return
		}
		delete(c.pending, slot)
		c.mu.Unlock()

		fn()
	})
	c.pending[slot] = timer
	return true
}

// Disarm cancels a pending slot callback. Safe to call when nothing is armed.
func (c *Controller) Disarm(slot Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timer, ok := c.pending[slot]; ok {
		timer.Stop()
		delete(c.pending, slot)
	}
}

// DisarmAll cancels every pending callback
func (c *Controller) DisarmAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for slot, timer := range c.pending {
		timer.Stop()
		delete(c.pending, slot)
	}
}

// Pending reports whether a callback is scheduled for slot
func (c *Controller) Pending(slot Slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.pending[slot]
	return ok
}

// Delay returns the configured delay
func (c *Controller) Delay() time.Duration {
	return c.delay
}
