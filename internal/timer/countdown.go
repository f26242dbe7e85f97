// Package timer runs the per-session countdowns shown next to active
// sessions.
package timer

import (
	"fmt"
	"sync"

	"warnet/backend/internal/model"
)

// Countdown counts a session's remaining seconds down to zero. It is driven
// by Tick and does not own a goroutine.
type Countdown struct {
	mu        sync.Mutex
	sessionID string
	remaining int
	paused    bool
	expired   bool
	onExpire  func(sessionID string)
}

func NewCountdown(sessionID string, remaining int, onExpire func(sessionID string)) *Countdown {
	if remaining < 0 {
		remaining = 0
	}
	return &Countdown{
		sessionID: sessionID,
		remaining: remaining,
		onExpire:  onExpire,
	}
}

// Tick advances the countdown by one second. It reports whether this tick
// expired the countdown; onExpire runs at most once per arming.
func (c *Countdown) Tick() bool {
	c.mu.Lock()
	if c.paused || c.expired {
		c.mu.Unlock()
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining > 0 {
		c.mu.Unlock()
		return false
	}
	c.expired = true
	fn := c.onExpire
	c.mu.Unlock()

	if fn != nil {
		fn(c.sessionID)
	}
	return true
}

func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// Reset replaces the remaining time. A positive value re-arms an expired
// countdown.
func (c *Countdown) Reset(remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remaining < 0 {
		remaining = 0
	}
	c.remaining = remaining
	if remaining > 0 {
		c.expired = false
	}
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// syncValue is what a periodic sync should persist. Nothing is written while
// paused or after expiry.
func (c *Countdown) syncValue() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining, !c.paused && !c.expired
}

type State struct {
	SessionID string `json:"sessionId"`
	Remaining int    `json:"remaining"`
	Display   string `json:"display"`
	Critical  bool   `json:"critical"`
	Paused    bool   `json:"paused"`
	Expired   bool   `json:"expired"`
}

func (c *Countdown) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		SessionID: c.sessionID,
		Remaining: c.remaining,
		Display:   Format(c.remaining),
		Critical:  Critical(c.remaining),
		Paused:    c.paused,
		Expired:   c.expired,
	}
}

// Format renders seconds as HH:MM:SS. Hours are not wrapped at 24.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

func Critical(seconds int) bool {
	return seconds < model.CriticalSeconds
}
