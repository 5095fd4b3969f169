// Package reveal decides when hidden content becomes visible.
package reveal

import (
	"sync"
	"time"

	"reveal-service/internal/models"
)

// IsRevealed reports whether content scheduled for revealAt is visible at now.
func IsRevealed(now, revealAt time.Time) bool {
	return !now.Before(revealAt)
}

// EffectiveDate returns the reveal date that governs msg. Groups that reveal per
// message defer to the message; all others use the group date. A nil group
// (not loaded yet) falls back to the message's own date.
func EffectiveDate(group *models.Group, msg models.Message) time.Time {
	if group == nil || group.RevealPerMessage {
		return msg.RevealDate
	}
	return group.RevealDate
}

// Visible reports whether msg is treated as revealed at now: either the stored
// flag is already set or its effective reveal date has passed.
func Visible(now time.Time, group *models.Group, msg models.Message) bool {
	return msg.IsRevealed || IsRevealed(now, EffectiveDate(group, msg))
}

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
