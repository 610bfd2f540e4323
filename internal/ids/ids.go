// Package ids generates correlation ids for native→renderer requests.
//
// A Generator is owned by one dispatcher and injected into it, so tests
// can control assignment and wraparound.  Generators only promise a
// sequence; uniqueness among in-flight calls is enforced by the caller.
package ids

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// MaxSafeInteger is the largest integer a renderer can represent
// exactly (2^53 - 1).  Counter ids wrap to zero once they reach it.
const MaxSafeInteger uint64 = 1<<53 - 1

// Prefix marks ids allocated by the native side.
const Prefix = "desktop"

// Generator yields correlation ids.
type Generator interface {
	Next() string
}

// ── Counter ──────────────────────────────────────────────────────────

// Counter issues "desktop0", "desktop1", ... shared across all windows.
type Counter struct {
	mu      sync.Mutex
	next    uint64
	ceiling uint64
}

// NewCounter returns a counter starting at zero that wraps at
// [MaxSafeInteger].
func NewCounter() *Counter {
	return &Counter{ceiling: MaxSafeInteger}
}

// Next returns the next id, wrapping to zero at the ceiling.
func (c *Counter) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next >= c.ceiling {
		c.next = 0
	}
	n := c.next
	c.next++
	return Prefix + strconv.FormatUint(n, 10)
}

// Reset positions the counter so the next id is built from n (after
// wraparound if n is at or past the ceiling).
func (c *Counter) Reset(n uint64) {
	c.mu.Lock()
	c.next = n
	c.mu.Unlock()
}

// ── UUID ─────────────────────────────────────────────────────────────

// UUID issues random version 4 ids, e.g. "desktop-5f0c...".
type UUID struct{}

// Next returns a fresh random id.
func (UUID) Next() string {
	return Prefix + "-" + uuid.NewString()
}

// ── Selection ────────────────────────────────────────────────────────

// Scheme names a generator kind accepted on the command line.
type Scheme string

const (
	SchemeCounter Scheme = "counter"
	SchemeUUID    Scheme = "uuid"
)

// New returns the generator for scheme, or false if the scheme is
// unknown.
func New(scheme Scheme) (Generator, bool) {
	switch scheme {
	case SchemeCounter, "":
		return NewCounter(), true
	case SchemeUUID:
		return UUID{}, true
	default:
		return nil, false
	}
}
