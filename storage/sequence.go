package storage

import (
	"sync/atomic"
	"time"
)

var lastSequence int64

// nextSequence returns a creation sequence used to break ties between
// siblings that share a position. Values are strictly increasing within this
// process only; separate instances draw from their own clocks, so rows they
// create may interleave or tie, which sibling ordering tolerates.
func nextSequence() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastSequence)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastSequence, last, now) {
			return now
		}
	}
}
