package helpers

import (
	"sync/atomic"
	"time"

	"github.com/temoto/atomic_clock"
)

// Backoff is limited exponential delay between retries.
// First delay is Min, Failure() multiplies next delay by K up to Max.
type Backoff struct {
	next int64 // atomic align
	last atomic_clock.Clock

	Min time.Duration
	Max time.Duration
	K   float32
	Res time.Duration // delay resolution for nice logs, default=1ms
}

// Failure returns delay before next attempt. Use scenario:
//
//	for {
//		err := op()
//		if err == nil {
//			break
//		}
//		time.Sleep(backoff.Failure())
//	}
func (b *Backoff) Failure() time.Duration {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 {
		next = b.Min
	} else {
		next = time.Duration(float32(next) * b.K)
	}
	next = b.limit(next)
	b.last.SetNow()
	atomic.StoreInt64(&b.next, int64(next))
	return next
}

// Remaining is delay left since last Failure, 0 after Reset.
func (b *Backoff) Remaining() time.Duration {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 {
		return 0
	}
	since := atomic_clock.Since(&b.last)
	if since >= next {
		return 0
	}
	return b.round(next - since)
}

func (b *Backoff) Reset() {
	atomic.StoreInt64(&b.next, 0)
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max != 0 && d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
