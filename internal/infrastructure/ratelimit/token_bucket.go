package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// epsilon absorbs float error in the refill so a bucket refilled to exactly one token allows.
const epsilon = 1e-9

// tokenBucket implements the token bucket algorithm with refill on access.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	rate       float64 // tokens per second
	lastRefill time.Time
}

func (tb *tokenBucket) take(now time.Time) (bool, time.Duration, int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if elapsed := now.Sub(tb.lastRefill).Seconds(); elapsed > 0 {
		tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed*tb.rate)
		tb.lastRefill = now
	}
	if tb.tokens >= 1-epsilon {
		tb.tokens = math.Max(tb.tokens-1, 0)
		return true, 0, int64(tb.tokens)
	}
	wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
	return false, wait, 0
}

// bucketPool holds one bucket per key. Idle buckets expire, and the pool is size bounded so a
// flood of distinct identifiers cannot grow memory without limit.
type bucketPool struct {
	mu       sync.Mutex
	buckets  *expirable.LRU[string, *tokenBucket]
	capacity float64
	rate     float64
	now      func() time.Time
}

func newBucketPool(capacity, rate float64, maxKeys int, idle time.Duration, now func() time.Time) *bucketPool {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &bucketPool{
		buckets:  expirable.NewLRU[string, *tokenBucket](maxKeys, nil, 2*idle),
		capacity: capacity,
		rate:     rate,
		now:      now,
	}
}

func (p *bucketPool) take(key string) (bool, time.Duration, int64) {
	p.mu.Lock()
	b, ok := p.buckets.Get(key)
	if !ok {
		b = &tokenBucket{capacity: p.capacity, tokens: p.capacity, rate: p.rate, lastRefill: p.now()}
		p.buckets.Add(key, b)
	}
	p.mu.Unlock()
	return b.take(p.now())
}

func (p *bucketPool) remove(key string) {
	p.buckets.Remove(key)
}
