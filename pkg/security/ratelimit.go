package security

import (
	"time"
)

// tokenBucket is a lazily refilled rate limiter. Tokens accrue with
// elapsed time on each access instead of via a background timer, so an
// idle bucket costs nothing.
type tokenBucket struct {
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastUpdate time.Time
}

// newTokenBucket creates a full bucket that refills its entire
// capacity every minute.
func newTokenBucket(perMinute int, now time.Time) *tokenBucket {
	capacity := float64(perMinute)
	return &tokenBucket{
		capacity:   capacity,
		refillRate: capacity / 60.0,
		tokens:     capacity,
		lastUpdate: now,
	}
}

// refill credits tokens for the time elapsed since the last access.
func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.refillRate)
		b.lastUpdate = now
	}
}

// available reports whether a token could be consumed right now.
func (b *tokenBucket) available(now time.Time) bool {
	b.refill(now)
	return b.tokens >= 1.0
}

// consume takes one token. Returns false when the bucket is empty.
func (b *tokenBucket) consume(now time.Time) bool {
	b.refill(now)
	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// waitTime returns how long until the next token is available.
func (b *tokenBucket) waitTime(now time.Time) time.Duration {
	b.refill(now)
	if b.tokens >= 1.0 {
		return 0
	}
	needed := 1.0 - b.tokens
	return time.Duration(needed / b.refillRate * float64(time.Second))
}
