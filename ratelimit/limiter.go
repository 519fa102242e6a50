// Package ratelimit maintains per-(rule, client IP) request-rate state for
// IP Rate Limiting rules. Exceeding the allowed rate puts the client on a
// timed block list; the block is a penalty measured from first exceedance,
// not a re-evaluated window.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// minIdleTTL is the floor for how long an idle entry is kept around.
const minIdleTTL = 5 * time.Minute

// sweepEvery bounds how often a Check call pays for a full eviction sweep.
const sweepEvery = time.Minute

type counterKey struct {
	ruleId   string
	clientIp string
}

type counterEntry struct {
	limiter      *rate.Limiter
	perSecond    int
	blockedUntil time.Time
	lastSeen     time.Time
}

// Limiter is the in-process counter store. All methods are safe for
// concurrent use from many simultaneous requests.
type Limiter struct {
	logger    zerolog.Logger
	mu        sync.Mutex
	entries   map[counterKey]*counterEntry
	lastSweep time.Time
	now       func() time.Time
}

// NewLimiter creates an empty counter store.
func NewLimiter(logger zerolog.Logger) *Limiter {
	return &Limiter{
		logger:  logger,
		entries: make(map[counterKey]*counterEntry),
		now:     time.Now,
	}
}

// Check records one request from clientIp against the given rule and reports
// whether the client is over the limit. perSecond requests per second are
// allowed; one more within a window puts the client on the block list for
// blockSeconds, counted from the moment the limit was first exceeded.
func (l *Limiter) Check(ruleId string, clientIp string, perSecond int, blockSeconds int) (blocked bool) {
	if perSecond <= 0 {
		// A non-positive rate is a configuration problem; clamp to block nothing.
		return false
	}

	now := l.now()
	key := counterKey{ruleId: ruleId, clientIp: clientIp}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeSweep(now, blockSeconds)

	e, ok := l.entries[key]
	if ok && e.perSecond != perSecond {
		// The rule's rate changed since this entry was created; start over.
		ok = false
	}
	if !ok {
		e = &counterEntry{
			limiter:   rate.NewLimiter(rate.Limit(perSecond), perSecond),
			perSecond: perSecond,
		}
		l.entries[key] = e
	}
	e.lastSeen = now

	// An active block stays in force for its full duration even if the
	// client's rate drops to zero.
	if e.blockedUntil.After(now) {
		return true
	}

	if !e.limiter.AllowN(now, 1) {
		e.blockedUntil = now.Add(time.Duration(blockSeconds) * time.Second)
		l.logger.Info().
			Str("rule", ruleId).
			Str("clientIp", clientIp).
			Int("perSecond", perSecond).
			Int("blockSeconds", blockSeconds).
			Msg("Rate limit exceeded, client blocked")
		return true
	}

	return false
}

// maybeSweep evicts entries that have been idle for longer than the block
// duration (or the idle TTL floor, whichever is larger). Called with l.mu held.
func (l *Limiter) maybeSweep(now time.Time, blockSeconds int) {
	if now.Sub(l.lastSweep) < sweepEvery {
		return
	}
	l.lastSweep = now

	ttl := time.Duration(blockSeconds) * time.Second
	if ttl < minIdleTTL {
		ttl = minIdleTTL
	}

	for k, e := range l.entries {
		if e.blockedUntil.After(now) {
			continue
		}
		if now.Sub(e.lastSeen) > ttl {
			delete(l.entries, k)
		}
	}
}

// Len reports the number of live counter entries. Intended for tests and
// introspection.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
