// Package ratelimit implements per-user admission control: a cooldown
// between successive admitted requests plus a rolling daily quota per
// (user, platform) pair.
package ratelimit

import (
	"sync"
	"time"

	"mediarelay/internal/platform"
)

// quotaWindow is the rolling window for daily limits.
const quotaWindow = 24 * time.Hour

// shardCount must be a power of two.
const shardCount = 64

// Reason explains why an admission was denied.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonCooldown
	ReasonDailyLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonCooldown:
		return "cooldown"
	case ReasonDailyLimit:
		return "daily_limit"
	default:
		return "none"
	}
}

// Decision is the outcome of an admission attempt. For cooldown denials
// RetryAfter carries the remaining wait; for quota outcomes Remaining
// carries the admissions left in the current window.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
	Remaining  int
}

type quotaKey struct {
	user int64
	plat platform.Platform
}

type window struct {
	count int
	start time.Time
}

// All state for one user lives in one shard, so a single shard lock covers
// the cooldown check, the quota check, and the commit of both.
type shard struct {
	mu        sync.Mutex
	lastAdmit map[int64]time.Time
	quota     map[quotaKey]*window
}

// Gate holds admission state for all users. Shards keep concurrent
// admissions for unrelated users from contending on one lock.
type Gate struct {
	cooldown time.Duration
	limits   map[platform.Platform]int
	shards   [shardCount]*shard
}

// New creates a gate with the given cooldown and per-platform daily limits.
// Platforms missing from limits fall back to their built-in defaults.
func New(cooldown time.Duration, limits map[platform.Platform]int) *Gate {
	g := &Gate{
		cooldown: cooldown,
		limits:   make(map[platform.Platform]int, len(limits)),
	}
	for _, p := range platform.All() {
		g.limits[p] = p.DefaultDailyLimit()
	}
	for p, l := range limits {
		g.limits[p] = l
	}
	for i := range g.shards {
		g.shards[i] = &shard{
			lastAdmit: make(map[int64]time.Time),
			quota:     make(map[quotaKey]*window),
		}
	}
	return g
}

func (g *Gate) shardFor(user int64) *shard {
	return g.shards[uint64(user)&(shardCount-1)]
}

// Admit decides whether a request from user for p may proceed at time now.
// The cooldown gate runs first, then the quota gate; state is committed
// only when both pass, so a quota denial never consumes the user's
// cooldown, a cooldown denial never touches the quota window, and the
// window itself is anchored at the first admitted request.
func (g *Gate) Admit(user int64, p platform.Platform, now time.Time) Decision {
	s := g.shardFor(user)
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastAdmit[user]; ok {
		if elapsed := now.Sub(last); elapsed < g.cooldown {
			return Decision{Reason: ReasonCooldown, RetryAfter: g.cooldown - elapsed}
		}
	}

	key := quotaKey{user: user, plat: p}
	w := s.quota[key]
	count := 0
	if w != nil && now.Sub(w.start) <= quotaWindow {
		count = w.count
	}

	limit := g.limits[p]
	if count >= limit {
		return Decision{Reason: ReasonDailyLimit, Remaining: 0}
	}

	// Commit only now: a fresh or expired window is anchored at this
	// admission, never at a denied attempt.
	if w == nil {
		w = &window{}
		s.quota[key] = w
	}
	if count == 0 {
		w.start = now
	}
	w.count = count + 1
	s.lastAdmit[user] = now
	return Decision{Allowed: true, Remaining: limit - w.count}
}

// CooldownRemaining returns how long user must still wait before the next
// admission, or zero if none. Read-only; used by the /status command.
func (g *Gate) CooldownRemaining(user int64, now time.Time) time.Duration {
	s := g.shardFor(user)
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastAdmit[user]
	if !ok {
		return 0
	}
	if elapsed := now.Sub(last); elapsed < g.cooldown {
		return g.cooldown - elapsed
	}
	return 0
}
