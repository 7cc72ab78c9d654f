// Package settings is the Settings Service (spec.md §4.3): per-user,
// per-venue trading policy (position sizing defaults, trading window,
// protective-order defaults) cached with a short TTL so the hot webhook
// path doesn't hit the store on every request, falling open to
// conservative defaults when the store is unreachable (spec.md §4.3's
// fail-open requirement — a settings outage must never block a
// close-only request, but should make new entries more conservative).
package settings

import (
	"context"
	"sync"
	"time"
)

// TradingWindow is a normalized UTC time-of-day window. The zero-value
// window (StartMinuteUTC == EndMinuteUTC == 0) means "always open".
type TradingWindow struct {
	StartMinuteUTC int // minutes since 00:00 UTC
	EndMinuteUTC   int
	Preset         string // e.g. "london_session"; "" for a custom window
	Timezone       string // IANA zone the window was authored in; display only, Contains always compares in UTC
}

// Always reports whether the window covers the full day.
func (w TradingWindow) Always() bool { return w.StartMinuteUTC == 0 && w.EndMinuteUTC == 0 }

// Contains reports whether t falls inside the window, wrapping past
// midnight when EndMinuteUTC < StartMinuteUTC.
func (w TradingWindow) Contains(t time.Time) bool {
	if w.Always() {
		return true
	}
	minute := t.UTC().Hour()*60 + t.UTC().Minute()
	if w.StartMinuteUTC <= w.EndMinuteUTC {
		return minute >= w.StartMinuteUTC && minute < w.EndMinuteUTC
	}
	return minute >= w.StartMinuteUTC || minute < w.EndMinuteUTC
}

// Policy is the per-user, per-venue trading policy resolved by this
// service.
type Policy struct {
	DefaultPositionSizeUSDPercent float64 // % of balance per new position when Intent omits a size
	DefaultStopLossPercent        float64
	DefaultTakeProfitPercent      float64
	Window                        TradingWindow
	AutoCloseOutsideWindow        bool // if true, positions left open past Window get force-closed by the sweep
	MaxOpenPositions              int
}

// conservativeDefault is returned whenever the store is unreachable: no
// implicit position sizing beyond a small fixed percent, a tight stop,
// and an always-open window so close requests are never blocked.
func conservativeDefault() Policy {
	return Policy{
		DefaultPositionSizeUSDPercent: 1,
		DefaultStopLossPercent:        2,
		DefaultTakeProfitPercent:      4,
		Window:                        TradingWindow{},
		MaxOpenPositions:              1,
	}
}

// Store is the narrow persistence dependency: fetching a user/venue's
// stored policy row.
type Store interface {
	GetPolicy(ctx context.Context, user, venueName string) (Policy, error)
}

type cacheEntry struct {
	policy    Policy
	expiresAt time.Time
}

// Service resolves policies with a bounded TTL cache, generalizing the
// teacher's pattern of loading bot-wide config once at boot (config.go)
// into a per-(user,venue) lookup that must stay fresh without hammering
// the store on every webhook (spec.md §4.3's "cached with TTL ≤ 1 minute"
// invariant).
type Service struct {
	store Store
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New constructs a Service. ttl is clamped to 1 minute if larger or
// non-positive, per spec.md §4.3.
func New(store Store, ttl time.Duration) *Service {
	if ttl <= 0 || ttl > time.Minute {
		ttl = time.Minute
	}
	return &Service{store: store, ttl: ttl, cache: make(map[string]cacheEntry)}
}

func key(user, venueName string) string { return user + "|" + venueName }

// Resolve returns the effective policy for (user, venueName), serving
// from cache when fresh, and falling open to conservativeDefault (never
// returning an error to the caller) when the store lookup fails.
func (s *Service) Resolve(ctx context.Context, user, venueName string) Policy {
	k := key(user, venueName)
	now := time.Now()

	s.mu.Lock()
	if e, ok := s.cache[k]; ok && now.Before(e.expiresAt) {
		s.mu.Unlock()
		return e.policy
	}
	s.mu.Unlock()

	policy, err := s.store.GetPolicy(ctx, user, venueName)
	if err != nil {
		return conservativeDefault()
	}

	s.mu.Lock()
	s.cache[k] = cacheEntry{policy: policy, expiresAt: now.Add(s.ttl)}
	s.mu.Unlock()
	return policy
}

// Invalidate drops the cached policy for (user, venueName), for use
// after an admin-triggered settings update.
func (s *Service) Invalidate(user, venueName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key(user, venueName))
}
