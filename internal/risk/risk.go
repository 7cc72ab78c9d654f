// Package risk is the Risk-Limit Engine (spec.md §4.4): per-user,
// per-venue weekly trade-count and weekly-loss counters checked before
// every new position is opened. Counters are read through a tiered
// cache (an optional process-external tier, then an in-process TTL
// map, then the store) and fail open on internal failure so a cache or
// store outage degrades to "allow" rather than silently blocking all
// trading (spec.md §4.4's fail-open invariant) — the same philosophy
// as the teacher's trader.go, which never aborts a trading cycle just
// because one telemetry call failed.
package risk

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chidi150c/tradegateway/internal/money"
)

// Limits is the per-user, per-venue configured ceiling.
type Limits struct {
	MaxWeeklyTrades int
	MaxWeeklyLossUSD money.Amount
}

// Counters is this week's running tally.
type Counters struct {
	WeeklyTrades  int
	WeeklyLossUSD money.Amount
	WeekStart     time.Time
}

// Decision is the engine's verdict for a proposed new trade.
type Decision struct {
	Allowed bool
	Reason  string
}

// WeekStart returns the Monday 00:00 UTC boundary of the week
// containing now — a pure function with no side effects, matching
// spec.md §4.4's exact wording, so counters always reset on the same
// instant regardless of which process or goroutine evaluates it.
func WeekStart(now time.Time) time.Time {
	u := now.UTC()
	// time.Weekday: Sunday=0 .. Saturday=6; ISO week starts Monday.
	offset := (int(u.Weekday()) + 6) % 7
	monday := u.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// ExternalCache is the optional process-external tier (spec.md §4.4's
// "shared process-external cache" tier i). A deployment without a
// shared cache simply doesn't wire one in; NewEngine accepts nil.
type ExternalCache interface {
	GetCounters(ctx context.Context, user, venueName string) (Counters, bool, error)
	SetCounters(ctx context.Context, user, venueName string, c Counters, ttl time.Duration) error
}

// Store is the persistence tier (tier iii): the system of record for
// weekly counters when no cache layer has them.
type Store interface {
	GetCounters(ctx context.Context, user, venueName string, weekStart time.Time) (Counters, error)
	GetLimits(ctx context.Context, user, venueName string) (Limits, error)
}

type localEntry struct {
	counters  Counters
	expiresAt time.Time
}

// Engine evaluates trade requests against weekly limits.
type Engine struct {
	external ExternalCache // tier i, may be nil
	store    Store         // tier iii
	localTTL time.Duration

	mu    sync.Mutex
	local map[string]localEntry // tier ii
}

// NewEngine constructs an Engine. external may be nil when no shared
// cache is deployed; the in-process tier then backs every lookup
// between store reads.
func NewEngine(external ExternalCache, store Store, localTTL time.Duration) *Engine {
	if localTTL <= 0 {
		localTTL = 15 * time.Second
	}
	return &Engine{external: external, store: store, localTTL: localTTL, local: make(map[string]localEntry)}
}

func cacheKey(user, venueName string) string { return user + "|" + venueName }

// counters resolves the current week's counters through the tiered
// cache, falling back to the store on a full miss.
func (e *Engine) counters(ctx context.Context, user, venueName string) (Counters, error) {
	now := time.Now()
	weekStart := WeekStart(now)
	key := cacheKey(user, venueName)

	if e.external != nil {
		if c, ok, err := e.external.GetCounters(ctx, user, venueName); err == nil && ok && c.WeekStart.Equal(weekStart) {
			e.setLocal(key, c, now)
			return c, nil
		}
	}

	e.mu.Lock()
	if entry, ok := e.local[key]; ok && now.Before(entry.expiresAt) && entry.counters.WeekStart.Equal(weekStart) {
		e.mu.Unlock()
		return entry.counters, nil
	}
	e.mu.Unlock()

	c, err := e.store.GetCounters(ctx, user, venueName, weekStart)
	if err != nil {
		return Counters{}, fmt.Errorf("risk: load counters: %w", err)
	}
	e.setLocal(key, c, now)
	if e.external != nil {
		_ = e.external.SetCounters(ctx, user, venueName, c, e.localTTL*4)
	}
	return c, nil
}

func (e *Engine) setLocal(key string, c Counters, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.local[key] = localEntry{counters: c, expiresAt: now.Add(e.localTTL)}
}

// Evaluate checks whether a new trade is allowed under the user/venue's
// weekly limits. On any internal failure (store unreachable, cache
// error) it fails open — Allowed=true — since a risk-engine outage must
// never itself become the cause of a missed trading opportunity, while
// still logging the degraded state for the caller to surface as a
// metric (spec.md §4.4).
func (e *Engine) Evaluate(ctx context.Context, user, venueName string) Decision {
	limits, err := e.store.GetLimits(ctx, user, venueName)
	if err != nil {
		log.Printf("WARN risk: limits unavailable for %s/%s, failing open: %v", user, venueName, err)
		return Decision{Allowed: true, Reason: "risk engine degraded: limits unavailable, failing open"}
	}
	c, err := e.counters(ctx, user, venueName)
	if err != nil {
		log.Printf("WARN risk: counters unavailable for %s/%s, failing open: %v", user, venueName, err)
		return Decision{Allowed: true, Reason: "risk engine degraded: counters unavailable, failing open"}
	}
	if limits.MaxWeeklyTrades > 0 && c.WeeklyTrades >= limits.MaxWeeklyTrades {
		return Decision{Allowed: false, Reason: fmt.Sprintf("weekly trade limit reached (%d/%d)", c.WeeklyTrades, limits.MaxWeeklyTrades)}
	}
	if limits.MaxWeeklyLossUSD.IsPositive() && c.WeeklyLossUSD.GreaterThanOrEqual(limits.MaxWeeklyLossUSD) {
		return Decision{Allowed: false, Reason: fmt.Sprintf("weekly loss limit reached (%s/%s)", c.WeeklyLossUSD, limits.MaxWeeklyLossUSD)}
	}
	return Decision{Allowed: true}
}

// InvalidateCache drops the cached counters for (user, venueName) after
// a position closes, so the engine's next Evaluate call re-reads the
// store's fresh tally (spec.md §4.4's "cache invalidated on trade
// close" requirement) rather than serving a stale allow/deny. The
// executor is the one caller: it persists the trade row itself
// (internal/store.Client.InsertTrade) with the richer audit fields
// GetCounters aggregates from, so the engine only needs to drop its
// cached entry, not write the row a second time.
func (e *Engine) InvalidateCache(user, venueName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.local, cacheKey(user, venueName))
}
