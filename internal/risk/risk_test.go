package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chidi150c/tradegateway/internal/money"
)

type fakeStore struct {
	limits      Limits
	counters    Counters
	limitsErr   error
	countersErr error
}

func (f *fakeStore) GetCounters(ctx context.Context, user, venueName string, weekStart time.Time) (Counters, error) {
	if f.countersErr != nil {
		return Counters{}, f.countersErr
	}
	c := f.counters
	c.WeekStart = weekStart
	return c, nil
}

func (f *fakeStore) GetLimits(ctx context.Context, user, venueName string) (Limits, error) {
	if f.limitsErr != nil {
		return Limits{}, f.limitsErr
	}
	return f.limits, nil
}

func TestWeekStartIsMonday(t *testing.T) {
	wed := time.Date(2026, 7, 29, 15, 30, 0, 0, time.UTC) // a Wednesday
	ws := WeekStart(wed)
	if ws.Weekday() != time.Monday {
		t.Fatalf("WeekStart weekday = %v, want Monday", ws.Weekday())
	}
	if ws.Hour() != 0 || ws.Minute() != 0 {
		t.Fatalf("WeekStart = %v, want midnight", ws)
	}
	if ws.After(wed) {
		t.Fatalf("WeekStart %v is after input %v", ws, wed)
	}
}

func TestWeekStartDeterministicAcrossSameWeek(t *testing.T) {
	mon := time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC)
	sun := time.Date(2026, 8, 2, 23, 59, 0, 0, time.UTC)
	if !WeekStart(mon).Equal(WeekStart(sun)) {
		t.Fatalf("WeekStart(mon)=%v != WeekStart(sun)=%v", WeekStart(mon), WeekStart(sun))
	}
}

func TestEvaluateDeniesAtTradeLimit(t *testing.T) {
	store := &fakeStore{limits: Limits{MaxWeeklyTrades: 3}, counters: Counters{WeeklyTrades: 3}}
	e := NewEngine(nil, store, time.Second)
	d := e.Evaluate(context.Background(), "alice", "paper")
	if d.Allowed {
		t.Fatal("expected denial at trade limit")
	}
}

func TestEvaluateDeniesAtLossLimit(t *testing.T) {
	store := &fakeStore{
		limits:   Limits{MaxWeeklyTrades: 100, MaxWeeklyLossUSD: money.MustNew("500")},
		counters: Counters{WeeklyLossUSD: money.MustNew("500")},
	}
	e := NewEngine(nil, store, time.Second)
	d := e.Evaluate(context.Background(), "alice", "paper")
	if d.Allowed {
		t.Fatal("expected denial at loss limit")
	}
}

func TestEvaluateFailsOpenOnStoreError(t *testing.T) {
	store := &fakeStore{limitsErr: errors.New("db down")}
	e := NewEngine(nil, store, time.Second)
	d := e.Evaluate(context.Background(), "alice", "paper")
	if !d.Allowed {
		t.Fatal("expected fail-open (allowed) when limits store errors")
	}
}

func TestInvalidateCacheForcesStoreReread(t *testing.T) {
	store := &fakeStore{limits: Limits{MaxWeeklyTrades: 10}, counters: Counters{WeeklyTrades: 1}}
	e := NewEngine(nil, store, time.Hour)
	ctx := context.Background()
	e.Evaluate(ctx, "alice", "paper") // populates local cache

	store.counters = Counters{WeeklyTrades: 2}
	e.InvalidateCache("alice", "paper")
	c, err := e.counters(ctx, "alice", "paper")
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if c.WeeklyTrades != 2 {
		t.Fatalf("WeeklyTrades = %d, want 2 after invalidation re-read", c.WeeklyTrades)
	}
}
