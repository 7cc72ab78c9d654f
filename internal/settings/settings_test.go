package settings

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	policy Policy
	err    error
	calls  int
}

func (f *fakeStore) GetPolicy(ctx context.Context, user, venueName string) (Policy, error) {
	f.calls++
	return f.policy, f.err
}

func TestResolveCachesWithinTTL(t *testing.T) {
	store := &fakeStore{policy: Policy{DefaultPositionSizeUSDPercent: 10}}
	svc := New(store, 50*time.Millisecond)

	p1 := svc.Resolve(context.Background(), "alice", "paper")
	p2 := svc.Resolve(context.Background(), "alice", "paper")
	if p1 != p2 {
		t.Fatalf("expected identical cached policy")
	}
	if store.calls != 1 {
		t.Fatalf("store.calls = %d, want 1 (cached)", store.calls)
	}
}

func TestResolveFailsOpenOnStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	svc := New(store, time.Minute)
	p := svc.Resolve(context.Background(), "alice", "paper")
	want := conservativeDefault()
	if p != want {
		t.Fatalf("Resolve on store error = %+v, want conservative default %+v", p, want)
	}
}

func TestTradingWindowWrapsMidnight(t *testing.T) {
	w := TradingWindow{StartMinuteUTC: 22 * 60, EndMinuteUTC: 2 * 60}
	late := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	early := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	mid := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if !w.Contains(late) || !w.Contains(early) {
		t.Fatal("expected wrap-around window to contain late/early times")
	}
	if w.Contains(mid) {
		t.Fatal("expected midday to be outside the overnight window")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	store := &fakeStore{policy: Policy{DefaultPositionSizeUSDPercent: 5}}
	svc := New(store, time.Minute)
	svc.Resolve(context.Background(), "alice", "paper")
	svc.Invalidate("alice", "paper")
	svc.Resolve(context.Background(), "alice", "paper")
	if store.calls != 2 {
		t.Fatalf("store.calls = %d, want 2 after invalidate", store.calls)
	}
}

func TestResolveCarriesWindowPresetAndAutoClose(t *testing.T) {
	policy := Policy{
		Window: TradingWindow{
			StartMinuteUTC: 8 * 60, EndMinuteUTC: 17 * 60,
			Preset: "london-session", Timezone: "Europe/London",
		},
		AutoCloseOutsideWindow: true,
	}
	store := &fakeStore{policy: policy}
	svc := New(store, time.Minute)
	got := svc.Resolve(context.Background(), "alice", "paper")
	if got.Window.Preset != "london-session" || got.Window.Timezone != "Europe/London" {
		t.Fatalf("Resolve dropped window preset/timezone: %+v", got.Window)
	}
	if !got.AutoCloseOutsideWindow {
		t.Fatal("Resolve dropped AutoCloseOutsideWindow")
	}
}
