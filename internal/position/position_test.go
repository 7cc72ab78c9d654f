package position

import (
	"context"
	"testing"

	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/venue"
	"github.com/chidi150c/tradegateway/internal/venue/paper"
)

func TestAddGetRemove(t *testing.T) {
	tr := New()
	key := Key{User: "alice", Venue: "paper", Symbol: "BTC-USD"}
	tr.Add(key, venue.Position{Symbol: "BTC-USD", Side: venue.SideLong, Quantity: money.MustNew("1")})
	if !tr.Has(key) {
		t.Fatal("expected Has true after Add")
	}
	tr.Remove(key)
	if tr.Has(key) {
		t.Fatal("expected Has false after Remove")
	}
}

func TestReconcileAddsNewAndDropsClosed(t *testing.T) {
	ctx := context.Background()
	adapter := paper.New(money.MustNew("100"), money.MustNew("10000"))
	adapter.PlaceMarketOrder(ctx, "ETH-USD", venue.SideLong, money.MustNew("2"))

	tr := New()
	stale := Key{User: "alice", Venue: "paper", Symbol: "SOL-USD"}
	tr.Add(stale, venue.Position{Symbol: "SOL-USD", Quantity: money.MustNew("5")})

	if err := tr.Reconcile(ctx, "alice", "paper", adapter); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if tr.Has(stale) {
		t.Fatal("expected stale SOL-USD entry to be dropped")
	}
	if !tr.Has(Key{User: "alice", Venue: "paper", Symbol: "ETH-USD"}) {
		t.Fatal("expected ETH-USD entry to be added from venue state")
	}
}

func TestSummaryForUserFiltersOtherUsers(t *testing.T) {
	tr := New()
	tr.Add(Key{User: "alice", Venue: "paper", Symbol: "BTC-USD"}, venue.Position{Symbol: "BTC-USD"})
	tr.Add(Key{User: "bob", Venue: "paper", Symbol: "ETH-USD"}, venue.Position{Symbol: "ETH-USD"})

	out := tr.SummaryForUser("alice")
	if len(out) != 1 || out[0].Key.Symbol != "BTC-USD" {
		t.Fatalf("SummaryForUser(alice) = %+v, want one BTC-USD entry", out)
	}
}
