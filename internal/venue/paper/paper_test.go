package paper

import (
	"context"
	"testing"

	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/venue"
)

func TestPlaceMarketOrderOpensPosition(t *testing.T) {
	a := New(money.MustNew("100"), money.MustNew("10000"))
	ctx := context.Background()

	res, err := a.PlaceMarketOrder(ctx, "BTC-USD", venue.SideLong, money.MustNew("1"))
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}
	if res.Status != venue.OrderFilled {
		t.Fatalf("status = %v, want filled", res.Status)
	}
	has, _ := a.HasOpenPosition(ctx, "BTC-USD")
	if !has {
		t.Fatal("expected open position after market order")
	}
}

func TestClosePositionPartial(t *testing.T) {
	a := New(money.MustNew("100"), money.MustNew("10000"))
	ctx := context.Background()
	if _, err := a.PlaceMarketOrder(ctx, "ETH-USD", venue.SideLong, money.MustNew("4")); err != nil {
		t.Fatalf("open: %v", err)
	}

	res, err := a.ClosePosition(ctx, "ETH-USD", 25)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if !res.FilledQty.Equal(money.MustNew("1")) {
		t.Fatalf("filled qty = %s, want 1", res.FilledQty)
	}
	pos, err := a.GetPosition(ctx, "ETH-USD")
	if err != nil {
		t.Fatalf("GetPosition after partial close: %v", err)
	}
	if !pos.Quantity.Equal(money.MustNew("3")) {
		t.Fatalf("remaining qty = %s, want 3", pos.Quantity)
	}
}

func TestClosePositionFullRemovesIt(t *testing.T) {
	a := New(money.MustNew("100"), money.MustNew("10000"))
	ctx := context.Background()
	if _, err := a.PlaceMarketOrder(ctx, "SOL-USD", venue.SideLong, money.MustNew("2")); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := a.ClosePosition(ctx, "SOL-USD", 100); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if _, err := a.GetPosition(ctx, "SOL-USD"); err != venue.ErrPositionNotFound {
		t.Fatalf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestTrailingStopUnsupported(t *testing.T) {
	a := New(money.MustNew("100"), money.MustNew("1000"))
	_, err := a.PlaceTrailingStop(context.Background(), "BTC-USD", venue.SideLong, money.MustNew("1"), 2.0)
	if err == nil {
		t.Fatal("expected ErrUnsupported")
	}
}
