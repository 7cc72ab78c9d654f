package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/chidi150c/tradegateway/internal/money"
)

func TestNewWithEmptyTokenDisablesNotifications(t *testing.T) {
	tr, err := New("", nil, nil)
	if err != nil {
		t.Fatalf("New with empty token: %v", err)
	}
	if tr != nil {
		t.Fatal("expected nil transport when token is empty")
	}
}

func TestNilTransportSendIsNoop(t *testing.T) {
	var tr *Transport
	tr.Send(nil, "alice", KindLimitBreach, "test") // must not panic
}

func TestTradeOutcomeMessageFormatsSign(t *testing.T) {
	msg := TradeOutcomeMessage("paper", "BTC-USD", money.MustNew("12.5"), time.Now().Add(-time.Hour))
	if msg == "" {
		t.Fatal("expected non-empty message")
	}
	if !strings.Contains(msg, "+$12.5") {
		t.Fatalf("TradeOutcomeMessage = %q, want a signed +$12.5 PnL", msg)
	}
}

func TestLimitBreachMessage(t *testing.T) {
	msg := LimitBreachMessage("paper", "ETH-USD", "weekly trade limit reached")
	want := "Risk limit blocked a trade on paper/ETH-USD: weekly trade limit reached"
	if msg != want {
		t.Fatalf("LimitBreachMessage = %q, want %q", msg, want)
	}
}
