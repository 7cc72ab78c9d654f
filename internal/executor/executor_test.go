package executor

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/mlclient"
	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/notify"
	"github.com/chidi150c/tradegateway/internal/position"
	"github.com/chidi150c/tradegateway/internal/risk"
	"github.com/chidi150c/tradegateway/internal/settings"
	"github.com/chidi150c/tradegateway/internal/store"
	"github.com/chidi150c/tradegateway/internal/venue"
	"github.com/chidi150c/tradegateway/internal/venue/paper"
)

type fakeRisk struct {
	allowed     bool
	reason      string
	invalidated []string
}

func (f *fakeRisk) Evaluate(ctx context.Context, user, venueName string) risk.Decision {
	return risk.Decision{Allowed: f.allowed, Reason: f.reason}
}
func (f *fakeRisk) InvalidateCache(user, venueName string) {
	f.invalidated = append(f.invalidated, user+"|"+venueName)
}

type fakeSettings struct{ policy settings.Policy }

func (f *fakeSettings) Resolve(ctx context.Context, user, venueName string) settings.Policy {
	return f.policy
}

type fakeML struct {
	approved   bool
	confidence float64
	reason     string
}

func (f *fakeML) ValidateStrategySignal(ctx context.Context, payload any) mlclient.ValidationResult {
	return mlclient.ValidationResult{Approved: f.approved, Confidence: f.confidence, Reason: f.reason}
}

type fakeStrategies struct {
	assisted    bool
	sizePercent float64
}

func (f *fakeStrategies) MLAssisted(ctx context.Context, strategyID string) (bool, error) {
	return f.assisted, nil
}

func (f *fakeStrategies) StrategySizePercent(ctx context.Context, strategyID string) (float64, error) {
	return f.sizePercent, nil
}

type fakeStore struct {
	positions []store.PositionRecord
	trades    []store.TradeRecord
	deleted   []string
}

func (f *fakeStore) UpsertPosition(ctx context.Context, rec store.PositionRecord) error {
	f.positions = append(f.positions, rec)
	return nil
}
func (f *fakeStore) DeletePosition(ctx context.Context, user, venueName, symbol string) error {
	f.deleted = append(f.deleted, user+"/"+venueName+"/"+symbol)
	return nil
}
func (f *fakeStore) InsertTrade(ctx context.Context, rec store.TradeRecord) error {
	f.trades = append(f.trades, rec)
	return nil
}

type fakeNotifier struct{ sent []notify.Kind }

func (f *fakeNotifier) Send(ctx context.Context, user string, kind notify.Kind, message string) {
	f.sent = append(f.sent, kind)
}

type fakeResolver struct{ adapter venue.Adapter }

func (f *fakeResolver) Resolve(ctx context.Context, user, venueName string) (venue.Adapter, error) {
	return f.adapter, nil
}

func alwaysOpenPolicy() settings.Policy {
	return settings.Policy{
		DefaultPositionSizeUSDPercent: 10,
		DefaultStopLossPercent:        2,
		DefaultTakeProfitPercent:      4,
		Window:                        settings.TradingWindow{},
		MaxOpenPositions:              5,
	}
}

type harness struct {
	exec     *Executor
	adapter  *paper.Adapter
	risk     *fakeRisk
	settings *fakeSettings
	ml       *fakeML
	strategy *fakeStrategies
	store    *fakeStore
	notifier *fakeNotifier
	tracker  *position.Tracker
}

func newHarness() *harness {
	adapter := paper.New(money.MustNew("20000"), money.MustNew("100000"))
	h := &harness{
		adapter:  adapter,
		risk:     &fakeRisk{allowed: true},
		settings: &fakeSettings{policy: alwaysOpenPolicy()},
		ml:       &fakeML{approved: true},
		strategy: &fakeStrategies{assisted: false},
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
		tracker:  position.New(),
	}
	h.exec = New(&fakeResolver{adapter: adapter}, h.tracker, h.settings, h.risk, h.ml, h.strategy, h.store, h.notifier, Config{ReversalSettleDelay: time.Millisecond})
	return h
}

func buyIntent(user, venueName, symbol string) intent.Intent {
	return intent.Intent{User: user, Venue: venueName, Action: intent.ActionBuy, Symbol: symbol, OrderType: intent.OrderTypeMarket, SellPercentage: 100}
}

var _ = Describe("Trade Executor", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("treats a same-side intent into an existing position as an idempotent skip", func() {
		h := newHarness()
		in := buyIntent("u1", "paper", "BTCUSDT")

		first, err := h.exec.Execute(ctx, in)
		Expect(err).To(BeNil())
		Expect(first.Action).To(Equal("opened"))

		second, err := h.exec.Execute(ctx, in)
		Expect(err).To(BeNil())
		Expect(second.Success).To(BeFalse())
		Expect(second.Action).To(Equal("skipped"))
		Expect(second.Reason).To(Equal("already open"))
	})

	It("closes the existing position and opens the opposite side on a reversal", func() {
		h := newHarness()
		buy := buyIntent("u1", "paper", "BTCUSDT")
		_, err := h.exec.Execute(ctx, buy)
		Expect(err).To(BeNil())

		sell := buy
		sell.Action = intent.ActionSell
		sell.HasStopLoss, sell.StopLossPercent = true, 1.5
		sell.HasTakeProfit, sell.TakeProfitPercent = true, 3

		res, err := h.exec.Execute(ctx, sell)
		Expect(err).To(BeNil())
		Expect(res.Success).To(BeTrue())
		Expect(res.Action).To(Equal("reversed"))

		live, err := h.adapter.GetPosition(ctx, "BTCUSDT")
		Expect(err).To(BeNil())
		Expect(live.Side).To(Equal(venue.SideShort))

		Expect(h.store.trades).To(HaveLen(1))
		Expect(h.store.trades[0].ExitReason).To(Equal("reversal"))
	})

	It("closes only the requested fraction on a partial close", func() {
		h := newHarness()
		buy := buyIntent("u1", "paper", "BTCUSDT")
		buy.HasPositionSize, buy.PositionSizeUSD = true, money.MustNew("400") // 0.02 BTCUSDT @ 20000
		_, err := h.exec.Execute(ctx, buy)
		Expect(err).To(BeNil())

		closeIn := buy
		closeIn.Action = intent.ActionClose
		closeIn.SellPercentage = 25

		res, err := h.exec.Execute(ctx, closeIn)
		Expect(err).To(BeNil())
		Expect(res.Action).To(Equal("closed"))

		live, err := h.adapter.GetPosition(ctx, "BTCUSDT")
		Expect(err).To(BeNil())
		Expect(live.Quantity.String()).To(Equal(money.MustNew("0.015").String()))

		tracked, ok := h.tracker.Get(position.Key{User: "u1", Venue: "paper", Symbol: "BTCUSDT"})
		Expect(ok).To(BeTrue())
		Expect(tracked.Quantity.String()).To(Equal(money.MustNew("0.015").String()))

		Expect(h.store.trades).To(HaveLen(1))
		Expect(h.store.deleted).To(BeEmpty())
	})

	It("denies the trade and notifies when the risk engine is over the weekly limit", func() {
		h := newHarness()
		h.risk.allowed = false
		h.risk.reason = "weekly trade limit reached (5/5)"

		res, err := h.exec.Execute(ctx, buyIntent("u1", "paper", "BTCUSDT"))
		Expect(err).To(BeNil())
		Expect(res.Success).To(BeFalse())
		Expect(res.Action).To(Equal("denied"))
		Expect(res.Reason).To(Equal(h.risk.reason))
		Expect(h.notifier.sent).To(ContainElement(notify.KindLimitBreach))
	})

	It("blocks an ML-assisted strategy signal below the confidence threshold", func() {
		h := newHarness()
		h.strategy.assisted = true
		h.ml.approved = false
		h.ml.reason = "confidence 0.31 below threshold 0.6"

		in := buyIntent("u1", "paper", "BTCUSDT")
		in.StrategyID = "strat-1"

		res, err := h.exec.Execute(ctx, in)
		Expect(err).To(BeNil())
		Expect(res.Success).To(BeFalse())
		Expect(res.Action).To(Equal("blocked"))
		Expect(h.notifier.sent).To(ContainElement(notify.KindMLBlock))

		_, tracked := h.tracker.Get(position.Key{User: "u1", Venue: "paper", Symbol: "BTCUSDT"})
		Expect(tracked).To(BeFalse())
	})

	It("rejects a buy/sell intent outside the configured trading window", func() {
		h := newHarness()
		nowMinute := time.Now().UTC().Hour()*60 + time.Now().UTC().Minute()
		farStart := (nowMinute + 120) % 1440
		farEnd := (farStart + 1) % 1440
		h.settings.policy.Window = settings.TradingWindow{StartMinuteUTC: farStart, EndMinuteUTC: farEnd}

		res, err := h.exec.Execute(ctx, buyIntent("u1", "paper", "BTCUSDT"))
		Expect(err).To(BeNil())
		Expect(res.Action).To(Equal("rejected"))
		Expect(res.Reason).To(Equal("OUTSIDE_WINDOW"))
	})

	It("auto-closes a tracked position once its window closes with auto_close_outside_window set", func() {
		h := newHarness()
		_, err := h.exec.Execute(ctx, buyIntent("u1", "paper", "BTCUSDT"))
		Expect(err).To(BeNil())

		nowMinute := time.Now().UTC().Hour()*60 + time.Now().UTC().Minute()
		farStart := (nowMinute + 120) % 1440
		farEnd := (farStart + 1) % 1440
		h.settings.policy.Window = settings.TradingWindow{StartMinuteUTC: farStart, EndMinuteUTC: farEnd}
		h.settings.policy.AutoCloseOutsideWindow = true

		h.exec.SweepTradingWindows(ctx)

		_, tracked := h.tracker.Get(position.Key{User: "u1", Venue: "paper", Symbol: "BTCUSDT"})
		Expect(tracked).To(BeFalse())
		Expect(h.store.trades).To(HaveLen(1))
		Expect(h.store.trades[0].ExitReason).To(Equal("auto_close_window"))
	})

	It("leaves a tracked position open across a closed window when auto-close is not enabled", func() {
		h := newHarness()
		_, err := h.exec.Execute(ctx, buyIntent("u1", "paper", "BTCUSDT"))
		Expect(err).To(BeNil())

		nowMinute := time.Now().UTC().Hour()*60 + time.Now().UTC().Minute()
		farStart := (nowMinute + 120) % 1440
		farEnd := (farStart + 1) % 1440
		h.settings.policy.Window = settings.TradingWindow{StartMinuteUTC: farStart, EndMinuteUTC: farEnd}

		h.exec.SweepTradingWindows(ctx)

		_, tracked := h.tracker.Get(position.Key{User: "u1", Venue: "paper", Symbol: "BTCUSDT"})
		Expect(tracked).To(BeTrue())
		Expect(h.store.trades).To(BeEmpty())
	})
})
