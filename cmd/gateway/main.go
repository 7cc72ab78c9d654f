// Command gateway is the trade-gateway's entrypoint: it wires every
// package into a running process and serves the webhook intake plus the
// AI signal worker, the way the teacher's main.go wires one broker and
// one trader into a live loop plus a /healthz+/metrics HTTP server.
//
// Boot sequence:
//  1. config.New()        - .env + config.yaml + env overrides
//  2. store.New()         - MySQL connection, auto-migrated schema
//  3. venue.NewRegistry()  - adapter factories for every supported venue
//  4. settings/risk/mlclient/llmclient/notify - the executor's dependencies
//  5. executor.New()      - the shared execute path
//  6. webhook.New()       - the external HTTP intake
//  7. aiworker.New()      - the background signal loop, started in a goroutine
//  8. one http.Server carrying webhook routes, /metrics, and /healthz
//  9. graceful shutdown on SIGINT/SIGTERM, mirroring the teacher's pattern
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chidi150c/tradegateway/internal/aiworker"
	"github.com/chidi150c/tradegateway/internal/config"
	"github.com/chidi150c/tradegateway/internal/executor"
	"github.com/chidi150c/tradegateway/internal/llmclient"
	"github.com/chidi150c/tradegateway/internal/mlclient"
	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/notify"
	"github.com/chidi150c/tradegateway/internal/position"
	"github.com/chidi150c/tradegateway/internal/risk"
	"github.com/chidi150c/tradegateway/internal/settings"
	"github.com/chidi150c/tradegateway/internal/store"
	"github.com/chidi150c/tradegateway/internal/venue"
	"github.com/chidi150c/tradegateway/internal/venue/binance"
	"github.com/chidi150c/tradegateway/internal/venue/coinbase"
	"github.com/chidi150c/tradegateway/internal/venue/hitbtc"
	"github.com/chidi150c/tradegateway/internal/venue/oauthfx"
	"github.com/chidi150c/tradegateway/internal/venue/paper"
	"github.com/chidi150c/tradegateway/internal/venue/predictionmarket"
	"github.com/chidi150c/tradegateway/internal/webhook"
)

func main() {
	var configFile string
	var watch bool
	flag.StringVar(&configFile, "config", "config.yaml", "path to config.yaml (optional)")
	flag.BoolVar(&watch, "watch-config", true, "live-reload config.yaml on change")
	flag.Parse()

	cfgLoader, err := config.New(configFile)
	if err != nil {
		log.Fatalf("gateway: load config: %v", err)
	}
	if watch {
		cfgLoader.WatchForChanges()
	}
	cfg := cfgLoader.Current()

	st, err := store.New(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("gateway: connect store: %v", err)
	}
	defer st.Close()

	registry := venue.NewRegistry(st, 512)
	registerVenueFactories(registry, cfg)

	tracker := position.New()
	settingsSvc := settings.New(st, 30*time.Second)
	riskEngine := risk.NewEngine(nil, st, 15*time.Second)
	ml := mlclient.New(cfg.ML.BaseURL, time.Duration(cfg.ML.TimeoutSeconds)*time.Second)
	llm := llmclient.New(cfg.LLM.BaseURL, time.Duration(cfg.LLM.TimeoutSeconds)*time.Second)

	notifier, err := notify.New(cfg.Notify.TelegramBotToken, notify.StaticChatIDs(cfg.Notify.ChatIDs), st)
	if err != nil {
		log.Fatalf("gateway: init notifier: %v", err)
	}

	exec := executor.New(registry, tracker, settingsSvc, riskEngine, ml, st, st, notifier, executor.Config{})

	webhookSrv := webhook.New(st, st, exec, tracker, registry, webhook.Config{
		RatePerSecond: cfg.Webhook.RatePerSecond, Burst: cfg.Webhook.Burst,
	})

	worker := aiworker.New(registry, st, exec, ml, llm, aiworker.Config{
		Interval:                 time.Duration(cfg.AIWorker.IntervalSeconds) * time.Second,
		PerStrategySymbolTimeout: time.Duration(cfg.AIWorker.PerStrategySymbolTimeoutSeconds) * time.Second,
		CandleLookback:           cfg.AIWorker.CandleLookback,
	})

	mux := http.NewServeMux()
	webhookSrv.Routes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Webhook.Port), Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go worker.Run(ctx)
	go runTradingWindowSweep(ctx, exec)

	go func() {
		log.Printf("gateway: serving webhook/health/metrics on :%d", cfg.Webhook.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("gateway: http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("gateway: shutting down")

	shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}

// runTradingWindowSweep force-closes positions left open past a trading
// window that opted into auto_close_outside_window, on the same cadence
// as the teacher's periodic reconciliation tick.
func runTradingWindowSweep(ctx context.Context, exec *executor.Executor) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exec.SweepTradingWindows(ctx)
		}
	}
}

// mustAmount parses raw, falling back to def on an empty or malformed
// value — the paper adapter's starting price/balance are operator
// conveniences, not user-supplied trading parameters, so a bad value
// degrades to a sane default instead of failing venue resolution.
func mustAmount(raw, def string) money.Amount {
	if raw == "" {
		raw = def
	}
	a, err := money.New(raw)
	if err != nil {
		a, _ = money.New(def)
	}
	return a
}

// registerVenueFactories binds every supported venue name to the Factory
// that turns a stored Credential into a live adapter, translating the
// credential's opaque Payload map into each adapter's typed Config.
func registerVenueFactories(registry *venue.Registry, cfg config.Config) {
	registry.RegisterFactory("paper", func(cred venue.Credential) (venue.Adapter, error) {
		return paper.New(mustAmount(cred.Payload["start_price"], "100"), mustAmount(cred.Payload["start_balance"], "10000")), nil
	})
	registry.RegisterFactory("binance", func(cred venue.Credential) (venue.Adapter, error) {
		return binance.New(binance.Config{APIKey: cred.Payload["api_key"], APISecret: cred.Payload["api_secret"]})
	})
	registry.RegisterFactory("coinbase", func(cred venue.Credential) (venue.Adapter, error) {
		return coinbase.New(coinbase.Config{
			APIBase: cred.Payload["api_base"], KeyName: cred.Payload["key_name"],
			PrivateKeyPEM: cred.Payload["private_key_pem"], BearerToken: cred.Payload["bearer_token"],
		})
	})
	registry.RegisterFactory("hitbtc", func(cred venue.Credential) (venue.Adapter, error) {
		return hitbtc.New(hitbtc.Config{
			APIBase: cred.Payload["api_base"], Login: cred.Payload["login"], Password: cred.Payload["password"],
		})
	})
	registry.RegisterFactory("oauthfx", func(cred venue.Credential) (venue.Adapter, error) {
		return oauthfx.New(oauthfx.Config{
			APIBase: cred.Payload["api_base"], ClientID: cred.Payload["client_id"],
			ClientSecret: cred.Payload["client_secret"], RefreshToken: cred.Payload["refresh_token"],
			TokenURL: cred.Payload["token_url"],
		})
	})
	registry.RegisterFactory("predictionmarket", func(cred venue.Credential) (venue.Adapter, error) {
		chainID := int64(0)
		fmt.Sscanf(cred.Payload["chain_id"], "%d", &chainID)
		return predictionmarket.New(predictionmarket.Config{
			PrivateKeyHex: cred.Payload["private_key_hex"], RelayURL: cred.Payload["relay_url"],
			StreamURL: cred.Payload["stream_url"], ChainID: chainID,
			VerifyingContract: cred.Payload["verifying_contract"],
		})
	})
}
