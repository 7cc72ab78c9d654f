// Package config is the gateway's configuration loader, generalized
// from the teacher's env.go/config.go pair: a .env bootstrap plus a
// typed Config struct populated from the process environment. The
// teacher's hand-rolled line scanner (loadBotEnv) is replaced by
// github.com/joho/godotenv (the same library ChoSanghyuk-blackholedex
// and yohannesjx-sniperterminal reach for), and the teacher's flat
// getEnv*/Config pair is replaced by github.com/spf13/viper (the way
// 0xtitan6-polymarket-mm layers structured config), which binds env
// vars over an optional config.yaml and can live-reload operational
// knobs via fsnotify. Call sites read typed fields on the Config
// snapshot that Loader.Current returns, not viper.Get scattered
// through the codebase.
package config

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database holds the opaque relational store's connection settings
// (spec.md §4.9).
type Database struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Venue holds one venue adapter's bridge/credential endpoint.
type Venue struct {
	BridgeURL string
	APIKey    string
	APISecret string
}

// ML holds the ML validation/prediction service endpoint (spec.md
// §4.5, §4.8.2c).
type ML struct {
	BaseURL        string
	TimeoutSeconds int
}

// LLM holds the LLM decision-endpoint configuration (spec.md §4.8.2d).
type LLM struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// Webhook holds the intake server's rate-limit and listen settings
// (spec.md §4.7).
type Webhook struct {
	Port          int
	RatePerSecond float64
	Burst         int
}

// AIWorker holds the background signal loop's cadence (spec.md §4.8).
type AIWorker struct {
	IntervalSeconds                 int
	PerStrategySymbolTimeoutSeconds int
	CandleLookback                  int
}

// Notify holds the outbound notification transport's settings
// (spec.md §4.10).
type Notify struct {
	TelegramBotToken string
	ChatIDs          map[string]int64
}

// Config is the gateway's full runtime configuration.
type Config struct {
	Database Database
	Webhook  Webhook
	AIWorker AIWorker
	ML       ML
	LLM      LLM
	Notify   Notify
	Venues   map[string]Venue

	MetricsPort int
}

// Loader wraps a *viper.Viper so the rest of the codebase reads typed
// Config fields through Current instead of calling viper.Get directly;
// a live reload replaces the snapshot Current returns.
type Loader struct {
	v  *viper.Viper
	mu sync.RWMutex
	c  Config
}

// New bootstraps .env (if present), then builds a Loader bound to an
// optional config.yaml at path, with GATEWAY_-prefixed environment
// variables overriding file values.
func New(path string) (*Loader, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file found, relying on process environment: %v", err)
	}

	v := viper.New()
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Printf("config: no config file at %s, using environment and defaults: %v", path, err)
		}
	}

	l := &Loader{v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime_seconds", 300)
	v.SetDefault("webhook.port", 8080)
	v.SetDefault("webhook.rate_per_second", 20.0)
	v.SetDefault("webhook.burst", 40)
	v.SetDefault("aiworker.interval_seconds", 45)
	v.SetDefault("aiworker.per_strategy_symbol_timeout_seconds", 10)
	v.SetDefault("aiworker.candle_lookback", 100)
	v.SetDefault("ml.timeout_seconds", 5)
	v.SetDefault("llm.timeout_seconds", 15)
	v.SetDefault("metrics_port", 9090)
}

func (l *Loader) reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c = Config{
		Database: Database{
			DSN:             l.v.GetString("database.dsn"),
			MaxOpenConns:    l.v.GetInt("database.max_open_conns"),
			MaxIdleConns:    l.v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: time.Duration(l.v.GetInt("database.conn_max_lifetime_seconds")) * time.Second,
		},
		Webhook: Webhook{
			Port:          l.v.GetInt("webhook.port"),
			RatePerSecond: l.v.GetFloat64("webhook.rate_per_second"),
			Burst:         l.v.GetInt("webhook.burst"),
		},
		AIWorker: AIWorker{
			IntervalSeconds:                 l.v.GetInt("aiworker.interval_seconds"),
			PerStrategySymbolTimeoutSeconds: l.v.GetInt("aiworker.per_strategy_symbol_timeout_seconds"),
			CandleLookback:                  l.v.GetInt("aiworker.candle_lookback"),
		},
		ML: ML{
			BaseURL:        l.v.GetString("ml.base_url"),
			TimeoutSeconds: l.v.GetInt("ml.timeout_seconds"),
		},
		LLM: LLM{
			BaseURL:        l.v.GetString("llm.base_url"),
			APIKey:         l.v.GetString("llm.api_key"),
			Model:          l.v.GetString("llm.model"),
			TimeoutSeconds: l.v.GetInt("llm.timeout_seconds"),
		},
		Notify: Notify{
			TelegramBotToken: l.v.GetString("notify.telegram_bot_token"),
			ChatIDs:          map[string]int64{},
		},
		MetricsPort: l.v.GetInt("metrics_port"),
	}
	for user, raw := range l.v.GetStringMap("notify.chat_ids") {
		switch v := raw.(type) {
		case int64:
			l.c.Notify.ChatIDs[user] = v
		case int:
			l.c.Notify.ChatIDs[user] = int64(v)
		case float64:
			l.c.Notify.ChatIDs[user] = int64(v)
		}
	}
	l.c.Venues = map[string]Venue{}
	for name, raw := range l.v.GetStringMap("venues") {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		l.c.Venues[name] = Venue{
			BridgeURL: toString(m["bridge_url"]),
			APIKey:    toString(m["api_key"]),
			APISecret: toString(m["api_secret"]),
		}
	}
	return nil
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

// Current returns a snapshot of the live configuration.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.c
}

// WatchForChanges re-reads config.yaml on edits so later Current calls
// see the new values, logging and ignoring a reload error rather than
// crashing the process. Components already built from an earlier
// snapshot (cmd/gateway builds the AI worker and its clients once at
// boot) keep the values they were built with.
func (l *Loader) WatchForChanges() {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("config: reloading after change to %s", e.Name)
		if err := l.reload(); err != nil {
			log.Printf("config: reload failed, keeping previous values: %v", err)
		}
	})
	l.v.WatchConfig()
}
