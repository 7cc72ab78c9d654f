// Package store is the persistence layer for the opaque relational
// service (spec.md §4.9): GORM models for every row-level, user-scoped
// table the gateway reads and writes, behind the Client type (which
// satisfies each consumer's own narrow interface) so the
// executor, risk engine, settings service, and AI worker never import
// gorm.io/gorm directly. Modeled on the teacher's MySQLRecorder pattern
// (ChoSanghyuk-blackholedex's internal/db/transaction_recorder.go) —
// GORM model structs with a TableName() override and a thin recorder on
// top — generalized from one append-only snapshot table to the gateway's
// full schema.
package store

import (
	"strings"
	"time"
)

// PositionRecord mirrors the position tracker's durable view of an open
// position, for recovery after a process restart.
type PositionRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	User            string    `gorm:"index:idx_pos_user_venue_symbol,unique;not null"`
	Venue           string    `gorm:"index:idx_pos_user_venue_symbol,unique;not null"`
	Symbol          string    `gorm:"index:idx_pos_user_venue_symbol,unique;not null"`
	Side            string    `gorm:"not null"`
	Quantity        string    `gorm:"type:varchar(64);not null"`
	EntryPrice      string    `gorm:"type:varchar(64);not null"`
	StopLossOrderID string    `gorm:"type:varchar(128)"`
	TakeProfitOrderID string  `gorm:"type:varchar(128)"`
	StrategyID      string    `gorm:"index"`
	OpenedAt        time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

func (PositionRecord) TableName() string { return "positions" }

// TradeRecord is one completed (closed) trade, the unit the risk engine
// aggregates into weekly counters.
type TradeRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	User        string    `gorm:"index:idx_trade_user_venue;not null"`
	Venue       string    `gorm:"index:idx_trade_user_venue;not null"`
	Symbol      string    `gorm:"not null"`
	Side        string    `gorm:"not null"`
	Quantity    string    `gorm:"type:varchar(64);not null"`
	EntryPrice  string    `gorm:"type:varchar(64);not null"`
	ExitPrice   string    `gorm:"type:varchar(64);not null"`
	PnLUSD      string    `gorm:"type:varchar(64);not null"`
	ExitReason  string    `gorm:"index;not null"`
	OpenedAt    time.Time `gorm:"not null"`
	ClosedAt    time.Time `gorm:"index;not null"`
	Source      string    `gorm:"not null"` // webhook | ai_engine
	StrategyID  string
}

func (TradeRecord) TableName() string { return "trades" }

// StrategyRecord is a user's registered strategy (webhook secret owner,
// or an AI-worker-managed strategy).
type StrategyRecord struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement"`
	User                string    `gorm:"index;not null"`
	Name                string    `gorm:"not null"`
	SecretHash          string    `gorm:"not null"` // HMAC/secret never stored in cleartext
	Active              bool      `gorm:"not null;default:true"`
	MLAssisted          bool      `gorm:"not null;default:false"`
	PositionSizePercent float64   // spec.md §4.6 step 1 "strategy's configured default"; 0 means unset
	CreatedAt           time.Time `gorm:"autoCreateTime"`
}

func (StrategyRecord) TableName() string { return "strategies" }

// ExchangeSettingsRecord is the settings service's durable policy row.
type ExchangeSettingsRecord struct {
	ID                            uint   `gorm:"primaryKey;autoIncrement"`
	User                          string `gorm:"index:idx_settings_user_venue,unique;not null"`
	Venue                         string `gorm:"index:idx_settings_user_venue,unique;not null"`
	DefaultPositionSizeUSDPercent float64
	DefaultStopLossPercent        float64
	DefaultTakeProfitPercent      float64
	WindowStartMinuteUTC          int
	WindowEndMinuteUTC            int
	WindowPreset                  string `gorm:"type:varchar(32)"` // e.g. "london_session"; "" means custom/unset
	WindowTimezone                string `gorm:"type:varchar(64)"` // IANA zone the preset/window was authored in; display only, window math stays UTC
	AutoCloseOutsideWindow        bool
	MaxOpenPositions              int
	MaxWeeklyTrades               int
	MaxWeeklyLossUSD              string `gorm:"type:varchar(64)"`
	UpdatedAt                     time.Time `gorm:"autoUpdateTime"`
}

func (ExchangeSettingsRecord) TableName() string { return "trade_settings_exchange" }

// WebhookSecretRecord is the one shared secret a user's webhook sender
// must present, stored hashed so a store breach doesn't hand out live
// secrets (spec.md §4.7).
type WebhookSecretRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	User       string `gorm:"index;unique;not null"`
	SecretHash string `gorm:"not null"`
}

func (WebhookSecretRecord) TableName() string { return "webhook_secrets" }

// WebhookRequestRecord is one inbound webhook call's audit row, moving
// through pending -> accepted|rejected -> executed|failed as the
// executor processes it (spec.md §4.7).
type WebhookRequestRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	User        string    `gorm:"index;not null"`
	Venue       string    `gorm:"not null"`
	Symbol      string    `gorm:"not null"`
	RawBody     string    `gorm:"type:text;not null"`
	Status      string    `gorm:"index;not null"` // pending|accepted|rejected|executed|failed
	FailureNote string    `gorm:"type:text"`
	ReceivedAt  time.Time `gorm:"index;not null"`
	ProcessedAt *time.Time
}

func (WebhookRequestRecord) TableName() string { return "webhook_requests" }

// NotificationRecord is a one-shot outbound notification (spec.md §4.10).
type NotificationRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	User      string    `gorm:"index;not null"`
	Kind      string    `gorm:"not null"` // limit_breach|ml_block|trade_outcome
	Message   string    `gorm:"type:text;not null"`
	SentAt    time.Time `gorm:"not null"`
	Delivered bool      `gorm:"not null"`
}

func (NotificationRecord) TableName() string { return "notifications" }

// NotificationPreferenceRecord is a user's opt-in/out per notification
// kind, checked before the notification transport fires.
type NotificationPreferenceRecord struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	User    string `gorm:"index:idx_notifpref_user_kind,unique;not null"`
	Kind    string `gorm:"index:idx_notifpref_user_kind,unique;not null"`
	Enabled bool   `gorm:"not null;default:true"`
}

func (NotificationPreferenceRecord) TableName() string { return "notification_preferences" }

// AIStrategyRecord is an AI-worker-managed strategy's configuration
// (spec.md §6's ai_strategies contract, plus the routing/sizing knobs
// §4.8.2 needs at evaluation time).
type AIStrategyRecord struct {
	ID                  uint   `gorm:"primaryKey;autoIncrement"`
	User                string `gorm:"index;not null"`
	Venue               string `gorm:"not null"`
	Name                string `gorm:"not null"`
	Status              string `gorm:"not null;default:running"` // running|paused|backtesting|terminated
	RiskProfile         string
	TargetSymbols       string `gorm:"type:text"` // comma-separated; empty means no whitelist restriction
	BlacklistSymbols    string `gorm:"type:text"`
	MaxDrawdownPercent  float64
	LeverageMax         float64
	IsPaperTrading      bool `gorm:"not null;default:true"`
	ConfidenceThreshold float64
	MLRoutePercent      int `gorm:"not null;default:70"` // spec.md §4.8.2c "routing mix (e.g. 60/40)"
	PositionSizePercent float64
	Active              bool `gorm:"not null;default:true"`
	Blacklisted         bool `gorm:"not null;default:false"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
}

func (AIStrategyRecord) TableName() string { return "ai_strategies" }

// Symbols returns TargetSymbols split on commas, trimmed, skipping
// empties. An empty result means "no whitelist restriction" per
// spec.md §4.8 step 2.
func (r AIStrategyRecord) Symbols() []string { return splitCSV(r.TargetSymbols) }

// Blacklist returns BlacklistSymbols split the same way.
func (r AIStrategyRecord) Blacklist() []string { return splitCSV(r.BlacklistSymbols) }

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// AITradeDecisionRecord persists one AI-worker evaluation tick, whether
// or not it produced a trade (spec.md §4.8.2, §6's ai_trade_decisions
// contract).
type AITradeDecisionRecord struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement"`
	User                string    `gorm:"index;not null"`
	StrategyID          uint      `gorm:"index;not null"`
	Symbol              string    `gorm:"not null"`
	EvaluatedAt         time.Time `gorm:"index;not null"`
	MarketSnapshot      string    `gorm:"type:json"`
	Action              string    `gorm:"not null"` // buy|sell|hold|close
	Confidence          float64
	Reasoning           string `gorm:"type:text"`
	TechnicalIndicators string `gorm:"type:json"` // indicators.FeatureVector snapshot, JSON-encoded
	ModelID             string
	Executed            bool `gorm:"not null;default:false"`
	PnL1h               *float64
	PnL24h              *float64
}

func (AITradeDecisionRecord) TableName() string { return "ai_trade_decisions" }
