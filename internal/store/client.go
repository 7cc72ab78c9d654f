package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/risk"
	"github.com/chidi150c/tradegateway/internal/settings"
	"github.com/chidi150c/tradegateway/internal/venue"
)

// Client is the gateway's one persistence dependency, implementing the
// narrow store interfaces each package declares (venue.CredentialStore,
// settings.Store, risk.Store) against a single underlying *gorm.DB, the
// way the teacher's MySQLRecorder wraps one *gorm.DB behind a handful of
// purpose-built methods rather than exposing the DB handle to callers.
type Client struct {
	db *gorm.DB
}

// New opens a MySQL connection via the given DSN and auto-migrates the
// full schema, mirroring NewMySQLRecorder's boot sequence.
func New(dsn string) (*Client, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect mysql: %w", err)
	}
	return newClientWithDB(db)
}

// NewWithDB wraps an already-open *gorm.DB, used by tests to inject a
// sqlmock-backed connection.
func NewWithDB(db *gorm.DB) (*Client, error) {
	return newClientWithDB(db)
}

func newClientWithDB(db *gorm.DB) (*Client, error) {
	if err := db.AutoMigrate(
		&PositionRecord{}, &TradeRecord{}, &StrategyRecord{},
		&ExchangeSettingsRecord{}, &WebhookSecretRecord{}, &WebhookRequestRecord{},
		&NotificationRecord{}, &NotificationPreferenceRecord{},
		&AIStrategyRecord{}, &AITradeDecisionRecord{},
	); err != nil {
		return nil, fmt.Errorf("store: automigrate: %w", err)
	}
	return &Client{db: db}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("store: get underlying db: %w", err)
	}
	return sqlDB.Close()
}

// --- venue.CredentialStore ---

// CredentialRecord is the encrypted-at-rest credential row; the gateway
// decrypts Payload before handing it to a venue.Factory. Encryption is
// out of this package's scope (spec.md §4.1 leaves key management to the
// opaque relational service), so Payload is stored as opaque ciphertext
// bytes here.
type CredentialRecord struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	User    string `gorm:"index:idx_cred_user_venue,unique;not null"`
	Venue   string `gorm:"index:idx_cred_user_venue,unique;not null"`
	Payload string `gorm:"type:text;not null"`
	Version int    `gorm:"not null;default:1"`
}

func (CredentialRecord) TableName() string { return "venue_credentials" }

func (c *Client) GetCredential(ctx context.Context, user, venueName string) (venue.Credential, error) {
	var rec CredentialRecord
	result := c.db.WithContext(ctx).Where("user = ? AND venue = ?", user, venueName).First(&rec)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return venue.Credential{}, venue.ErrNoCredentials
		}
		return venue.Credential{}, fmt.Errorf("store: get credential: %w", result.Error)
	}
	return venue.Credential{Venue: rec.Venue, Payload: map[string]string{"raw": rec.Payload}, Version: rec.Version}, nil
}

// --- webhook secret lookup ---

// WebhookSecretHash returns the stored secret hash for user, or
// venue.ErrNoCredentials-shaped emptiness (the zero string) when none is
// configured — callers reject the request rather than treating a missing
// row as "no secret required".
func (c *Client) WebhookSecretHash(ctx context.Context, user string) (string, error) {
	var rec WebhookSecretRecord
	result := c.db.WithContext(ctx).Where("user = ?", user).First(&rec)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", fmt.Errorf("store: get webhook secret: %w", result.Error)
	}
	return rec.SecretHash, nil
}

// --- strategy lookup (executor pre-dispatch guard) ---

// MLAssisted reports whether strategyID opted into ML-gated validation
// (spec.md §4.6 pre-dispatch guard step 1). An unknown strategy id is
// treated as not ML-assisted rather than an error, since a signal from a
// strategy the gateway has no record of should still reach the executor
// (the risk engine and settings service are the actual gatekeepers).
func (c *Client) MLAssisted(ctx context.Context, strategyID string) (bool, error) {
	if strategyID == "" {
		return false, nil
	}
	var rec StrategyRecord
	result := c.db.WithContext(ctx).Where("name = ?", strategyID).First(&rec)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, fmt.Errorf("store: get strategy: %w", result.Error)
	}
	return rec.MLAssisted, nil
}

// StrategySizePercent returns the strategy's configured default position
// size (spec.md §4.6 step 1's "strategy's configured default" sizing
// tier), or 0 if strategyID is unknown or has no size configured — the
// executor falls through to the venue's policy default in that case.
func (c *Client) StrategySizePercent(ctx context.Context, strategyID string) (float64, error) {
	if strategyID == "" {
		return 0, nil
	}
	var rec StrategyRecord
	result := c.db.WithContext(ctx).Where("name = ?", strategyID).First(&rec)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("store: get strategy: %w", result.Error)
	}
	return rec.PositionSizePercent, nil
}

// --- settings.Store ---

func (c *Client) GetPolicy(ctx context.Context, user, venueName string) (settings.Policy, error) {
	var rec ExchangeSettingsRecord
	result := c.db.WithContext(ctx).Where("user = ? AND venue = ?", user, venueName).First(&rec)
	if result.Error != nil {
		return settings.Policy{}, fmt.Errorf("store: get policy: %w", result.Error)
	}
	return settings.Policy{
		DefaultPositionSizeUSDPercent: rec.DefaultPositionSizeUSDPercent,
		DefaultStopLossPercent:        rec.DefaultStopLossPercent,
		DefaultTakeProfitPercent:      rec.DefaultTakeProfitPercent,
		Window: settings.TradingWindow{
			StartMinuteUTC: rec.WindowStartMinuteUTC,
			EndMinuteUTC:   rec.WindowEndMinuteUTC,
			Preset:         rec.WindowPreset,
			Timezone:       rec.WindowTimezone,
		},
		AutoCloseOutsideWindow: rec.AutoCloseOutsideWindow,
		MaxOpenPositions:       rec.MaxOpenPositions,
	}, nil
}

// --- risk.Store ---

func (c *Client) GetLimits(ctx context.Context, user, venueName string) (risk.Limits, error) {
	var rec ExchangeSettingsRecord
	result := c.db.WithContext(ctx).Where("user = ? AND venue = ?", user, venueName).First(&rec)
	if result.Error != nil {
		return risk.Limits{}, fmt.Errorf("store: get limits: %w", result.Error)
	}
	maxLoss := money.Zero
	if rec.MaxWeeklyLossUSD != "" {
		var err error
		maxLoss, err = money.New(rec.MaxWeeklyLossUSD)
		if err != nil {
			return risk.Limits{}, fmt.Errorf("store: parse max_weekly_loss_usd: %w", err)
		}
	}
	return risk.Limits{MaxWeeklyTrades: rec.MaxWeeklyTrades, MaxWeeklyLossUSD: maxLoss}, nil
}

func (c *Client) GetCounters(ctx context.Context, user, venueName string, weekStart time.Time) (risk.Counters, error) {
	var trades []TradeRecord
	result := c.db.WithContext(ctx).
		Where("user = ? AND venue = ? AND closed_at >= ?", user, venueName, weekStart).
		Find(&trades)
	if result.Error != nil {
		return risk.Counters{}, fmt.Errorf("store: get counters: %w", result.Error)
	}
	loss := money.Zero
	for _, t := range trades {
		pnl, err := money.New(t.PnLUSD)
		if err != nil {
			continue
		}
		if pnl.IsNegative() {
			loss = loss.Add(pnl.Abs())
		}
	}
	return risk.Counters{WeeklyTrades: len(trades), WeeklyLossUSD: loss, WeekStart: weekStart}, nil
}

// --- executor persistence (spec.md §4.6) ---

// UpsertPosition writes (or replaces) the durable row backing one
// tracked position, so a process restart can recover open positions
// without a full venue-wide reconciliation sweep.
func (c *Client) UpsertPosition(ctx context.Context, rec PositionRecord) error {
	result := c.db.WithContext(ctx).
		Where("user = ? AND venue = ? AND symbol = ?", rec.User, rec.Venue, rec.Symbol).
		Assign(rec).
		FirstOrCreate(&rec)
	if result.Error != nil {
		return fmt.Errorf("store: upsert position: %w", result.Error)
	}
	return nil
}

// DeletePosition removes the durable row after a full close.
func (c *Client) DeletePosition(ctx context.Context, user, venueName, symbol string) error {
	result := c.db.WithContext(ctx).
		Where("user = ? AND venue = ? AND symbol = ?", user, venueName, symbol).
		Delete(&PositionRecord{})
	if result.Error != nil {
		return fmt.Errorf("store: delete position: %w", result.Error)
	}
	return nil
}

// InsertTrade writes one completed trade row, the unit the risk engine
// aggregates into weekly counters via GetCounters.
func (c *Client) InsertTrade(ctx context.Context, rec TradeRecord) error {
	if result := c.db.WithContext(ctx).Create(&rec); result.Error != nil {
		return fmt.Errorf("store: insert trade: %w", result.Error)
	}
	return nil
}

// --- webhook request audit trail ---

// InsertWebhookRequest writes the initial pending row for an inbound
// webhook call and returns its id, for later status transitions.
func (c *Client) InsertWebhookRequest(ctx context.Context, user, venueName, symbol, rawBody string) (uint, error) {
	rec := WebhookRequestRecord{
		User: user, Venue: venueName, Symbol: symbol, RawBody: rawBody,
		Status: "pending", ReceivedAt: time.Now().UTC(),
	}
	if result := c.db.WithContext(ctx).Create(&rec); result.Error != nil {
		return 0, fmt.Errorf("store: insert webhook request: %w", result.Error)
	}
	return rec.ID, nil
}

// UpdateWebhookRequestStatus transitions a webhook request row to its
// terminal (or intermediate) status.
func (c *Client) UpdateWebhookRequestStatus(ctx context.Context, id uint, status, failureNote string) error {
	now := time.Now().UTC()
	result := c.db.WithContext(ctx).Model(&WebhookRequestRecord{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "failure_note": failureNote, "processed_at": &now})
	if result.Error != nil {
		return fmt.Errorf("store: update webhook request status: %w", result.Error)
	}
	return nil
}

// ListPositions returns every stored open position for (user, venueName),
// for the admin CLI's "positions" read-only inspection command.
func (c *Client) ListPositions(ctx context.Context, user, venueName string) ([]PositionRecord, error) {
	var out []PositionRecord
	result := c.db.WithContext(ctx).Where("user = ? AND venue = ?", user, venueName).Find(&out)
	if result.Error != nil {
		return nil, fmt.Errorf("store: list positions for %s/%s: %w", user, venueName, result.Error)
	}
	return out, nil
}

// GetWebhookRequest fetches one audit row by id, for the admin CLI's
// inspect command.
func (c *Client) GetWebhookRequest(ctx context.Context, id uint) (WebhookRequestRecord, error) {
	var rec WebhookRequestRecord
	result := c.db.WithContext(ctx).First(&rec, id)
	if result.Error != nil {
		return WebhookRequestRecord{}, fmt.Errorf("store: get webhook request %d: %w", id, result.Error)
	}
	return rec, nil
}

// --- AI worker persistence ---

// ActiveAIStrategies returns every non-blacklisted, active AI strategy.
func (c *Client) ActiveAIStrategies(ctx context.Context) ([]AIStrategyRecord, error) {
	var out []AIStrategyRecord
	result := c.db.WithContext(ctx).Where("active = ? AND blacklisted = ?", true, false).Find(&out)
	if result.Error != nil {
		return nil, fmt.Errorf("store: list active ai strategies: %w", result.Error)
	}
	return out, nil
}

// InsertAIDecision persists one AI-worker evaluation tick.
func (c *Client) InsertAIDecision(ctx context.Context, rec AITradeDecisionRecord) error {
	if result := c.db.WithContext(ctx).Create(&rec); result.Error != nil {
		return fmt.Errorf("store: insert ai decision: %w", result.Error)
	}
	return nil
}

// --- notifications ---

// NotificationEnabled reports whether user opted into notifications of
// kind, defaulting to enabled when no preference row exists.
func (c *Client) NotificationEnabled(ctx context.Context, user, kind string) (bool, error) {
	var rec NotificationPreferenceRecord
	result := c.db.WithContext(ctx).Where("user = ? AND kind = ?", user, kind).First(&rec)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return true, nil
		}
		return false, fmt.Errorf("store: get notification preference: %w", result.Error)
	}
	return rec.Enabled, nil
}

// InsertNotification records a sent (or attempted) notification.
func (c *Client) InsertNotification(ctx context.Context, user, kind, message string, delivered bool) error {
	rec := NotificationRecord{User: user, Kind: kind, Message: message, SentAt: time.Now().UTC(), Delivered: delivered}
	if result := c.db.WithContext(ctx).Create(&rec); result.Error != nil {
		return fmt.Errorf("store: insert notification: %w", result.Error)
	}
	return nil
}
