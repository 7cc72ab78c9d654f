package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/venue"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	mock.MatchExpectationsInOrder(false)
	mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Client{db: gormDB}, mock
}

func TestGetCredentialNotFound(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery("SELECT \\* FROM `venue_credentials`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user", "venue", "payload", "version"}))

	_, err := c.GetCredential(context.Background(), "alice", "coinbase")
	assert.ErrorIs(t, err, venue.ErrNoCredentials)
}

func TestGetCredentialFound(t *testing.T) {
	c, mock := newMockClient(t)
	rows := sqlmock.NewRows([]string{"id", "user", "venue", "payload", "version"}).
		AddRow(1, "alice", "coinbase", "ciphertext", 3)
	mock.ExpectQuery("SELECT \\* FROM `venue_credentials`").WillReturnRows(rows)

	cred, err := c.GetCredential(context.Background(), "alice", "coinbase")
	require.NoError(t, err)
	assert.Equal(t, 3, cred.Version)
	assert.Equal(t, "ciphertext", cred.Payload["raw"])
}

func TestStrategySizePercentReturnsZeroForBlankID(t *testing.T) {
	c, _ := newMockClient(t)
	pct, err := c.StrategySizePercent(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, pct)
}

func TestStrategySizePercentReturnsConfiguredValue(t *testing.T) {
	c, mock := newMockClient(t)
	rows := sqlmock.NewRows([]string{"id", "name", "position_size_percent"}).
		AddRow(1, "strat-1", 7.5)
	mock.ExpectQuery("SELECT \\* FROM `strategies`").WillReturnRows(rows)

	pct, err := c.StrategySizePercent(context.Background(), "strat-1")
	require.NoError(t, err)
	assert.Equal(t, 7.5, pct)
}

func TestStrategySizePercentReturnsZeroWhenNotFound(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery("SELECT \\* FROM `strategies`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "position_size_percent"}))

	pct, err := c.StrategySizePercent(context.Background(), "strat-missing")
	require.NoError(t, err)
	assert.Equal(t, 0.0, pct)
}

func TestGetCountersSumsOnlyLosses(t *testing.T) {
	c, mock := newMockClient(t)
	rows := sqlmock.NewRows([]string{"id", "user", "venue", "symbol", "side", "quantity", "entry_price", "exit_price", "pn_l_usd", "exit_reason", "opened_at", "closed_at", "source", "strategy_id"}).
		AddRow(1, "alice", "paper", "BTC-USD", "long", "1", "100", "90", "-10", "stop_loss", time.Now(), time.Now(), "webhook", "").
		AddRow(2, "alice", "paper", "ETH-USD", "long", "1", "100", "110", "10", "take_profit", time.Now(), time.Now(), "webhook", "")
	mock.ExpectQuery("SELECT \\* FROM `trades`").WillReturnRows(rows)

	counters, err := c.GetCounters(context.Background(), "alice", "paper", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, counters.WeeklyTrades)
	assert.True(t, counters.WeeklyLossUSD.Equal(money.MustNew("10")))
}

func TestNotificationEnabledDefaultsTrue(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery("SELECT \\* FROM `notification_preferences`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user", "kind", "enabled"}))

	enabled, err := c.NotificationEnabled(context.Background(), "alice", "trade_outcome")
	require.NoError(t, err)
	assert.True(t, enabled)
}
