package webhook

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/segmentio/encoding/json"

	"github.com/chidi150c/tradegateway/internal/executor"
	"github.com/chidi150c/tradegateway/internal/intent"
)

type fakeSecrets struct{ hash string }

func (f *fakeSecrets) WebhookSecretHash(ctx context.Context, user string) (string, error) {
	return f.hash, nil
}

type fakeLog struct {
	inserted []string
	statuses []string
}

func (f *fakeLog) InsertWebhookRequest(ctx context.Context, user, venueName, symbol, rawBody string) (uint, error) {
	f.inserted = append(f.inserted, user+"/"+venueName+"/"+symbol)
	return uint(len(f.inserted)), nil
}
func (f *fakeLog) UpdateWebhookRequestStatus(ctx context.Context, id uint, status, failureNote string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeExec struct {
	result executor.Result
	err    error
	got    intent.Intent
}

func (f *fakeExec) Execute(ctx context.Context, in intent.Intent) (executor.Result, error) {
	f.got = in
	return f.result, f.err
}

func newTestServer(secretHash string, exec *fakeExec) (*Server, *fakeLog) {
	logger := &fakeLog{}
	srv := New(&fakeSecrets{hash: secretHash}, logger, exec, nil, nil, Config{})
	return srv, logger
}

func doWebhook(t *testing.T, srv *Server, user string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+user, bytes.NewReader(raw))
	req.SetPathValue("user", user)
	rr := httptest.NewRecorder()
	srv.handleWebhook(rr, req)
	return rr
}

func TestHandleWebhookRejectsWrongSecret(t *testing.T) {
	exec := &fakeExec{result: executor.Result{Success: true, Action: "opened"}}
	srv, logger := newTestServer(hashSecret("correct-secret"), exec)

	rr := doWebhook(t, srv, "u1", map[string]any{
		"secret": "wrong-secret", "exchange": "paper", "action": "buy", "symbol": "BTCUSDT",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if len(logger.inserted) != 1 {
		t.Fatalf("expected exactly one audit row even for a rejected request, got %d", len(logger.inserted))
	}
	if len(logger.statuses) != 1 || logger.statuses[0] != "rejected" {
		t.Fatalf("expected one rejected status update, got %+v", logger.statuses)
	}
}

func TestHandleWebhookNeverLeaksSecretInResponse(t *testing.T) {
	exec := &fakeExec{result: executor.Result{Success: true, Action: "opened"}}
	srv, _ := newTestServer(hashSecret("correct-secret"), exec)

	rr := doWebhook(t, srv, "u1", map[string]any{
		"secret": "correct-secret", "exchange": "paper", "action": "buy", "symbol": "BTCUSDT",
	})

	if bytes.Contains(rr.Body.Bytes(), []byte("correct-secret")) {
		t.Fatalf("response body leaked the secret: %s", rr.Body.String())
	}
}

func TestHandleWebhookNormalizesLongShortAndDispatches(t *testing.T) {
	exec := &fakeExec{result: executor.Result{Success: true, Action: "opened"}}
	srv, logger := newTestServer(hashSecret("s3cr3t"), exec)

	rr := doWebhook(t, srv, "u1", map[string]any{
		"secret": "s3cr3t", "exchange": "aster", "action": "long", "symbol": "btcusdt",
		"stop_loss_percent": 1.5, "takeProfit": 3.0,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
	if exec.got.Action != intent.ActionBuy {
		t.Fatalf("action = %q, want buy (long expanded)", exec.got.Action)
	}
	if exec.got.Symbol != "BTCUSDT" {
		t.Fatalf("symbol = %q, want BTCUSDT", exec.got.Symbol)
	}
	if !exec.got.HasStopLoss || exec.got.StopLossPercent != 1.5 {
		t.Fatalf("stop loss not normalized: %+v", exec.got)
	}
	if !exec.got.HasTakeProfit || exec.got.TakeProfitPercent != 3 {
		t.Fatalf("take profit alias (takeProfit) not folded: %+v", exec.got)
	}
	if len(logger.inserted) != 1 || len(logger.statuses) != 1 {
		t.Fatalf("expected exactly one audit row and one status update, got %+v / %+v", logger.inserted, logger.statuses)
	}
}

func TestHandleWebhookCoercesOutOfRangeSellPercentage(t *testing.T) {
	exec := &fakeExec{result: executor.Result{Success: true, Action: "closed"}}
	srv, _ := newTestServer(hashSecret("s3cr3t"), exec)

	rr := doWebhook(t, srv, "u1", map[string]any{
		"secret": "s3cr3t", "exchange": "aster", "action": "close", "symbol": "BTCUSDT",
		"sell_percentage": 250,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
	if exec.got.SellPercentage != 100 {
		t.Fatalf("sell_percentage = %v, want coerced to 100", exec.got.SellPercentage)
	}
}

func TestHandleWebhookRejectsMalformedBody(t *testing.T) {
	exec := &fakeExec{}
	srv, _ := newTestServer(hashSecret("s3cr3t"), exec)

	req := httptest.NewRequest(http.MethodPost, "/webhook/u1", bytes.NewReader([]byte("{not-json")))
	req.SetPathValue("user", "u1")
	rr := httptest.NewRecorder()
	srv.handleWebhook(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleWebhookRateLimited(t *testing.T) {
	exec := &fakeExec{result: executor.Result{Success: true, Action: "opened"}}
	logger := &fakeLog{}
	srv := New(&fakeSecrets{hash: hashSecret("s3cr3t")}, logger, exec, nil, nil, Config{RatePerSecond: 1, Burst: 1})

	body := map[string]any{"secret": "s3cr3t", "exchange": "paper", "action": "buy", "symbol": "BTCUSDT"}
	first := doWebhook(t, srv, "u1", body)
	second := doWebhook(t, srv, "u1", body)

	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
}

func TestHandleWebhookDeniedMapsTo429(t *testing.T) {
	exec := &fakeExec{result: executor.Result{Success: false, Action: "denied", Reason: "weekly trade limit reached (5/5)"}}
	srv, _ := newTestServer(hashSecret("s3cr3t"), exec)

	rr := doWebhook(t, srv, "u1", map[string]any{
		"secret": "s3cr3t", "exchange": "paper", "action": "buy", "symbol": "BTCUSDT",
	})

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 for a risk denial", rr.Code)
	}
}

func TestHandleHealthReportsUptimeAndOpenPositions(t *testing.T) {
	exec := &fakeExec{}
	srv, _ := newTestServer(hashSecret("s3cr3t"), exec)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.handleHealth(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var report HealthReport
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode health report: %v", err)
	}
	for _, field := range []string{`"uptime_seconds"`, `"open_positions"`} {
		if !bytes.Contains(rr.Body.Bytes(), []byte(field)) {
			t.Fatalf("health report missing %s: %s", field, rr.Body.String())
		}
	}
}
