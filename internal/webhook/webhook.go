// Package webhook is the Webhook Intake (spec.md §4.7): the gateway's one
// externally-facing HTTP surface. It authenticates each request against a
// per-user shared secret with a constant-time compare, enforces a
// per-process rate limit via golang.org/x/time/rate, writes a pending
// audit row before doing anything else, normalizes the body into a
// canonical intent.Intent, and hands it to the trade executor —
// generalized from the teacher's main.go health-check mux
// (http.NewServeMux + http.Server) into a small router carrying four
// routes instead of one. JSON decode/encode on this hot path uses
// segmentio/encoding/json rather than encoding/json, the way
// NimbleMarkets-dbn-go reaches for a faster decoder on its own hot path.
package webhook

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	json "github.com/segmentio/encoding/json"
	"golang.org/x/time/rate"

	"github.com/chidi150c/tradegateway/internal/executor"
	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/metrics"
	"github.com/chidi150c/tradegateway/internal/position"
	"github.com/chidi150c/tradegateway/internal/venue"
)

// Executor is the narrow dependency the handler dispatches accepted
// intents to. Satisfied by *executor.Executor.
type Executor interface {
	Execute(ctx context.Context, in intent.Intent) (executor.Result, error)
}

// SecretStore resolves a user's stored webhook secret hash.
type SecretStore interface {
	WebhookSecretHash(ctx context.Context, user string) (string, error)
}

// RequestLog is the audit-trail dependency (spec.md §8 property 1: every
// accepted or rejected webhook gets exactly one row).
type RequestLog interface {
	InsertWebhookRequest(ctx context.Context, user, venueName, symbol, rawBody string) (uint, error)
	UpdateWebhookRequestStatus(ctx context.Context, id uint, status, failureNote string) error
}

// Reconciler drives the manual /positions/sync probe.
type Reconciler interface {
	Resolve(ctx context.Context, user, venueName string) (venue.Adapter, error)
}

// Server wires the HTTP handlers. All dependencies are narrow interfaces
// so tests can fake them independently of any real store or venue.
type Server struct {
	secrets  SecretStore
	log      RequestLog
	exec     Executor
	tracker  *position.Tracker
	adapters Reconciler

	limiter *rate.Limiter
	started time.Time
}

// Config holds the intake's tunables.
type Config struct {
	// RatePerSecond and Burst bound the per-process inbound webhook
	// rate (spec.md §6's 429 "per-process rate limit" response).
	RatePerSecond float64
	Burst         int
}

// New constructs a Server. tracker backs /positions; adapters backs
// /positions/sync; both may be nil if those probes are not wired in a
// given deployment (e.g. an AI-worker-only test harness).
func New(secrets SecretStore, log_ RequestLog, exec Executor, tracker *position.Tracker, adapters Reconciler, cfg Config) *Server {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}
	return &Server{
		secrets: secrets, log: log_, exec: exec, tracker: tracker, adapters: adapters,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		started: time.Now(),
	}
}

// Routes registers every endpoint on mux, mirroring the teacher's
// main.go pattern of building one http.ServeMux at boot and handing it
// to an http.Server.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/{user}", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /positions/{user}", s.handlePositions)
	mux.HandleFunc("POST /positions/{user}/sync", s.handlePositionsSync)
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("%x", sum)
}

// secretMatches compares in constant time, hashing first so unequal
// lengths don't themselves leak timing information (spec.md §4.7).
func secretMatches(presented, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	presentedHash := hashSecret(presented)
	return subtle.ConstantTimeCompare([]byte(presentedHash), []byte(storedHash)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// handleWebhook is the one write-path endpoint: authenticate, rate
// limit, audit, normalize, execute (spec.md §4.7, §6).
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	if user == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user"})
		return
	}

	var body intent.RawPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed json body"})
		return
	}
	presented := body.Secret
	// Never echo the secret back, not even in the audit row — strip it
	// before the first place the body is persisted or re-marshaled.
	body.Secret = ""

	ctx := r.Context()
	raw, _ := json.Marshal(body)
	reqID, logErr := s.log.InsertWebhookRequest(ctx, user, body.Venue, body.Symbol, string(raw))
	if logErr != nil {
		log.Printf("webhook: failed to write audit row for %s: %v", user, logErr)
	}
	reject := func(status int, reason string) {
		if logErr == nil {
			_ = s.log.UpdateWebhookRequestStatus(ctx, reqID, "rejected", reason)
		}
		metrics.IncWebhookRequest("rejected")
		writeJSON(w, status, map[string]string{"error": reason})
	}

	if !s.limiter.Allow() {
		reject(http.StatusTooManyRequests, "rate limited")
		return
	}

	storedHash, err := s.secrets.WebhookSecretHash(ctx, user)
	if err != nil {
		log.Printf("webhook: secret lookup failed for %s: %v", user, err)
		reject(http.StatusUnauthorized, "unauthorized")
		return
	}
	if !secretMatches(presented, storedHash) {
		reject(http.StatusUnauthorized, "unauthorized")
		return
	}

	in, warnings, err := intent.Normalize(user, body, intent.SourceWebhook)
	if err != nil {
		reject(http.StatusBadRequest, err.Error())
		return
	}
	in.Venue = strings.ToLower(in.Venue)
	for _, msg := range warnings {
		log.Printf("webhook: %s: %s", user, msg)
	}

	result, err := s.exec.Execute(ctx, in)
	if err != nil {
		if logErr == nil {
			_ = s.log.UpdateWebhookRequestStatus(ctx, reqID, "failed", err.Error())
		}
		metrics.IncWebhookRequest("failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "execution failed"})
		return
	}

	status := "executed"
	if !result.Success {
		status = "accepted"
	}
	if logErr == nil {
		_ = s.log.UpdateWebhookRequestStatus(ctx, reqID, status, result.Reason)
	}
	metrics.IncWebhookRequest(status)

	httpStatus := http.StatusOK
	if result.Action == "denied" {
		httpStatus = http.StatusTooManyRequests
	}
	writeJSON(w, httpStatus, result)
}

// HealthReport is the GET /health body.
type HealthReport struct {
	UptimeSeconds int64 `json:"uptime_seconds"`
	OpenPositions int   `json:"open_positions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := HealthReport{UptimeSeconds: int64(time.Since(s.started).Seconds())}
	if s.tracker != nil {
		report.OpenPositions = s.tracker.Count()
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	if s.tracker == nil {
		writeJSON(w, http.StatusOK, []position.Summary{})
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.SummaryForUser(user))
}

// positionsSyncRequest names which (venue) to reconcile; symbol
// selection is left to Reconcile's venue-wide sweep.
type positionsSyncRequest struct {
	Venue string `json:"exchange"`
}

func (s *Server) handlePositionsSync(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	if s.adapters == nil || s.tracker == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reconciliation unavailable"})
		return
	}
	var req positionsSyncRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Venue == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing exchange"})
		return
	}

	ctx := r.Context()
	adapter, err := s.adapters.Resolve(ctx, user, req.Venue)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "adapter unavailable"})
		return
	}
	if err := s.tracker.Reconcile(ctx, user, req.Venue, adapter); err != nil && !errors.Is(err, context.Canceled) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "reconciliation failed"})
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.SummaryForUser(user))
}
